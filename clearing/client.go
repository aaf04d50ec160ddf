// Copyright 2026 The walletcore Authors
// This file is part of the walletcore library.
//
// The walletcore library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The walletcore library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the walletcore library. If not, see <http://www.gnu.org/licenses/>.

// Package clearing drives the remote clearing node: session authentication,
// payment channel and app-session control and the read-side query service.
package clearing

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/log"

	"github.com/clearmesh/walletcore/params"
	"github.com/clearmesh/walletcore/walleterr"
	"github.com/clearmesh/walletcore/wsrpc"
)

// Client couples the duplex transport with the session-key signer. Methods
// in the public set are sent unsigned; everything else carries a session
// signature.
type Client struct {
	rpc     *wsrpc.Client
	session *Session
	log     log.Logger
}

// NewClient wraps rpc and session. The session's OnConnect hook must be
// installed on the transport by the caller so re-authentication precedes
// queue flushes.
func NewClient(rpc *wsrpc.Client, session *Session) *Client {
	return &Client{
		rpc:     rpc,
		session: session,
		log:     log.New("pkg", "clearing"),
	}
}

// Session exposes the authentication state.
func (c *Client) Session() *Session {
	return c.session
}

// RPC exposes the underlying transport, mainly for notification
// subscriptions.
func (c *Client) RPC() *wsrpc.Client {
	return c.rpc
}

// AssetsFor filters the server-pushed asset catalogue down to the entries
// deployed on chain. Chains without a clearing id have no catalogue entries.
func (c *Client) AssetsFor(chain params.Chain) []wsrpc.Asset {
	id, ok := params.ClearingChainID(chain)
	if !ok {
		return nil
	}
	var out []wsrpc.Asset
	for _, a := range c.rpc.Assets() {
		if a.ChainID == id {
			out = append(out, a)
		}
	}
	return out
}

// call sends one request and decodes the response payload into out when
// non-nil.
func (c *Client) call(ctx context.Context, method string, params, out interface{}) error {
	var sign wsrpc.SignFunc
	if !publicMethods[method] {
		sign = c.session.Sign
	}
	raw, err := c.rpc.Call(ctx, method, params, sign)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return walleterr.Wrap(walleterr.ErrInternal, "decode %s response: %v", method, err)
	}
	return nil
}
