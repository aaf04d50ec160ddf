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

package wsrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Payload is the positional body shared by requests and responses:
// [id, method, params, timestampMs].
type Payload struct {
	RequestID uint64
	Method    string
	Params    json.RawMessage
	Timestamp uint64
}

// MarshalJSON encodes the payload as its positional array form.
func (p Payload) MarshalJSON() ([]byte, error) {
	params := p.Params
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	return json.Marshal([]interface{}{p.RequestID, p.Method, params, p.Timestamp})
}

// UnmarshalJSON decodes the positional array form.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return err
	}
	if len(elems) < 3 {
		return errors.New("wsrpc: payload needs at least [id, method, params]")
	}
	if err := json.Unmarshal(elems[0], &p.RequestID); err != nil {
		return fmt.Errorf("wsrpc: bad request id: %w", err)
	}
	if err := json.Unmarshal(elems[1], &p.Method); err != nil {
		return fmt.Errorf("wsrpc: bad method: %w", err)
	}
	p.Params = append(json.RawMessage(nil), elems[2]...)
	p.Timestamp = 0
	if len(elems) > 3 {
		if err := json.Unmarshal(elems[3], &p.Timestamp); err != nil {
			return fmt.Errorf("wsrpc: bad timestamp: %w", err)
		}
	}
	return nil
}

// Canonical returns the byte encoding signatures are computed over.
func (p Payload) Canonical() ([]byte, error) {
	return p.MarshalJSON()
}

// ServerError is an error reported by the remote node inside a response
// envelope.
type ServerError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// Message is one wire frame. Outgoing frames carry Req, incoming ones Res;
// a frame whose id does not correlate with a pending request is a
// notification.
type Message struct {
	Req   *Payload     `json:"req,omitempty"`
	Res   *Payload     `json:"res,omitempty"`
	Sig   []string     `json:"sig,omitempty"`
	Error *ServerError `json:"error,omitempty"`
}

// payload returns whichever body the frame carries.
func (m *Message) payload() *Payload {
	if m.Res != nil {
		return m.Res
	}
	return m.Req
}

// SignFunc produces a detached hex signature over the canonical encoding of
// a request payload. A nil SignFunc sends the request unsigned.
type SignFunc func(Payload) (string, error)

// Notification is a server push delivered to subscribers.
type Notification struct {
	Method string
	Params json.RawMessage
}

// Recognized notification methods.
const (
	NotifyBalanceUpdate    = "bu"
	NotifyChannelUpdate    = "cu"
	NotifyTransfer         = "tr"
	NotifyAppSessionUpdate = "asu"
	NotifyAssets           = "assets"
)

var knownNotifications = map[string]bool{
	NotifyBalanceUpdate:    true,
	NotifyChannelUpdate:    true,
	NotifyTransfer:         true,
	NotifyAppSessionUpdate: true,
	NotifyAssets:           true,
}

// Asset is one entry of the server-pushed asset catalogue.
type Asset struct {
	Token    string `json:"token"`
	ChainID  uint64 `json:"chain_id"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}
