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

package clearing

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/clearmesh/walletcore/walleterr"
	"github.com/clearmesh/walletcore/wsrpc"
)

func TestHandshakePrecedesTraffic(t *testing.T) {
	e := newEnv(t, func(n *fakeClearingNode) {
		n.stub(MethodGetChannels, `{"channels":[]}`)
	})
	require.True(t, e.session.Authenticated())

	_, err := NewQueryService(e.client).GetChannels(context.Background())
	require.NoError(t, err)

	methods := e.node.methodNames()
	require.GreaterOrEqual(t, len(methods), 3)
	require.Equal(t, MethodAuthRequest, methods[0])
	require.Equal(t, MethodAuthVerify, methods[1])
}

func TestHandshakeChallengeSignature(t *testing.T) {
	recovered := make(chan common.Address, 1)
	e := newEnv(t, func(n *fakeClearingNode) {
		n.handle(MethodAuthVerify, func(req *wsrpc.Payload, sigs []string) (json.RawMessage, *wsrpc.ServerError) {
			var p authVerifyParams
			if err := json.Unmarshal(req.Params, &p); err != nil {
				return nil, &wsrpc.ServerError{Code: -32602, Message: err.Error()}
			}
			sig, err := hexutil.Decode(p.Signature)
			if err != nil {
				return nil, &wsrpc.ServerError{Code: -32602, Message: err.Error()}
			}
			pub, err := crypto.SigToPub(crypto.Keccak256([]byte(p.Challenge)), sig)
			if err != nil {
				return nil, &wsrpc.ServerError{Code: -32602, Message: err.Error()}
			}
			recovered <- crypto.PubkeyToAddress(*pub)
			return json.RawMessage(`{"success":true}`), nil
		})
	})

	select {
	case addr := <-recovered:
		require.Equal(t, e.session.Address(), addr)
	case <-time.After(2 * time.Second):
		t.Fatal("auth_verify never reached the node")
	}
	require.True(t, e.session.Authenticated())
}

func TestHandshakeRefused(t *testing.T) {
	node := newFakeClearingNode(t)
	node.stub(MethodAuthRequest, `{"challenge_message":"c-1"}`)
	node.stub(MethodAuthVerify, `{"success":false}`)

	session, err := NewSession(testWallet, "walletcore-tests")
	require.NoError(t, err)
	rpc := wsrpc.NewClient(wsrpc.Config{
		URL:                   node.url(),
		OnConnect:             session.OnConnect,
		MaxReconnectAttempts:  1,
		InitialReconnectDelay: 10 * time.Millisecond,
		MaxReconnectDelay:     20 * time.Millisecond,
		RequestTimeout:        2 * time.Second,
	})
	t.Cleanup(rpc.Close)

	err = rpc.Connect(context.Background())
	require.ErrorIs(t, err, walleterr.ErrUnauthenticated)
	require.False(t, session.Authenticated())
}

func TestRequestsCarrySessionSignature(t *testing.T) {
	e := newEnv(t, func(n *fakeClearingNode) {
		n.stub(MethodGetChannels, `{"channels":[]}`)
	})
	_, err := NewQueryService(e.client).GetChannels(context.Background())
	require.NoError(t, err)

	calls := e.node.calls(MethodGetChannels)
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Sigs, 1)

	data, err := calls[0].Req.Canonical()
	require.NoError(t, err)
	sig, err := hexutil.Decode(calls[0].Sigs[0])
	require.NoError(t, err)
	pub, err := crypto.SigToPub(crypto.Keccak256(data), sig)
	require.NoError(t, err)
	require.Equal(t, e.session.Address(), crypto.PubkeyToAddress(*pub))
}

func TestPingIsUnsigned(t *testing.T) {
	e := newEnv(t, func(n *fakeClearingNode) {
		n.stub(MethodPing, `{"pong":"pong","timestamp":42}`)
	})
	_, err := NewQueryService(e.client).Ping(context.Background())
	require.NoError(t, err)

	calls := e.node.calls(MethodPing)
	require.Len(t, calls, 1)
	require.Empty(t, calls[0].Sigs)
}
