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
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/clearmesh/walletcore/store"
	"github.com/clearmesh/walletcore/wsrpc"
)

var testWallet = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

// nodeHandler serves one method of the fake clearing node.
type nodeHandler func(req *wsrpc.Payload, sigs []string) (json.RawMessage, *wsrpc.ServerError)

type recordedCall struct {
	Req  wsrpc.Payload
	Sigs []string
}

// fakeClearingNode is an in-process clearing node speaking the signed
// envelope protocol over a real websocket.
type fakeClearingNode struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	handlers map[string]nodeHandler
	received []recordedCall
	conns    []*websocket.Conn
}

func newFakeClearingNode(t *testing.T) *fakeClearingNode {
	n := &fakeClearingNode{
		t:        t,
		handlers: make(map[string]nodeHandler),
	}
	n.srv = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.srv.Close)
	return n
}

func (n *fakeClearingNode) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	n.mu.Lock()
	n.conns = append(n.conns, conn)
	n.mu.Unlock()
	for {
		var msg wsrpc.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Req == nil {
			continue
		}
		n.mu.Lock()
		n.received = append(n.received, recordedCall{Req: *msg.Req, Sigs: msg.Sig})
		h := n.handlers[msg.Req.Method]
		n.mu.Unlock()

		reply := wsrpc.Message{Res: &wsrpc.Payload{
			RequestID: msg.Req.RequestID,
			Method:    msg.Req.Method,
			Timestamp: uint64(time.Now().UnixMilli()),
		}}
		if h == nil {
			reply.Error = &wsrpc.ServerError{Code: -32601, Message: "unknown method " + msg.Req.Method}
		} else if params, serr := h(msg.Req, msg.Sig); serr != nil {
			reply.Error = serr
		} else {
			reply.Res.Params = params
		}
		n.mu.Lock()
		conn.WriteJSON(&reply)
		n.mu.Unlock()
	}
}

func (n *fakeClearingNode) url() string {
	return "ws" + strings.TrimPrefix(n.srv.URL, "http")
}

func (n *fakeClearingNode) handle(method string, h nodeHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = h
}

// stub installs a handler replying with a fixed result.
func (n *fakeClearingNode) stub(method, result string) {
	n.handle(method, func(*wsrpc.Payload, []string) (json.RawMessage, *wsrpc.ServerError) {
		return json.RawMessage(result), nil
	})
}

func (n *fakeClearingNode) methodNames() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.received))
	for i, call := range n.received {
		out[i] = call.Req.Method
	}
	return out
}

// calls returns the recorded requests for one method.
func (n *fakeClearingNode) calls(method string) []recordedCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []recordedCall
	for _, call := range n.received {
		if call.Req.Method == method {
			out = append(out, call)
		}
	}
	return out
}

// push sends an uncorrelated frame to every live connection.
func (n *fakeClearingNode) push(method, params string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	msg := wsrpc.Message{Res: &wsrpc.Payload{Method: method, Params: json.RawMessage(params)}}
	for _, conn := range n.conns {
		conn.WriteJSON(&msg)
	}
}

func (n *fakeClearingNode) stubAuth() {
	n.stub(MethodAuthRequest, `{"challenge_message":"c-77"}`)
	n.stub(MethodAuthVerify, `{"success":true}`)
}

// env wires a fake node, an authenticated transport and an in-memory store.
type env struct {
	node    *fakeClearingNode
	rpc     *wsrpc.Client
	session *Session
	client  *Client
	db      *store.Memory
}

// newEnv builds the full stack and connects. prep runs against the node
// before the dial, after the default auth stubs are installed.
func newEnv(t *testing.T, prep func(*fakeClearingNode)) *env {
	node := newFakeClearingNode(t)
	node.stubAuth()
	if prep != nil {
		prep(node)
	}
	session, err := NewSession(testWallet, "walletcore-tests")
	require.NoError(t, err)

	rpc := wsrpc.NewClient(wsrpc.Config{
		URL:                   node.url(),
		OnConnect:             session.OnConnect,
		MaxReconnectAttempts:  2,
		InitialReconnectDelay: 10 * time.Millisecond,
		MaxReconnectDelay:     50 * time.Millisecond,
		RequestTimeout:        2 * time.Second,
	})
	t.Cleanup(rpc.Close)
	require.NoError(t, rpc.Connect(context.Background()))

	return &env{
		node:    node,
		rpc:     rpc,
		session: session,
		client:  NewClient(rpc, session),
		db:      store.NewMemory(),
	}
}
