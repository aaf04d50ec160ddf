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

// Package wsrpc implements the duplex RPC connection to the clearing node:
// request/response correlation over a single websocket, an ordered offline
// queue, bounded reconnection and typed notification dispatch.
package wsrpc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/clearmesh/walletcore/walleterr"
)

// ConnState tracks the connection lifecycle.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

// String implements fmt.Stringer.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	defaultMaxReconnectAttempts  = 5
	defaultInitialReconnectDelay = time.Second
	defaultMaxReconnectDelay     = 30 * time.Second
	defaultRequestTimeout        = 30 * time.Second
	defaultNotificationBuffer    = 64

	// closeCodeHandshakeFailed is sent when the on-connect hook rejects the
	// connection. It is non-clean so normal reconnection applies.
	closeCodeHandshakeFailed = 4000
)

// Config configures a Client. Zero fields take the documented defaults.
type Config struct {
	URL                   string
	MaxReconnectAttempts  int
	InitialReconnectDelay time.Duration
	MaxReconnectDelay     time.Duration
	RequestTimeout        time.Duration
	NotificationBuffer    int

	// OnConnect runs after every successful open, before the offline queue
	// is flushed. The session-auth handshake hangs off this hook. Returning
	// an error closes the socket with a non-clean code.
	OnConnect func(ctx context.Context, c *Client) error

	Dialer *websocket.Dialer
	Clock  clock.Clock
	Logger log.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if cfg.InitialReconnectDelay == 0 {
		cfg.InitialReconnectDelay = defaultInitialReconnectDelay
	}
	if cfg.MaxReconnectDelay == 0 {
		cfg.MaxReconnectDelay = defaultMaxReconnectDelay
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.NotificationBuffer == 0 {
		cfg.NotificationBuffer = defaultNotificationBuffer
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New("pkg", "wsrpc")
	}
	return cfg
}

// Client is a duplex RPC client. It owns exactly one connection, the request
// id counter, the pending-request map, the offline queue and the asset
// catalogue cache. Safe for concurrent use.
type Client struct {
	cfg Config
	log log.Logger
	clk clock.Clock

	reqID atomic.Uint64
	state atomic.Int32

	mu       sync.Mutex // guards conn, pending, queue, attempts
	conn     *websocket.Conn
	pending  map[uint64]chan *Message
	queue    []queuedRequest
	attempts int

	writeMu sync.Mutex // serializes socket writes

	notifCh chan Notification
	feedsMu sync.Mutex
	feeds   map[string]*event.Feed
	scope   event.SubscriptionScope

	assetsMu sync.RWMutex
	assets   []Asset

	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewClient creates a client for the given configuration. The connection is
// not opened until Connect.
func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:     cfg,
		log:     cfg.Logger,
		clk:     cfg.Clock,
		pending: make(map[uint64]chan *Message),
		feeds:   make(map[string]*event.Feed),
		notifCh: make(chan Notification, cfg.NotificationBuffer),
		quit:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.dispatchLoop()
	return c
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

// Connect dials the configured URL. Calling Connect while already connected
// or connecting is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	switch c.State() {
	case StateConnected, StateConnecting:
		return nil
	}
	c.state.Store(int32(StateConnecting))
	conn, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return walleterr.Wrap(walleterr.ErrUnavailable, "dial %s: %v", c.cfg.URL, err)
	}
	return c.establish(conn)
}

// establish installs a freshly opened connection: start the reader, run the
// on-connect hook, then flush the offline queue.
func (c *Client) establish(conn *websocket.Conn) error {
	c.mu.Lock()
	c.conn = conn
	c.attempts = 0
	c.mu.Unlock()
	c.state.Store(int32(StateConnected))

	c.wg.Add(1)
	go c.readLoop(conn)

	if hook := c.cfg.OnConnect; hook != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
		err := hook(ctx, c)
		cancel()
		if err != nil {
			c.log.Warn("On-connect hook failed, closing connection", "err", err)
			c.closeConn(conn, closeCodeHandshakeFailed, "handshake failed")
			return err
		}
	}
	c.flushQueue()
	return nil
}

// Close terminates the client. Pending calls fail, the connection is closed
// with a clean code and no reconnection is attempted.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.quit)
		c.state.Store(int32(StateDisconnected))
		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()
		if conn != nil {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			conn.Close()
		}
		c.scope.Close()
	})
}

// nextRequestID allocates the next request id. Ids start at 1, strictly
// increase and are never reused within the process lifetime.
func (c *Client) nextRequestID() uint64 {
	return c.reqID.Add(1)
}

// Call sends one request and waits for the matching response payload. The
// request is signed with sign when non-nil. While the socket is down the
// request waits in the offline queue; the per-request timeout still applies.
func (c *Client) Call(ctx context.Context, method string, params interface{}, sign SignFunc) (json.RawMessage, error) {
	if c.State() == StateFailed {
		return nil, walleterr.Wrap(walleterr.ErrUnavailable, "not connected: reconnection budget exhausted")
	}
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.ErrInvalidArgument, "encode params for %s: %v", method, err)
	}
	payload := Payload{
		RequestID: c.nextRequestID(),
		Method:    method,
		Params:    rawParams,
		Timestamp: uint64(c.clk.Now().UnixMilli()),
	}
	msg := Message{Req: &payload}
	if sign != nil {
		sig, err := sign(payload)
		if err != nil {
			return nil, walleterr.Wrap(walleterr.ErrInternal, "sign %s: %v", method, err)
		}
		msg.Sig = []string{sig}
	}
	data, err := json.Marshal(&msg)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.ErrInternal, "encode %s: %v", method, err)
	}

	respCh := make(chan *Message, 1)
	c.mu.Lock()
	c.pending[payload.RequestID] = respCh
	conn := c.conn
	connected := conn != nil && c.State() == StateConnected
	if !connected {
		c.queue = append(c.queue, queuedRequest{id: payload.RequestID, data: data})
	}
	c.mu.Unlock()

	if connected {
		if err := c.write(conn, data); err != nil {
			c.removePending(payload.RequestID)
			return nil, walleterr.Wrap(walleterr.ErrUnavailable, "write %s: %v", method, err)
		}
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, resp.Error
		}
		if resp.Res == nil {
			return nil, walleterr.Wrap(walleterr.ErrInternal, "response to %s carries no payload", method)
		}
		return resp.Res.Params, nil
	case <-c.clk.TickAfter(c.cfg.RequestTimeout):
		c.removePending(payload.RequestID)
		return nil, walleterr.Wrap(walleterr.ErrTimeout, "%s timed out after %s", method, c.cfg.RequestTimeout)
	case <-ctx.Done():
		c.removePending(payload.RequestID)
		return nil, ctx.Err()
	case <-c.quit:
		c.removePending(payload.RequestID)
		return nil, walleterr.Wrap(walleterr.ErrUnavailable, "client closed")
	}
}

func (c *Client) removePending(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// write performs one serialized socket write. The write mutex is held only
// for the duration of the write.
func (c *Client) write(conn *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop is the single reader for one connection.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("Dropping malformed inbound message", "err", err)
			continue
		}
		c.handleMessage(&msg)
	}
}

// handleMessage correlates a response with its pending request or hands the
// frame off as a notification. No message is handled twice.
func (c *Client) handleMessage(msg *Message) {
	p := msg.payload()
	if p == nil {
		c.log.Warn("Dropping inbound message without payload")
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[p.RequestID]
	if ok {
		delete(c.pending, p.RequestID)
	}
	c.mu.Unlock()
	if ok {
		ch <- msg
		return
	}
	c.handleNotification(p)
}

func (c *Client) handleNotification(p *Payload) {
	if !knownNotifications[p.Method] {
		c.log.Debug("Discarding unknown notification", "method", p.Method)
		return
	}
	if p.Method == NotifyAssets {
		c.updateAssets(p.Params)
	}
	n := Notification{Method: p.Method, Params: p.Params}
	select {
	case c.notifCh <- n:
	default:
		c.log.Warn("Notification buffer full, dropping", "method", p.Method)
	}
}

// dispatchLoop forwards notifications to subscribers outside the read loop.
func (c *Client) dispatchLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.quit:
			return
		case n := <-c.notifCh:
			c.feed(n.Method).Send(n)
		}
	}
}

func (c *Client) feed(method string) *event.Feed {
	c.feedsMu.Lock()
	defer c.feedsMu.Unlock()
	f := c.feeds[method]
	if f == nil {
		f = new(event.Feed)
		c.feeds[method] = f
	}
	return f
}

// Subscribe delivers notifications of the given method on ch until the
// subscription is cancelled. Handlers that may block must hand off; slow
// consumers cause drops at the client's internal buffer, never in the read
// loop.
func (c *Client) Subscribe(method string, ch chan<- Notification) (event.Subscription, error) {
	if !knownNotifications[method] {
		return nil, walleterr.Wrap(walleterr.ErrInvalidArgument, "unknown notification method %q", method)
	}
	return c.scope.Track(c.feed(method).Subscribe(ch)), nil
}

func (c *Client) updateAssets(params json.RawMessage) {
	var wrapper struct {
		Assets []Asset `json:"assets"`
	}
	if err := json.Unmarshal(params, &wrapper); err == nil && len(wrapper.Assets) > 0 {
		c.setAssets(wrapper.Assets)
		return
	}
	var plain []Asset
	if err := json.Unmarshal(params, &plain); err != nil {
		c.log.Warn("Dropping malformed asset catalogue", "err", err)
		return
	}
	c.setAssets(plain)
}

func (c *Client) setAssets(assets []Asset) {
	c.assetsMu.Lock()
	c.assets = assets
	c.assetsMu.Unlock()
	c.log.Debug("Replaced asset catalogue", "assets", len(assets))
}

// Assets returns the current asset catalogue. The catalogue persists across
// reconnects until the server pushes a replacement.
func (c *Client) Assets() []Asset {
	c.assetsMu.RLock()
	defer c.assetsMu.RUnlock()
	out := make([]Asset, len(c.assets))
	copy(out, c.assets)
	return out
}

// handleDisconnect reacts to a reader failure. Clean closes stop the client;
// anything else schedules reconnection. Pending resolvers are kept; their
// individual timeouts decide their fate.
func (c *Client) handleDisconnect(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// A newer connection replaced this one already.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()
	conn.Close()

	select {
	case <-c.quit:
		return
	default:
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
		c.log.Info("Connection closed cleanly")
		c.state.Store(int32(StateDisconnected))
		return
	}
	c.log.Warn("Connection lost, scheduling reconnect", "err", err)
	c.state.Store(int32(StateReconnecting))
	c.wg.Add(1)
	go c.reconnectLoop()
}

// reconnectLoop retries the dial with exponential backoff until it succeeds
// or the attempt budget is exhausted.
func (c *Client) reconnectLoop() {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		if attempt > c.cfg.MaxReconnectAttempts {
			c.log.Error("Reconnection budget exhausted", "attempts", c.cfg.MaxReconnectAttempts)
			c.state.Store(int32(StateFailed))
			return
		}
		delay := c.reconnectDelay(attempt)
		c.log.Info("Reconnecting", "attempt", attempt, "delay", delay)
		select {
		case <-c.quit:
			return
		case <-c.clk.TickAfter(delay):
		}

		c.state.Store(int32(StateConnecting))
		conn, _, err := c.cfg.Dialer.Dial(c.cfg.URL, nil)
		if err != nil {
			c.log.Warn("Reconnect dial failed", "attempt", attempt, "err", err)
			c.state.Store(int32(StateReconnecting))
			continue
		}
		// establish flushes the queue after the on-connect hook. A failed
		// hook closes the socket; its read loop schedules the next round.
		c.establish(conn)
		return
	}
}

// reconnectDelay computes min(initial * 2^(attempt-1), max).
func (c *Client) reconnectDelay(attempt int) time.Duration {
	delay := c.cfg.InitialReconnectDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.cfg.MaxReconnectDelay {
			return c.cfg.MaxReconnectDelay
		}
	}
	if delay > c.cfg.MaxReconnectDelay {
		return c.cfg.MaxReconnectDelay
	}
	return delay
}

// queuedRequest is one frame parked while the socket was down, tagged with
// its request id so abandoned calls can be pruned at flush time.
type queuedRequest struct {
	id   uint64
	data []byte
}

// flushQueue drains the offline queue in FIFO order. Frames whose caller has
// already given up (timeout, cancellation) are dropped instead of sent; a
// failed write puts the message back at the front and stops the flush.
func (c *Client) flushQueue() {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.mu.Unlock()
			return
		}
		q := c.queue[0]
		c.queue = c.queue[1:]
		_, waiting := c.pending[q.id]
		conn := c.conn
		c.mu.Unlock()

		if !waiting {
			c.log.Debug("Dropping abandoned queued request", "id", q.id)
			continue
		}
		if conn == nil {
			c.requeueFront(q)
			return
		}
		if err := c.write(conn, q.data); err != nil {
			c.log.Warn("Queue flush interrupted", "err", err)
			c.requeueFront(q)
			return
		}
	}
}

func (c *Client) requeueFront(q queuedRequest) {
	c.mu.Lock()
	c.queue = append([]queuedRequest{q}, c.queue...)
	c.mu.Unlock()
}

// closeConn closes conn with the given application close code.
func (c *Client) closeConn(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()
}

// QueueLen reports the offline queue depth.
func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
