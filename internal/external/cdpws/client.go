package cdpws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var errNotConnected = errors.New("cdpws: not connected")

// ClientConfig shapes a Client's connection. Token, when set, is sent in the
// initial hello and the server is expected to challenge it before returning
// a welcome; CallTimeout bounds how long Call waits for a response.
type ClientConfig struct {
	Token          string
	ClientName     string
	ConnectTimeout time.Duration
	CallTimeout    time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.ClientName == "" {
		c.ClientName = "soulbrowser"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	return c
}

// Client is a JSON-RPC-over-websocket connection to a CDP-shaped external
// bridge: Dial resolves endpoint (via ResolveCDPURL) and performs the
// hello/welcome handshake; Call sends one request and waits for its
// matching response, allowing many concurrent calls over the same
// connection (each keyed by a fresh request ID).
type Client struct {
	cfg  ClientConfig
	conn *websocket.Conn

	mu      sync.Mutex
	nextID  uint64
	pending map[string]chan rpcResponse
	closed  bool
}

// Dial resolves endpoint to a websocket URL, connects, and performs the
// hello/welcome handshake before returning.
func Dial(ctx context.Context, endpoint string, cfg ClientConfig) (*Client, error) {
	cfg = cfg.withDefaults()
	wsURL, err := ResolveCDPURL(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("cdpws: dial %s: %w", wsURL, err)
	}

	c := &Client{cfg: cfg, conn: conn, pending: make(map[string]chan rpcResponse)}
	if err := c.handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) handshake() error {
	if err := c.conn.WriteJSON(helloMessage{
		Type: "hello", Token: c.cfg.Token, Client: c.cfg.ClientName, Version: protocolVersion,
	}); err != nil {
		return fmt.Errorf("cdpws: write hello: %w", err)
	}
	var welcome welcomeMessage
	if err := c.conn.ReadJSON(&welcome); err != nil {
		return fmt.Errorf("cdpws: read welcome: %w", err)
	}
	if welcome.Type != "welcome" {
		return fmt.Errorf("cdpws: handshake rejected (got %+v)", welcome)
	}
	return nil
}

func (c *Client) readLoop() {
	for {
		var resp rpcResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.failPending(err)
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		ch <- rpcResponse{ID: id, Error: &rpcError{Code: -1, Message: err.Error()}}
		delete(c.pending, id)
	}
}

// Call sends one JSON-RPC request and waits for its response or ctx/timeout,
// whichever comes first.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errNotConnected
	}
	c.nextID++
	id := fmt.Sprintf("%d", c.nextID)
	ch := make(chan rpcResponse, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	var raw json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}

	if err := c.conn.WriteJSON(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: raw}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("cdpws: write request: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-timeoutCtx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("cdpws: call %s: %w", method, timeoutCtx.Err())
	}
}

// Close shuts down the underlying connection, failing any call still
// waiting on a response.
func (c *Client) Close() error {
	c.failPending(errNotConnected)
	return c.conn.Close()
}
