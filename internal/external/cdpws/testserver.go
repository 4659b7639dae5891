package cdpws

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
)

// Handler answers one RPC call made against a TestServer, returning the
// result to send back (or an error to translate into an rpcError).
type Handler func(method string, params json.RawMessage) (json.RawMessage, error)

// TestServer is a single-connection JSON-RPC-over-websocket server used to
// exercise Client/Executor in tests without a real browser bridge on the
// other end. It is not a production CDP bridge: it accepts exactly one
// connection, performs the hello/welcome handshake (rejecting a token
// mismatch when Token is set), and answers every request with Handle.
type TestServer struct {
	Token  string
	Handle Handler

	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader
}

// NewTestServer starts listening on 127.0.0.1:0 and returns its ws:// URL.
func NewTestServer(token string, handle Handler) (*TestServer, string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, "", err
	}
	ts := &TestServer{Token: token, Handle: handle, listener: listener}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ts.serveWS)
	ts.server = &http.Server{Handler: mux}
	go func() { _ = ts.server.Serve(listener) }()
	return ts, "ws://" + listener.Addr().String() + "/ws", nil
}

func (ts *TestServer) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := ts.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var hello helloMessage
	if err := conn.ReadJSON(&hello); err != nil {
		return
	}
	if ts.Token != "" && hello.Token != ts.Token {
		return
	}
	if err := conn.WriteJSON(welcomeMessage{Type: "welcome", Version: protocolVersion}); err != nil {
		return
	}

	for {
		var req rpcRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		result, err := ts.Handle(req.Method, req.Params)
		if err != nil {
			_ = conn.WriteJSON(rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32000, Message: err.Error()}})
			continue
		}
		_ = conn.WriteJSON(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
	}
}

// Close stops accepting connections.
func (ts *TestServer) Close() error { return ts.server.Close() }
