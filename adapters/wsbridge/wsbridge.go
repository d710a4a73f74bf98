// Package wsbridge exposes the message protocol over a local WebSocket so
// out-of-process callers (a popup UI, an extension, another tool) can drive
// recording and flow CRUD. Each frame carries one request envelope and
// receives exactly one response envelope; a malformed frame gets a failure
// envelope rather than a dropped connection.
package wsbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/flowscribe/flowscribe"
)

type Server struct {
	handler  *flowscribe.Handler
	logger   flowscribe.Logger
	upgrader websocket.Upgrader
}

type options struct {
	logger flowscribe.Logger
}

type Option func(*options)

func WithLogger(l flowscribe.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func New(handler *flowscribe.Handler, opts ...Option) *Server {
	opt := options{
		logger: flowscribe.NoopLogger{},
	}
	for _, o := range opts {
		o(&opt)
	}

	return &Server{
		handler: handler,
		logger:  opt.logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1 << 16,
			WriteBufferSize: 1 << 16,
			// The bridge binds to loopback; remote origins are refused by the
			// listener address, not the origin header.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// frame pairs a client correlation id with a request so concurrent requests
// on one connection can be matched to their responses.
type frame struct {
	ID string `json:"id,omitempty"`
	flowscribe.Request
}

type responseFrame struct {
	ID string `json:"id,omitempty"`
	flowscribe.Response
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error(r.Context(), err)
		return
	}
	defer conn.Close()

	// Gorilla permits one concurrent writer only.
	var writeMu sync.Mutex

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug(ctx, "bridge connection closed", flowscribe.MKV{"error": err.Error()})
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.write(ctx, conn, &writeMu, responseFrame{
				Response: flowscribe.Response{Success: false, Error: "malformed request frame"},
			})
			continue
		}

		resp := s.handler.Handle(ctx, f.Request)
		s.write(ctx, conn, &writeMu, responseFrame{ID: f.ID, Response: resp})
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, mu *sync.Mutex, rf responseFrame) {
	mu.Lock()
	defer mu.Unlock()

	err := conn.WriteJSON(rf)
	if err != nil {
		s.logger.Debug(ctx, "bridge response write failed", flowscribe.MKV{"error": err.Error()})
	}
}

// Client is the matching caller side, used by tests and by thin UIs.
type Client struct {
	mu   sync.Mutex
	conn *websocket.Conn
	seq  int
}

func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Call sends one request and blocks for its response. Calls are serialised on
// the connection.
func (c *Client) Call(ctx context.Context, req flowscribe.Request) (flowscribe.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	f := frame{ID: strconv.Itoa(c.seq), Request: req}
	err := c.conn.WriteJSON(f)
	if err != nil {
		return flowscribe.Response{}, err
	}

	var rf responseFrame
	err = c.conn.ReadJSON(&rf)
	if err != nil {
		return flowscribe.Response{}, err
	}
	return rf.Response, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
