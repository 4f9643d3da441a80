// Package client is a simulated matchmaking user for load tests. It connects
// with gobwas/ws (the same library the server uses), records the session id
// from session-created and dispatches server messages to registered handlers.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Client -> Server message types.
const (
	TypeStartSearch = "start-search"
	TypeStopSearch  = "stop-search"
	TypeSkipChat    = "skip-chat"
	TypeStopChat    = "stop-chat"
	TypeSignal      = "signal"
	TypeChatMessage = "chat-message"
	TypePing        = "ping"
)

// Server -> Client message types.
const (
	TypeSessionCreated      = "session-created"
	TypeSearchStarted       = "search-started"
	TypeMatchFound          = "match-found"
	TypePartnerDisconnected = "partner-disconnected"
	TypeAutoSearching       = "auto-searching"
	TypeChatEnded           = "chat-ended"
	TypeError               = "error"
	TypePong                = "pong"
)

// Profile is the subset of the start-search profile the load test sends.
type Profile struct {
	UserID    string   `json:"user_id"`
	Gender    string   `json:"gender,omitempty"`
	Country   string   `json:"country,omitempty"`
	Interests []string `json:"interests,omitempty"`
}

// Match is the part of match-found the load test uses.
type Match struct {
	RoomID    string `json:"roomId"`
	PartnerID string `json:"partnerId"`
	Role      string `json:"role"`
}

// Metrics tracks per-connection performance data.
type Metrics struct {
	ConnectLatency   time.Duration
	MessagesReceived int
	MessagesSent     int
	Errors           int
}

// Client represents a single simulated user connection.
type Client struct {
	conn      net.Conn
	writeMu   sync.Mutex
	mu        sync.Mutex
	sessionID string
	metrics   Metrics
	handlers  map[string]func(json.RawMessage)
	session   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New connects to url and starts the read loop.
func New(ctx context.Context, url string) (*Client, error) {
	start := time.Now()
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	if br != nil {
		// The server writes session-created right after the handshake, so
		// the first frame may already sit in the handshake buffer.
		conn = &bufferedConn{Conn: conn, r: br}
	}

	c := &Client{
		conn:     conn,
		handlers: make(map[string]func(json.RawMessage)),
		session:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.metrics.ConnectLatency = time.Since(start)

	go c.readLoop()
	return c, nil
}

// Send sends a JSON message to the server. It is goroutine-safe.
func (c *Client) Send(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	c.writeMu.Lock()
	err = wsutil.WriteClientMessage(c.conn, ws.OpText, data)
	c.writeMu.Unlock()

	c.mu.Lock()
	if err != nil {
		c.metrics.Errors++
	} else {
		c.metrics.MessagesSent++
	}
	c.mu.Unlock()
	return err
}

// StartSearch enters the waiting pool.
func (c *Client) StartSearch(p Profile) error {
	return c.Send(map[string]interface{}{"type": TypeStartSearch, "profile": p})
}

// Skip leaves the current room and searches again.
func (c *Client) Skip() error {
	return c.Send(map[string]string{"type": TypeSkipChat})
}

// Chat sends a chat line to the partner.
func (c *Client) Chat(text string) error {
	return c.Send(map[string]string{"type": TypeChatMessage, "text": text})
}

// On registers a handler for a server message type, replacing any previous
// one. Handlers run on the read loop and should not block.
func (c *Client) On(msgType string, handler func(json.RawMessage)) {
	c.mu.Lock()
	c.handlers[msgType] = handler
	c.mu.Unlock()
}

// WaitForSession blocks until session-created arrived or ctx is done.
func (c *Client) WaitForSession(ctx context.Context) error {
	select {
	case <-c.session:
		return nil
	case <-c.done:
		return fmt.Errorf("connection closed before session was created")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the connection and stops the read loop. It is safe to call
// multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// Alive reports whether the read loop is still running.
func (c *Client) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// SessionID returns the id assigned by the server.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// GetMetrics returns a copy of the client's metrics.
func (c *Client) GetMetrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			select {
			case <-c.done:
			default:
				c.mu.Lock()
				c.metrics.Errors++
				c.mu.Unlock()
			}
			return
		}

		var envelope struct {
			Type      string `json:"type"`
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			continue
		}

		c.mu.Lock()
		c.metrics.MessagesReceived++
		if envelope.Type == TypeSessionCreated && c.sessionID == "" {
			c.sessionID = envelope.SessionID
			close(c.session)
		}
		handler := c.handlers[envelope.Type]
		c.mu.Unlock()

		if handler != nil {
			handler(json.RawMessage(data))
		}
	}
}

type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) { return b.r.Read(p) }
