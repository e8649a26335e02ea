package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	readWait   = 60 * time.Second
	readLimit  = 1 << 20

	// CloseSessionReplaced is sent to a connection displaced by a newer one for the same user.
	CloseSessionReplaced = 4001
)

var errConnClosed = errors.New("connection closed")

// Frame is the envelope of every socket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Client is one websocket connection. Writes go through a bounded buffer drained by a
// single write loop. UserID is empty for anonymous connections.
type Client struct {
	UserID string

	id     string
	conn   *websocket.Conn
	send   chan []byte
	once   sync.Once
	closed chan struct{}
}

func NewClient(userID string, conn *websocket.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = 128
	}
	return &Client{
		UserID: userID,
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// Emit encodes data under event and queues it.
func (c *Client) Emit(event string, data any) error {
	payload, err := json.Marshal(outFrame{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	return c.Send(payload)
}

// Send queues payload. A client whose buffer is full is closed.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return errors.New("send buffer full")
	}
}

// Start launches the write loop. Call it once.
func (c *Client) Start() {
	go c.writeLoop()
}

// Close sends a close frame and tears down the socket. Safe to call repeatedly.
func (c *Client) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Client) write(messageType int, payload []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, payload)
}
