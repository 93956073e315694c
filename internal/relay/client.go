package relay

import (
	"log/slog"
	"time"

	"github.com/BioHazard786/Warpcall/internal/wire"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64 KB - enough for SDP payloads

	// sendBuffer is the per-client outbound queue length.
	sendBuffer = 256
)

// Client is a wrapper for a single websocket connection (a participant).
type Client struct {
	// ID is the opaque participant id assigned on registration.
	ID string

	// Hub is the hub that manages this client.
	Hub *Hub

	// Conn is the websocket connection.
	Conn *websocket.Conn

	// Codec encodes frames for this connection, chosen by subprotocol.
	Codec wire.Codec

	// Send is a buffered channel of outbound messages. The hub writes to it
	// and WritePump drains it to the socket.
	Send chan *wire.Message

	logger *slog.Logger
}

// NewClient wraps conn for hub. The participant id is assigned when the
// hub processes the registration.
func NewClient(hub *Hub, conn *websocket.Conn, codec wire.Codec) *Client {
	return &Client{
		Hub:    hub,
		Conn:   conn,
		Codec:  codec,
		Send:   make(chan *wire.Message, sendBuffer),
		logger: hub.logger,
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("read failed", "remote", c.Conn.RemoteAddr(), "error", err)
			}
			return
		}

		var msg wire.Message
		if err := c.Codec.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("dropping undecodable frame", "remote", c.Conn.RemoteAddr(), "error", err)
			continue
		}

		c.Hub.Inbound <- &Inbound{Client: c, Message: &msg}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := c.Codec.Marshal(message)
			if err != nil {
				c.logger.Error("encode failed", "type", message.Type, "error", err)
				continue
			}
			if err := c.Conn.WriteMessage(c.Codec.FrameType(), data); err != nil {
				c.logger.Debug("write failed", "remote", c.Conn.RemoteAddr(), "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
