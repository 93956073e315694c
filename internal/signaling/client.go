package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BioHazard786/Warpcall/internal/logging"
	"github.com/BioHazard786/Warpcall/internal/wire"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMessageSize   = 64 * 1024
	handshakeTimeout = 10 * time.Second

	outgoingBuffer = 64
	eventBuffer    = 64
)

// Options configures a Client.
type Options struct {
	// URL is the relay's websocket endpoint.
	URL string

	// Codec is the preferred wire encoding. The relay may fall back to JSON.
	Codec wire.Codec

	// ReconnectAttempts bounds how often a dropped link is redialed before
	// the client gives up. Zero disables reconnection.
	ReconnectAttempts int

	// ReconnectDelay is the fixed pause before each attempt.
	ReconnectDelay time.Duration

	Logger *slog.Logger
}

// Client manages the WebSocket connection to the signaling relay and turns
// relay frames into typed events.
type Client struct {
	opts   Options
	dialer websocket.Dialer
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	localID string
	roomID  string
	started bool
	err     error

	outgoing  chan *wire.Message
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a new signaling client. Nothing is dialed until Connect.
func NewClient(opts Options) *Client {
	if opts.Codec == nil {
		opts.Codec = wire.JSON
	}
	if opts.Logger == nil {
		opts.Logger = logging.For("signaling")
	}
	if opts.ReconnectAttempts < 0 {
		opts.ReconnectAttempts = 0
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = handshakeTimeout
	dialer.Subprotocols = []string{opts.Codec.Subprotocol()}

	return &Client{
		opts:     opts,
		dialer:   dialer,
		logger:   opts.Logger,
		outgoing: make(chan *wire.Message, outgoingBuffer),
		events:   make(chan Event, eventBuffer),
		done:     make(chan struct{}),
	}
}

// Connect dials the relay and waits for the welcome frame that carries our
// participant id. After it returns nil the client keeps the link alive in
// the background until Close or until reconnection gives up.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.isClosed() {
		c.mu.Unlock()
		return NewError("connect", ErrClosed)
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, codec, id, err := c.dial(ctx)
	if err != nil {
		return &SignalingError{Op: "connect", Err: ErrUnreachable, Details: err.Error()}
	}

	c.mu.Lock()
	if c.isClosed() {
		c.mu.Unlock()
		conn.Close()
		return NewError("connect", ErrClosed)
	}
	c.conn = conn
	c.localID = id
	c.started = true
	c.mu.Unlock()

	c.logger.Info("connected to relay", "url", c.opts.URL, "id", id, "codec", codec.Subprotocol())
	c.emit(Connected{LocalID: id})

	go c.run(conn, codec)
	return nil
}

// Events returns the stream of relay events. It is closed after Close or
// after reconnection gives up.
func (c *Client) Events() <-chan Event {
	return c.events
}

// LocalID is the participant id assigned by the relay on the current link.
func (c *Client) LocalID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localID
}

// Room is the room this client last asked to join.
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// Err reports why the event stream ended. It is nil while running and
// after a plain Close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// JoinRoom asks the relay to place us in roomID. The room is remembered and
// rejoined after a reconnect.
func (c *Client) JoinRoom(roomID string) error {
	c.mu.Lock()
	c.roomID = roomID
	c.mu.Unlock()
	return c.send(&wire.Message{Type: wire.TypeJoinRoom, RoomID: roomID})
}

// LeaveRoom leaves the current room.
func (c *Client) LeaveRoom() error {
	c.mu.Lock()
	c.roomID = ""
	c.mu.Unlock()
	return c.send(&wire.Message{Type: wire.TypeLeaveRoom})
}

// SendOffer relays an SDP offer to participant to.
func (c *Client) SendOffer(to string, desc webrtc.SessionDescription) error {
	return c.sendPayload(wire.TypeOffer, to, desc)
}

// SendAnswer relays an SDP answer to participant to.
func (c *Client) SendAnswer(to string, desc webrtc.SessionDescription) error {
	return c.sendPayload(wire.TypeAnswer, to, desc)
}

// SendICECandidate relays one local candidate to participant to.
func (c *Client) SendICECandidate(to string, candidate webrtc.ICECandidateInit) error {
	return c.sendPayload(wire.TypeICECandidate, to, candidate)
}

// Close shuts the link down. It is safe to call more than once.
func (c *Client) Close() {
	c.shutdown(nil)
}

func (c *Client) shutdown(reason error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = reason
		conn := c.conn
		started := c.started
		close(c.done)
		c.mu.Unlock()

		if conn != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
		}
		if !started {
			close(c.events)
		}
	})
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) sendPayload(msgType, to string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return NewError("encode "+msgType, err)
	}
	return c.send(&wire.Message{Type: msgType, To: to, Payload: payload})
}

// send queues msg for the current link. Messages queued while the link is
// down go out after the next successful reconnect.
func (c *Client) send(msg *wire.Message) error {
	if c.isClosed() {
		return NewError("send "+msg.Type, ErrClosed)
	}
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return NewError("send "+msg.Type, ErrClosed)
	}
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// dial opens one link and consumes the welcome frame.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, wire.Codec, string, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return nil, nil, "", fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}

	codec := wire.ForSubprotocol(conn.Subprotocol())

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	welcome, err := readMessage(conn, codec)
	if err != nil {
		conn.Close()
		return nil, nil, "", fmt.Errorf("read welcome: %w", err)
	}
	if welcome.Type != wire.TypeWelcome || welcome.UserID == "" {
		conn.Close()
		return nil, nil, "", ErrNoWelcome
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	return conn, codec, welcome.UserID, nil
}

// run owns the event stream. It serves one link at a time and redials
// after a drop.
func (c *Client) run(conn *websocket.Conn, codec wire.Codec) {
	defer close(c.events)

	for {
		err := c.serve(conn, codec)
		if c.isClosed() {
			return
		}

		c.logger.Warn("relay connection lost", "error", err)
		c.emit(Disconnected{Err: err})

		conn, codec = c.reconnect()
		if conn == nil {
			if c.isClosed() {
				return
			}
			c.logger.Error("giving up on relay", "url", c.opts.URL, "attempts", c.opts.ReconnectAttempts)
			c.shutdown(ErrUnreachable)
			return
		}
	}
}

// reconnect makes up to ReconnectAttempts dials spaced by ReconnectDelay.
// On success the remembered room is rejoined before anything else is sent.
func (c *Client) reconnect() (*websocket.Conn, wire.Codec) {
	for attempt := 1; attempt <= c.opts.ReconnectAttempts; attempt++ {
		select {
		case <-c.done:
			return nil, nil
		case <-time.After(c.opts.ReconnectDelay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
		conn, codec, id, err := c.dial(ctx)
		cancel()
		if err != nil {
			c.logger.Debug("reconnect failed", "attempt", attempt, "error", err)
			continue
		}

		c.mu.Lock()
		if c.isClosed() {
			c.mu.Unlock()
			conn.Close()
			return nil, nil
		}
		c.conn = conn
		c.localID = id
		room := c.roomID
		c.mu.Unlock()

		if room != "" {
			if err := writeMessage(conn, codec, &wire.Message{Type: wire.TypeJoinRoom, RoomID: room}); err != nil {
				c.logger.Debug("rejoin failed", "room", room, "error", err)
				conn.Close()
				continue
			}
		}

		c.logger.Info("reconnected to relay", "id", id, "attempt", attempt)
		c.emit(Connected{LocalID: id, Reconnected: true})
		return conn, codec
	}
	return nil, nil
}

// serve pumps one link until it fails. The returned error is the read
// error that ended it.
func (c *Client) serve(conn *websocket.Conn, codec wire.Codec) error {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump(conn, codec, stop)
	}()

	defer func() {
		close(stop)
		conn.Close()
		wg.Wait()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		msg := new(wire.Message)
		if err := codec.Unmarshal(data, msg); err != nil {
			c.logger.Warn("dropping undecodable frame", "error", err)
			continue
		}
		if msg.Type == wire.TypeWelcome {
			continue
		}

		ev, err := decode(msg)
		if err != nil {
			c.logger.Warn("dropping relay frame", "type", msg.Type, "from", msg.From, "error", err)
			continue
		}
		c.emit(ev)
	}
}

// writePump is the only writer of data frames on conn.
func (c *Client) writePump(conn *websocket.Conn, codec wire.Codec, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.outgoing:
			if err := writeMessage(conn, codec, msg); err != nil {
				c.logger.Debug("write failed, message dropped", "type", msg.Type, "error", err)
				conn.Close()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}

		case <-stop:
			return

		case <-c.done:
			return
		}
	}
}

func readMessage(conn *websocket.Conn, codec wire.Codec) (*wire.Message, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var msg wire.Message
	if err := codec.Unmarshal(data, &msg); err != nil {
		return nil, NewError("decode frame", err)
	}
	return &msg, nil
}

func writeMessage(conn *websocket.Conn, codec wire.Codec, msg *wire.Message) error {
	data, err := codec.Marshal(msg)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(codec.FrameType(), data)
}
