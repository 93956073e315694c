package relay

import (
	"context"
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/wire"
	"github.com/google/uuid"
)

// Inbound is a decoded frame together with the client that sent it.
type Inbound struct {
	Client  *Client
	Message *wire.Message
}

// Hub is the central brain of the relay. A single goroutine (Run) owns the
// client table and applies every membership change, so mutations for a
// room are serialized in arrival order.
type Hub struct {
	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients.
	Unregister chan *Client

	// Inbound carries frames read from clients.
	Inbound chan *Inbound

	registry *Registry
	clients  map[string]*Client
	newID    func() string
	metrics  *hubMetrics
	logger   *slog.Logger
}

// NewHub creates a new Hub instance.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *Inbound),
		registry:   NewRegistry(),
		clients:    make(map[string]*Client),
		newID:      uuid.NewString,
		metrics:    newHubMetrics(),
		logger:     logger,
	}
}

// Registry exposes the room registry for read-only reporting.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Run starts the hub's main processing loop and blocks until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			client.ID = h.newID()
			h.clients[client.ID] = client
			h.deliver(client, &wire.Message{Type: wire.TypeWelcome, UserID: client.ID})
			h.logger.Info("client registered", "id", client.ID)

		case client := <-h.Unregister:
			if _, ok := h.clients[client.ID]; !ok {
				continue
			}
			h.logger.Info("client unregistered", "id", client.ID)
			h.leave(client.ID)
			delete(h.clients, client.ID)
			// Closing Send stops the client's WritePump.
			close(client.Send)

		case in := <-h.Inbound:
			h.handle(in.Client, in.Message)
		}
	}
}

func (h *Hub) handle(client *Client, msg *wire.Message) {
	if _, ok := h.clients[client.ID]; !ok {
		return
	}

	switch {
	case msg.Type == wire.TypeJoinRoom:
		h.join(client, msg.RoomID)

	case msg.Type == wire.TypeLeaveRoom:
		h.logger.Info("leave requested", "id", client.ID)
		h.leave(client.ID)

	case wire.IsRelayed(msg.Type):
		h.relay(client.ID, msg)

	default:
		h.logger.Debug("unknown message type", "type", msg.Type, "from", client.ID)
	}
}

func (h *Hub) join(client *Client, roomID string) {
	existing, left, err := h.registry.Join(roomID, client.ID)
	if err != nil {
		h.logger.Info("join rejected", "id", client.ID, "error", err)
		h.deliver(client, wire.NewError(err.Error()))
		return
	}
	if left != nil {
		h.announceDeparture(client.ID, left)
	}

	h.deliver(client, &wire.Message{Type: wire.TypeExistingUsers, RoomID: roomID, Users: existing})
	for _, id := range existing {
		h.deliverTo(id, &wire.Message{Type: wire.TypeUserJoined, RoomID: roomID, UserID: client.ID})
	}

	h.logger.Info("joined room", "id", client.ID, "room", roomID, "members", len(existing)+1)
}

func (h *Hub) leave(id string) {
	departure := h.registry.Leave(id)
	if departure == nil {
		return
	}
	h.announceDeparture(id, departure)
}

func (h *Hub) announceDeparture(id string, d *Departure) {
	if len(d.Remaining) == 0 {
		h.logger.Info("room deleted", "room", d.RoomID)
		return
	}
	for _, member := range d.Remaining {
		h.deliverTo(member, &wire.Message{Type: wire.TypeUserLeft, RoomID: d.RoomID, UserID: id})
	}
	h.logger.Info("left room", "id", id, "room", d.RoomID, "remaining", len(d.Remaining))
}

// relay forwards an opaque signaling payload. The sender is taken from the
// connection, never from the frame, and the payload is not inspected.
func (h *Hub) relay(from string, msg *wire.Message) {
	h.logger.Debug("relaying", "type", msg.Type, "from", from, "to", msg.To)
	h.metrics.relayed.WithLabelValues(msg.Type).Inc()
	h.deliverTo(msg.To, &wire.Message{Type: msg.Type, From: from, Payload: msg.Payload})
}

func (h *Hub) deliverTo(id string, msg *wire.Message) {
	target, ok := h.clients[id]
	if !ok {
		h.logger.Debug("dropping message for offline participant", "type", msg.Type, "to", id)
		h.metrics.dropped.WithLabelValues("offline").Inc()
		return
	}
	h.deliver(target, msg)
}

func (h *Hub) deliver(c *Client, msg *wire.Message) {
	select {
	case c.Send <- msg:
	default:
		h.logger.Warn("send buffer full, dropping", "type", msg.Type, "to", c.ID)
		h.metrics.dropped.WithLabelValues("buffer_full").Inc()
	}
}
