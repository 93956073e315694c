package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BioHazard786/Warpcall/internal/peer"
	"github.com/BioHazard786/Warpcall/internal/signaling"
	"github.com/pion/webrtc/v4"
)

const eventBuffer = 256

// ConnectionFactory builds a fresh transport for each new session.
type ConnectionFactory func() (peer.Connection, error)

// Options configures an Orchestrator.
type Options struct {
	NewConnection ConnectionFactory
	Signaler      peer.Signaler

	// LocalTracks are attached to every session. May be empty.
	LocalTracks []webrtc.TrackLocal

	Logger *slog.Logger
}

// Orchestrator keeps at most one peer session alive and routes signaling
// events to it.
type Orchestrator struct {
	newConn  ConnectionFactory
	signaler peer.Signaler
	tracks   []webrtc.TrackLocal
	logger   *slog.Logger

	mu      sync.Mutex
	localID string
	current *peer.Session
	epoch   uint64
	stream  peer.RemoteStream

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		newConn:  opts.NewConnection,
		signaler: opts.Signaler,
		tracks:   opts.LocalTracks,
		logger:   logger,
		events:   make(chan Event, eventBuffer),
		done:     make(chan struct{}),
	}
}

// Events delivers application events in order. The channel is never
// closed; stop reading once Close was called.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// Run handles signaling events one at a time until ctx is done or the
// stream ends.
func (o *Orchestrator) Run(ctx context.Context, events <-chan signaling.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.done:
			return ErrClosed
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			o.handle(ev)
		}
	}
}

func (o *Orchestrator) handle(ev signaling.Event) {
	switch e := ev.(type) {
	case signaling.Connected:
		o.mu.Lock()
		o.localID = e.LocalID
		var stale *peer.Session
		if e.Reconnected {
			// The remote knew us by the old id; the rejoin starts over.
			stale = o.current
			o.current = nil
			o.stream = peer.RemoteStream{}
		}
		o.mu.Unlock()

		o.retire(stale)
		o.emit(Connected{LocalID: e.LocalID, Reconnected: e.Reconnected})

	case signaling.Disconnected:
		o.emit(Disconnected{Err: e.Err})

	case signaling.RelayError:
		o.logger.Warn("relay error", "message", e.Message)
		o.emit(RelayError{Message: e.Message})

	case signaling.ExistingUsers:
		for _, id := range e.IDs {
			o.initiate(id)
		}

	// The newcomer offers; members that see it join only wait for that
	// offer, so both sides never offer at once.
	case signaling.UserJoined:
		if e.ID == o.LocalID() {
			return
		}
		if _, err := o.CreateSession(e.ID, peer.Responder); err != nil {
			o.logger.Error("cannot prepare session", "remote", e.ID, "error", err)
		}

	case signaling.UserLeft:
		o.dropRemote(e.ID)

	case signaling.Offer:
		session := o.currentFor(e.From)
		if session == nil {
			var err error
			session, err = o.CreateSession(e.From, peer.Responder)
			if err != nil {
				o.logger.Error("cannot answer offer", "from", e.From, "error", err)
				return
			}
		}
		session.HandleOffer(e.Description)

	case signaling.Answer:
		if session := o.currentFor(e.From); session != nil {
			session.HandleAnswer(e.Description)
			return
		}
		o.logger.Debug("dropping answer from non-current remote", "from", e.From)

	case signaling.ICECandidate:
		if session := o.currentFor(e.From); session != nil {
			session.HandleICECandidate(e.Candidate)
			return
		}
		o.logger.Debug("dropping candidate from non-current remote", "from", e.From)
	}
}

func (o *Orchestrator) initiate(remote string) {
	if remote == o.LocalID() {
		return
	}
	session, created, err := o.createSession(remote, peer.Initiator)
	if err != nil {
		o.logger.Error("cannot start session", "remote", remote, "error", err)
		return
	}
	if created {
		session.Start()
	}
}

// CreateSession returns the session for remote. A session for any other
// remote is closed first and the remote stream is cleared. A session that
// already exists for remote is returned unchanged.
func (o *Orchestrator) CreateSession(remote string, role peer.Role) (*peer.Session, error) {
	session, _, err := o.createSession(remote, role)
	return session, err
}

func (o *Orchestrator) createSession(remote string, role peer.Role) (*peer.Session, bool, error) {
	o.mu.Lock()
	if o.closed() {
		o.mu.Unlock()
		return nil, false, ErrClosed
	}
	if o.current != nil && o.current.RemoteID() == remote {
		session := o.current
		o.mu.Unlock()
		return session, false, nil
	}

	replaced := o.current
	o.current = nil
	o.stream = peer.RemoteStream{}

	conn, err := o.newConn()
	if err != nil {
		o.mu.Unlock()
		o.retire(replaced)
		return nil, false, NewError("create connection", remote, err)
	}

	o.epoch++
	session := peer.NewSession(peer.Options{
		LocalID:     o.localID,
		RemoteID:    remote,
		Role:        role,
		Epoch:       o.epoch,
		Conn:        conn,
		Signaler:    o.signaler,
		LocalTracks: o.tracks,
		Notify:      o.onSessionEvent,
		Logger:      o.logger.With("component", "peer"),

		NewConnection: o.newConn,
	})
	o.current = session
	o.mu.Unlock()

	o.retire(replaced)
	o.logger.Info("session created", "remote", remote, "role", role, "epoch", session.Epoch())
	o.emit(SessionStarted{RemoteID: remote, Role: role})
	return session, true, nil
}

// retire closes a session that is no longer current and reports its
// stream as cleared.
func (o *Orchestrator) retire(session *peer.Session) {
	if session == nil {
		return
	}
	if err := session.Close(); err != nil {
		o.logger.Debug("close replaced session", "remote", session.RemoteID(), "error", err)
	}
	o.emit(StreamUpdated{RemoteID: session.RemoteID()})
}

func (o *Orchestrator) dropRemote(id string) {
	o.mu.Lock()
	session := o.current
	if session == nil || session.RemoteID() != id {
		o.mu.Unlock()
		o.emit(PeerLeft{ID: id})
		return
	}
	o.current = nil
	o.stream = peer.RemoteStream{}
	o.mu.Unlock()

	o.logger.Info("remote left", "remote", id)
	o.retire(session)
	o.emit(PeerLeft{ID: id})
}

// IsCurrent reports whether session is still the one being tracked.
// Results produced for any other session must be ignored.
func (o *Orchestrator) IsCurrent(session *peer.Session) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return session != nil && o.current == session
}

// Current returns the active session, or nil.
func (o *Orchestrator) Current() *peer.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

func (o *Orchestrator) LocalID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.localID
}

// RemoteStream returns the aggregated stream of the current remote.
func (o *Orchestrator) RemoteStream() peer.RemoteStream {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stream
}

// Send writes to the current session's data channel.
func (o *Orchestrator) Send(data []byte) error {
	session := o.Current()
	if session == nil {
		return ErrNoSession
	}
	return session.Send(data)
}

// SendText writes a text message to the current session's data channel.
func (o *Orchestrator) SendText(text string) error {
	session := o.Current()
	if session == nil {
		return ErrNoSession
	}
	return session.SendText(text)
}

// BufferedAmount reports the bytes still queued on the current data
// channel.
func (o *Orchestrator) BufferedAmount() uint64 {
	session := o.Current()
	if session == nil {
		return 0
	}
	return session.BufferedAmount()
}

// Close tears down the current session and stops event delivery.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		session := o.current
		o.current = nil
		o.stream = peer.RemoteStream{}
		close(o.done)
		o.mu.Unlock()

		if session != nil {
			session.Close()
		}
	})
}

func (o *Orchestrator) currentFor(remote string) *peer.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil && o.current.RemoteID() == remote {
		return o.current
	}
	return nil
}

// onSessionEvent runs on session goroutines. Events from any session
// other than the current one are dropped.
func (o *Orchestrator) onSessionEvent(ev peer.Event) {
	origin := ev.EventOrigin()

	o.mu.Lock()
	if o.current == nil || o.current.RemoteID() != origin.RemoteID || o.current.Epoch() != origin.Epoch {
		o.mu.Unlock()
		o.logger.Debug("dropping stale session event", "remote", origin.RemoteID, "epoch", origin.Epoch, "event", ev)
		return
	}
	if e, ok := ev.(peer.RemoteStreamUpdated); ok {
		o.stream = e.Stream
	}
	o.mu.Unlock()

	switch e := ev.(type) {
	case peer.StateChanged:
		o.emit(StateChanged{RemoteID: origin.RemoteID, State: e.State, Role: e.Role})
	case peer.ConnectionStateChanged:
		o.logger.Debug("transport state", "remote", origin.RemoteID, "state", e.State.String())
		o.emit(TransportChanged{RemoteID: origin.RemoteID, State: e.State})
	case peer.RemoteStreamUpdated:
		o.emit(StreamUpdated{RemoteID: origin.RemoteID, Stream: e.Stream})
	case peer.DataChannelOpened:
		o.emit(ChannelOpened{RemoteID: origin.RemoteID, Label: e.Label})
	case peer.DataChannelClosed:
		o.emit(ChannelClosed{RemoteID: origin.RemoteID, Label: e.Label})
	case peer.DataMessage:
		o.emit(DataReceived{RemoteID: origin.RemoteID, Data: e.Data, IsString: e.IsString})
	case peer.NegotiationFailed:
		o.emit(NegotiationFailed{Err: e.Err})
	}
}

func (o *Orchestrator) emit(ev Event) {
	select {
	case o.events <- ev:
	case <-o.done:
	}
}

func (o *Orchestrator) closed() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}
