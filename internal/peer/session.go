package peer

import (
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
)

const (
	// DataChannelLabel is the label of the channel the initiator opens.
	DataChannelLabel = "fileTransfer"

	// maxRetransmits bounds delivery attempts per message on the data
	// channel. Once exhausted the message is lost.
	maxRetransmits = 30

	opQueueSize = 128
)

// Options configures a Session.
type Options struct {
	LocalID  string
	RemoteID string
	Role     Role
	Epoch    uint64

	Conn     Connection
	Signaler Signaler

	// NewConnection supplies a fresh transport when an offer collision
	// forces this side to abandon its own offer.
	NewConnection func() (Connection, error)

	// LocalTracks are attached before any SDP is generated. May be empty.
	LocalTracks []webrtc.TrackLocal

	// Notify receives every session event. It is called from the session
	// worker and from data channel callbacks and must not block for long.
	Notify func(Event)

	Logger *slog.Logger
}

// Session negotiates one WebRTC connection with one remote participant.
// Negotiation steps run in FIFO order on the session's own worker.
type Session struct {
	localID  string
	remoteID string
	epoch    uint64

	signaler Signaler
	newConn  func() (Connection, error)
	local    []webrtc.TrackLocal
	notify   func(Event)
	logger   *slog.Logger

	// Owned by the worker.
	tracks         *TrackSet
	tracksAttached bool
	remoteApplied  bool

	mu    sync.Mutex
	conn  Connection // swapped only by the worker
	state State
	role  Role
	dc    DataChannel

	ops       chan func()
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession wires the connection callbacks and starts the worker. An
// initiator still needs Start to send its offer.
func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notify := opts.Notify
	if notify == nil {
		notify = func(Event) {}
	}

	s := &Session{
		localID:  opts.LocalID,
		remoteID: opts.RemoteID,
		epoch:    opts.Epoch,
		conn:     opts.Conn,
		signaler: opts.Signaler,
		newConn:  opts.NewConnection,
		local:    opts.LocalTracks,
		notify:   notify,
		logger:   logger.With("remote", opts.RemoteID, "epoch", opts.Epoch),
		tracks:   NewTrackSet(),
		state:    StateNew,
		role:     opts.Role,
		ops:      make(chan func(), opQueueSize),
		done:     make(chan struct{}),
	}

	s.wire(opts.Conn)

	go s.worker()
	return s
}

// wire routes conn's callbacks into the session. Callbacks of a connection
// that has since been replaced are ignored.
func (s *Session) wire(conn Connection) {
	conn.OnICECandidate(func(candidate webrtc.ICECandidateInit) {
		if s.owns(conn) {
			s.onICECandidate(candidate)
		}
	})
	conn.OnTrack(func(track RemoteTrack, grouped []RemoteTrack) {
		s.enqueue(func() {
			if s.conn == conn {
				s.addRemoteTracks(track, grouped)
			}
		})
	})
	conn.OnDataChannel(func(dc DataChannel) {
		s.enqueue(func() {
			if s.conn != conn {
				dc.Close()
				return
			}
			s.adoptDataChannel(dc)
		})
	})
	conn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.enqueue(func() {
			if s.conn == conn {
				s.onConnectionState(state)
			}
		})
	})
}

func (s *Session) owns(conn Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn == conn
}

// RemoteID is the participant this session negotiates with.
func (s *Session) RemoteID() string { return s.remoteID }

// Epoch tells this session apart from earlier ones with the same remote.
func (s *Session) Epoch() uint64 { return s.epoch }

// State is the negotiation state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Role is Initiator until the session answers a remote offer.
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Start makes an initiator attach its tracks, open the data channel and
// send the first offer.
func (s *Session) Start() {
	s.enqueue(s.startNegotiation)
}

// HandleOffer applies a remote offer and answers it.
func (s *Session) HandleOffer(desc webrtc.SessionDescription) {
	s.enqueue(func() { s.acceptOffer(desc) })
}

// HandleAnswer applies the remote answer to our offer.
func (s *Session) HandleAnswer(desc webrtc.SessionDescription) {
	s.enqueue(func() { s.acceptAnswer(desc) })
}

// HandleICECandidate hands a remote candidate straight to the connection.
// Candidates that arrive before the remote description are not buffered.
func (s *Session) HandleICECandidate(candidate webrtc.ICECandidateInit) {
	s.enqueue(func() {
		if err := s.conn.AddICECandidate(candidate); err != nil {
			s.fail("add ice candidate", err, false)
		}
	})
}

// Send writes a binary message to the data channel.
func (s *Session) Send(data []byte) error {
	dc, err := s.openChannel()
	if err != nil {
		return err
	}
	return dc.Send(data)
}

// SendText writes a text message to the data channel.
func (s *Session) SendText(text string) error {
	dc, err := s.openChannel()
	if err != nil {
		return err
	}
	return dc.SendText(text)
}

// BufferedAmount is how many bytes are queued on the data channel and not
// yet handed to the transport. It is zero when no channel is open.
func (s *Session) BufferedAmount() uint64 {
	dc, err := s.openChannel()
	if err != nil {
		return 0
	}
	return dc.BufferedAmount()
}

// Close closes the data channel, then the connection, then stops the
// worker. Steps already running finish but their results are discarded.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		dc := s.dc
		s.dc = nil
		s.state = StateClosed
		role := s.role
		conn := s.conn
		s.mu.Unlock()

		if dc != nil {
			if cerr := dc.Close(); cerr != nil {
				s.logger.Debug("close data channel", "error", cerr)
			}
		}
		err = conn.Close()
		close(s.done)

		s.logger.Info("session closed")
		s.notify(StateChanged{Origin: s.origin(), State: StateClosed, Role: role})
	})
	return err
}

func (s *Session) origin() Origin {
	return Origin{RemoteID: s.remoteID, Epoch: s.epoch}
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) enqueue(op func()) {
	select {
	case <-s.done:
	case s.ops <- op:
	}
}

func (s *Session) worker() {
	for {
		select {
		case <-s.done:
			return
		case op := <-s.ops:
			if s.closed() {
				return
			}
			op()
		}
	}
}

// setState moves to next and reports it. Closed sessions do not move.
func (s *Session) setState(next State) {
	s.mu.Lock()
	if s.state == StateClosed || s.state == next {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = next
	role := s.role
	s.mu.Unlock()

	s.logger.Debug("state change", "from", prev, "to", next, "role", role)
	s.notify(StateChanged{Origin: s.origin(), State: next, Role: role})
}

// fail reports a negotiation error. SDP failures park the session in
// FAILED; candidate failures leave the state alone.
func (s *Session) fail(op string, err error, sdp bool) {
	if s.closed() {
		return
	}
	nerr := NewNegotiationError(op, s.remoteID, err)
	s.logger.Warn("negotiation step failed", "op", op, "error", err)
	if sdp {
		s.setState(StateFailed)
	}
	s.notify(NegotiationFailed{Origin: s.origin(), Err: nerr})
}

func (s *Session) attachTracks() {
	if s.tracksAttached {
		return
	}
	s.tracksAttached = true
	for _, t := range s.local {
		if err := s.conn.AddTrack(t); err != nil {
			s.logger.Warn("attach local track", "track", t.ID(), "error", err)
		}
	}
	if len(s.local) == 0 {
		s.logger.Debug("negotiating without local media")
	}
}

func (s *Session) startNegotiation() {
	if s.Role() != Initiator {
		s.logger.Debug("start ignored", "error", ErrWrongRole)
		return
	}
	if s.State() != StateNew {
		return
	}

	s.attachTracks()

	ordered := true
	retransmits := uint16(maxRetransmits)
	dc, err := s.conn.CreateDataChannel(DataChannelLabel, &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &retransmits,
	})
	if err != nil {
		s.fail("create data channel", err, true)
		return
	}
	s.adoptDataChannel(dc)

	s.setState(StateNegotiating)
	offer, err := s.conn.CreateOffer()
	if err != nil {
		s.fail("create offer", err, true)
		return
	}
	if s.closed() {
		return
	}
	if err := s.signaler.SendOffer(s.remoteID, offer); err != nil {
		s.logger.Warn("send offer", "error", err)
	}
}

// offerPending reports whether our own offer is outstanding.
func (s *Session) offerPending() bool {
	return s.Role() == Initiator && s.State() == StateNegotiating && !s.remoteApplied
}

// polite sessions yield when both sides offer at once.
func (s *Session) polite() bool {
	return s.localID > s.remoteID
}

func (s *Session) acceptOffer(desc webrtc.SessionDescription) {
	if s.offerPending() {
		if !s.polite() {
			s.logger.Info("ignoring colliding offer")
			return
		}
		if !s.yield() {
			return
		}
	}

	switch s.State() {
	case StateNew, StateNegotiating:
	default:
		s.logger.Warn("ignoring offer", "state", s.State())
		return
	}

	s.mu.Lock()
	s.role = Responder
	s.mu.Unlock()

	s.attachTracks()
	s.setState(StateNegotiating)

	if err := s.conn.SetRemoteDescription(desc); err != nil {
		s.fail("set remote offer", err, true)
		return
	}
	s.remoteApplied = true

	answer, err := s.conn.CreateAnswer()
	if err != nil {
		s.fail("create answer", err, true)
		return
	}
	if s.closed() {
		return
	}
	if err := s.signaler.SendAnswer(s.remoteID, answer); err != nil {
		s.logger.Warn("send answer", "error", err)
	}
	s.setState(StateStable)
}

// yield abandons our pending offer so the remote's offer can be answered.
// The connection that carried our offer is replaced by a fresh one, which
// starts over without tracks, channel or remote description.
func (s *Session) yield() bool {
	s.logger.Info("offer collision, replacing connection")
	if s.newConn == nil {
		s.fail("replace connection", ErrNoConnectionFactory, true)
		return false
	}
	fresh, err := s.newConn()
	if err != nil {
		s.fail("replace connection", err, true)
		return false
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		fresh.Close()
		return false
	}
	old := s.conn
	s.conn = fresh
	dc := s.dc
	s.dc = nil
	s.mu.Unlock()

	s.wire(fresh)
	s.tracks = NewTrackSet()
	s.tracksAttached = false
	s.remoteApplied = false

	if dc != nil {
		dc.Close()
	}
	if err := old.Close(); err != nil {
		s.logger.Debug("close abandoned connection", "error", err)
	}
	return true
}

func (s *Session) acceptAnswer(desc webrtc.SessionDescription) {
	if s.Role() != Initiator || s.State() != StateNegotiating || s.remoteApplied {
		s.logger.Warn("ignoring unexpected answer", "state", s.State(), "role", s.Role())
		return
	}

	if err := s.conn.SetRemoteDescription(desc); err != nil {
		s.fail("set remote answer", err, true)
		return
	}
	s.remoteApplied = true
	s.setState(StateStable)
}

func (s *Session) onICECandidate(candidate webrtc.ICECandidateInit) {
	if s.closed() {
		return
	}
	if err := s.signaler.SendICECandidate(s.remoteID, candidate); err != nil {
		s.logger.Debug("send ice candidate", "error", err)
	}
}

func (s *Session) onConnectionState(state webrtc.PeerConnectionState) {
	s.logger.Debug("connection state", "state", state)
	s.notify(ConnectionStateChanged{Origin: s.origin(), State: state})

	if state != webrtc.PeerConnectionStateConnected {
		return
	}
	switch s.State() {
	case StateNegotiating, StateStable:
		s.setState(StateConnected)
	}
}

func (s *Session) addRemoteTracks(track RemoteTrack, grouped []RemoteTrack) {
	all := append([]RemoteTrack{track}, grouped...)
	if !s.tracks.Add(all...) {
		return
	}
	stream := s.tracks.Stream()
	s.logger.Info("remote stream updated", "tracks", len(stream.Tracks))
	s.notify(RemoteStreamUpdated{Origin: s.origin(), Stream: stream})
}

// adoptDataChannel makes dc the session's channel. A second channel is
// refused.
func (s *Session) adoptDataChannel(dc DataChannel) {
	s.mu.Lock()
	if s.dc != nil || s.state == StateClosed {
		s.mu.Unlock()
		s.logger.Warn("refusing extra data channel", "label", dc.Label())
		dc.Close()
		return
	}
	s.dc = dc
	s.mu.Unlock()

	label := dc.Label()
	dc.OnOpen(func() {
		if !s.current(dc) {
			return
		}
		s.logger.Info("data channel open", "label", label)
		s.notify(DataChannelOpened{Origin: s.origin(), Label: label})
	})
	dc.OnClose(func() {
		if !s.current(dc) {
			return
		}
		s.logger.Info("data channel closed", "label", label)
		s.notify(DataChannelClosed{Origin: s.origin(), Label: label})
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if !s.current(dc) {
			return
		}
		s.notify(DataMessage{Origin: s.origin(), Data: msg.Data, IsString: msg.IsString})
	})
}

// current reports whether dc is still this open session's channel.
func (s *Session) current(dc DataChannel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dc == dc && s.state != StateClosed
}

func (s *Session) openChannel() (DataChannel, error) {
	s.mu.Lock()
	dc := s.dc
	closed := s.state == StateClosed
	s.mu.Unlock()

	if closed {
		return nil, ErrSessionClosed
	}
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return nil, ErrChannelNotOpen
	}
	return dc, nil
}
