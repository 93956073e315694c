package peer

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu    sync.Mutex
	calls []string

	offerErr  error
	answerErr error
	remoteErr error
	iceErr    error

	// offerGate, when set, holds CreateOffer until it is closed.
	offerGate    chan struct{}
	offerEntered chan struct{}

	channels []*fakeChannel

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(RemoteTrack, []RemoteTrack)
	onDC    func(DataChannel)
	onState func(webrtc.PeerConnectionState)
}

func (f *fakeConn) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeConn) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeConn) AddTrack(track webrtc.TrackLocal) error {
	f.record("add-track:" + track.ID())
	return nil
}

func (f *fakeConn) CreateOffer() (webrtc.SessionDescription, error) {
	f.record("create-offer")
	if f.offerGate != nil {
		close(f.offerEntered)
		<-f.offerGate
		defer f.record("offer-returned")
	}
	if f.offerErr != nil {
		return webrtc.SessionDescription{}, f.offerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (f *fakeConn) CreateAnswer() (webrtc.SessionDescription, error) {
	f.record("create-answer")
	if f.answerErr != nil {
		return webrtc.SessionDescription{}, f.answerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (f *fakeConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	f.record("set-remote:" + desc.Type.String())
	return f.remoteErr
}

func (f *fakeConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	f.record("add-ice")
	return f.iceErr
}

func (f *fakeConn) CreateDataChannel(label string, init *webrtc.DataChannelInit) (DataChannel, error) {
	f.record("create-data-channel")
	dc := &fakeChannel{label: label, init: init, state: webrtc.DataChannelStateConnecting}
	f.mu.Lock()
	f.channels = append(f.channels, dc)
	f.mu.Unlock()
	return dc, nil
}

func (f *fakeConn) Channel(i int) *fakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[i]
}

func (f *fakeConn) OnTrack(fn func(RemoteTrack, []RemoteTrack))                 { f.onTrack = fn }
func (f *fakeConn) OnICECandidate(fn func(webrtc.ICECandidateInit))             { f.onICE = fn }
func (f *fakeConn) OnDataChannel(fn func(DataChannel))                          { f.onDC = fn }
func (f *fakeConn) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) { f.onState = fn }

func (f *fakeConn) Close() error {
	f.record("close")
	return nil
}

type fakeChannel struct {
	mu     sync.Mutex
	label  string
	init   *webrtc.DataChannelInit
	state  webrtc.DataChannelState
	sent   [][]byte
	texts  []string
	closed bool

	onOpen    func()
	onClose   func()
	onMessage func(webrtc.DataChannelMessage)
}

func (c *fakeChannel) Label() string { return c.label }

func (c *fakeChannel) ReadyState() webrtc.DataChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeChannel) BufferedAmount() uint64 { return 0 }

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeChannel) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *fakeChannel) OnOpen(fn func())                             { c.onOpen = fn }
func (c *fakeChannel) OnClose(fn func())                            { c.onClose = fn }
func (c *fakeChannel) OnMessage(fn func(webrtc.DataChannelMessage)) { c.onMessage = fn }

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.state = webrtc.DataChannelStateClosed
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) open() {
	c.mu.Lock()
	c.state = webrtc.DataChannelStateOpen
	c.mu.Unlock()
	c.onOpen()
}

type signal struct {
	kind string
	to   string
	desc webrtc.SessionDescription
}

type fakeSignaler struct {
	mu   sync.Mutex
	sent []signal
}

func (s *fakeSignaler) add(sig signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sig)
	return nil
}

func (s *fakeSignaler) SendOffer(to string, desc webrtc.SessionDescription) error {
	return s.add(signal{kind: "offer", to: to, desc: desc})
}

func (s *fakeSignaler) SendAnswer(to string, desc webrtc.SessionDescription) error {
	return s.add(signal{kind: "answer", to: to, desc: desc})
}

func (s *fakeSignaler) SendICECandidate(to string, _ webrtc.ICECandidateInit) error {
	return s.add(signal{kind: "ice-candidate", to: to})
}

func (s *fakeSignaler) Sent() []signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]signal(nil), s.sent...)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) notify(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type fakeTrack struct {
	id     string
	stream string
	kind   webrtc.RTPCodecType
}

func (t fakeTrack) ID() string                { return t.id }
func (t fakeTrack) StreamID() string          { return t.stream }
func (t fakeTrack) Kind() webrtc.RTPCodecType { return t.kind }

type harness struct {
	session  *Session
	conn     *fakeConn
	signaler *fakeSignaler
	rec      *recorder

	// spare is handed out when the session needs a fresh connection.
	spare      *fakeConn
	replaceErr error
}

func newHarness(t *testing.T, local, remote string, role Role, tracks ...webrtc.TrackLocal) *harness {
	t.Helper()
	return newHarnessWithConn(t, local, remote, role, &fakeConn{}, tracks...)
}

func newHarnessWithConn(t *testing.T, local, remote string, role Role, conn *fakeConn, tracks ...webrtc.TrackLocal) *harness {
	t.Helper()
	h := &harness{conn: conn, signaler: &fakeSignaler{}, rec: &recorder{}, spare: &fakeConn{}}
	h.session = NewSession(Options{
		LocalID:  local,
		RemoteID: remote,
		Role:     role,
		Epoch:    7,
		Conn:     conn,
		Signaler: h.signaler,
		NewConnection: func() (Connection, error) {
			if h.replaceErr != nil {
				return nil, h.replaceErr
			}
			return h.spare, nil
		},
		LocalTracks: tracks,
		Notify:      h.rec.notify,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(func() { h.session.Close() })
	return h
}

// flush waits until every queued step has run.
func (h *harness) flush(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	h.session.enqueue(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session worker stalled")
	}
}

func localTrack(t *testing.T, kind string) webrtc.TrackLocal {
	t.Helper()
	mime := webrtc.MimeTypeOpus
	if kind == "video" {
		mime = webrtc.MimeTypeVP8
	}
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, kind, "local")
	require.NoError(t, err)
	return track
}

func eventsOf[T Event](events []Event) []T {
	var out []T
	for _, ev := range events {
		if e, ok := ev.(T); ok {
			out = append(out, e)
		}
	}
	return out
}
