package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/Warpcall/internal/peer"
	"github.com/BioHazard786/Warpcall/internal/signaling"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	calls  []string
	closed bool
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

func (f *fakeConn) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) AddTrack(webrtc.TrackLocal) error { return nil }

func (f *fakeConn) CreateOffer() (webrtc.SessionDescription, error) {
	f.record("create-offer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer"}, nil
}

func (f *fakeConn) CreateAnswer() (webrtc.SessionDescription, error) {
	f.record("create-answer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}, nil
}

func (f *fakeConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	f.record("set-remote:" + desc.Type.String())
	return nil
}

func (f *fakeConn) AddICECandidate(webrtc.ICECandidateInit) error {
	f.record("add-ice")
	return nil
}

func (f *fakeConn) CreateDataChannel(label string, _ *webrtc.DataChannelInit) (peer.DataChannel, error) {
	return &fakeChannel{label: label}, nil
}

func (f *fakeConn) OnTrack(func(peer.RemoteTrack, []peer.RemoteTrack))       {}
func (f *fakeConn) OnICECandidate(func(webrtc.ICECandidateInit))             {}
func (f *fakeConn) OnDataChannel(func(peer.DataChannel))                     {}
func (f *fakeConn) OnConnectionStateChange(func(webrtc.PeerConnectionState)) {}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeChannel struct {
	label string
}

func (c *fakeChannel) Label() string                             { return c.label }
func (c *fakeChannel) ReadyState() webrtc.DataChannelState       { return webrtc.DataChannelStateConnecting }
func (c *fakeChannel) BufferedAmount() uint64                    { return 0 }
func (c *fakeChannel) Send([]byte) error                         { return nil }
func (c *fakeChannel) SendText(string) error                     { return nil }
func (c *fakeChannel) OnOpen(func())                             {}
func (c *fakeChannel) OnClose(func())                            {}
func (c *fakeChannel) OnMessage(func(webrtc.DataChannelMessage)) {}
func (c *fakeChannel) Close() error                              { return nil }

type fakeTrack struct {
	id   string
	kind webrtc.RTPCodecType
}

func (t fakeTrack) ID() string                { return t.id }
func (t fakeTrack) StreamID() string          { return "remote" }
func (t fakeTrack) Kind() webrtc.RTPCodecType { return t.kind }

type sent struct {
	kind string
	to   string
}

type fakeSignaler struct {
	mu   sync.Mutex
	sent []sent
}

func (s *fakeSignaler) add(kind, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sent{kind: kind, to: to})
	return nil
}

func (s *fakeSignaler) SendOffer(to string, _ webrtc.SessionDescription) error {
	return s.add("offer", to)
}

func (s *fakeSignaler) SendAnswer(to string, _ webrtc.SessionDescription) error {
	return s.add("answer", to)
}

func (s *fakeSignaler) SendICECandidate(to string, _ webrtc.ICECandidateInit) error {
	return s.add("ice-candidate", to)
}

func (s *fakeSignaler) Sent() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sent(nil), s.sent...)
}

type fixture struct {
	orch     *Orchestrator
	signaler *fakeSignaler

	mu    sync.Mutex
	conns []*fakeConn
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{signaler: &fakeSignaler{}}
	f.orch = New(Options{
		NewConnection: func() (peer.Connection, error) {
			conn := &fakeConn{}
			f.mu.Lock()
			f.conns = append(f.conns, conn)
			f.mu.Unlock()
			return conn, nil
		},
		Signaler: f.signaler,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(f.orch.Close)
	return f
}

func (f *fixture) conn(i int) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[i]
}

func (f *fixture) connCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

// run feeds evs through Run and waits until they were all handled.
func (f *fixture) run(t *testing.T, evs ...signaling.Event) {
	t.Helper()
	ch := make(chan signaling.Event, len(evs))
	for _, ev := range evs {
		ch <- ev
	}
	close(ch)
	require.NoError(t, f.orch.Run(context.Background(), ch))
}

func waitFor[T Event](t *testing.T, o *Orchestrator) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-o.Events():
			if e, ok := ev.(T); ok {
				return e
			}
		case <-deadline:
			var zero T
			t.Fatalf("no %T event", zero)
			return zero
		}
	}
}

func TestCreateSessionReplacesOtherRemote(t *testing.T) {
	f := newFixture(t)

	first, err := f.orch.CreateSession("bob", peer.Initiator)
	require.NoError(t, err)
	second, err := f.orch.CreateSession("carol", peer.Initiator)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, peer.StateClosed, first.State())
	assert.True(t, f.conn(0).Closed())
	assert.False(t, f.conn(1).Closed())
	assert.False(t, f.orch.IsCurrent(first))
	assert.True(t, f.orch.IsCurrent(second))
	assert.True(t, f.orch.RemoteStream().Empty())
	assert.Greater(t, second.Epoch(), first.Epoch())
}

func TestCreateSessionKeepsSameRemote(t *testing.T) {
	f := newFixture(t)

	first, err := f.orch.CreateSession("bob", peer.Initiator)
	require.NoError(t, err)
	again, err := f.orch.CreateSession("bob", peer.Responder)
	require.NoError(t, err)

	assert.Same(t, first, again)
	assert.Equal(t, 1, f.connCount())
	assert.False(t, f.conn(0).Closed())
	assert.Equal(t, peer.Initiator, again.Role())
}

func TestExistingUsersStartsInitiator(t *testing.T) {
	f := newFixture(t)
	f.run(t,
		signaling.Connected{LocalID: "alice"},
		signaling.ExistingUsers{RoomID: "room", IDs: []string{"bob"}},
	)

	started := waitFor[SessionStarted](t, f.orch)
	assert.Equal(t, SessionStarted{RemoteID: "bob", Role: peer.Initiator}, started)
	require.Eventually(t, func() bool {
		sigs := f.signaler.Sent()
		return len(sigs) == 1 && sigs[0] == sent{kind: "offer", to: "bob"}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestUserJoinedWaitsForOffer(t *testing.T) {
	f := newFixture(t)
	f.run(t,
		signaling.Connected{LocalID: "alice"},
		signaling.UserJoined{ID: "bob"},
	)

	started := waitFor[SessionStarted](t, f.orch)
	assert.Equal(t, SessionStarted{RemoteID: "bob", Role: peer.Responder}, started)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.signaler.Sent())
	assert.Empty(t, f.conn(0).Calls())

	// The newcomer's offer is answered on the prepared session.
	f.run(t, signaling.Offer{From: "bob", Description: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "x"}})
	require.Eventually(t, func() bool {
		sigs := f.signaler.Sent()
		return len(sigs) == 1 && sigs[0] == sent{kind: "answer", to: "bob"}
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.connCount())
}

func TestReconnectDropsSession(t *testing.T) {
	f := newFixture(t)
	f.run(t,
		signaling.Connected{LocalID: "alice"},
		signaling.ExistingUsers{RoomID: "room", IDs: []string{"bob"}},
	)
	old := f.orch.Current()
	require.NotNil(t, old)

	f.run(t,
		signaling.Connected{LocalID: "alice-2", Reconnected: true},
		signaling.ExistingUsers{RoomID: "room", IDs: []string{"bob"}},
	)

	assert.Equal(t, peer.StateClosed, old.State())
	assert.True(t, f.conn(0).Closed())
	current := f.orch.Current()
	require.NotNil(t, current)
	assert.NotSame(t, old, current)
	assert.Equal(t, "bob", current.RemoteID())
	assert.Equal(t, "alice-2", f.orch.LocalID())
	require.Eventually(t, func() bool {
		return len(f.conn(1).Calls()) > 0 && f.conn(1).Calls()[0] == "create-offer"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTransportStateIsReported(t *testing.T) {
	f := newFixture(t)
	session, err := f.orch.CreateSession("bob", peer.Responder)
	require.NoError(t, err)

	origin := peer.Origin{RemoteID: "bob", Epoch: session.Epoch()}
	f.orch.onSessionEvent(peer.ConnectionStateChanged{Origin: origin, State: webrtc.PeerConnectionStateDisconnected})

	got := waitFor[TransportChanged](t, f.orch)
	assert.Equal(t, TransportChanged{RemoteID: "bob", State: webrtc.PeerConnectionStateDisconnected}, got)
}

func TestUserJoinedIgnoresSelf(t *testing.T) {
	f := newFixture(t)
	f.run(t,
		signaling.Connected{LocalID: "alice"},
		signaling.UserJoined{ID: "alice"},
	)
	assert.Nil(t, f.orch.Current())
	assert.Zero(t, f.connCount())
}

func TestOfferCreatesResponder(t *testing.T) {
	f := newFixture(t)
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "remote-offer"}
	f.run(t,
		signaling.Connected{LocalID: "alice"},
		signaling.Offer{From: "bob", Description: offer},
	)

	require.Eventually(t, func() bool {
		sigs := f.signaler.Sent()
		return len(sigs) == 1 && sigs[0] == sent{kind: "answer", to: "bob"}
	}, 2*time.Second, 5*time.Millisecond)

	session := f.orch.Current()
	require.NotNil(t, session)
	assert.Equal(t, "bob", session.RemoteID())
	assert.Equal(t, peer.Responder, session.Role())
	assert.Equal(t, []string{"set-remote:offer", "create-answer"}, f.conn(0).Calls())
}

func TestOfferFromNewRemoteReplacesSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.CreateSession("bob", peer.Initiator)
	require.NoError(t, err)

	f.run(t, signaling.Offer{From: "carol", Description: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "x"}})

	assert.True(t, f.conn(0).Closed())
	assert.Equal(t, "carol", f.orch.Current().RemoteID())
}

func TestSignalsFromOtherRemotesAreDropped(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.CreateSession("bob", peer.Initiator)
	require.NoError(t, err)

	f.run(t,
		signaling.Answer{From: "mallory", Description: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "x"}},
		signaling.ICECandidate{From: "mallory", Candidate: webrtc.ICECandidateInit{Candidate: "c"}},
	)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.conn(0).Calls())
}

func TestCandidateForwardedToCurrentRemote(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.CreateSession("bob", peer.Responder)
	require.NoError(t, err)

	f.run(t, signaling.ICECandidate{From: "bob", Candidate: webrtc.ICECandidateInit{Candidate: "c"}})
	require.Eventually(t, func() bool {
		calls := f.conn(0).Calls()
		return len(calls) == 1 && calls[0] == "add-ice"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestUserLeftClosesSession(t *testing.T) {
	f := newFixture(t)
	session, err := f.orch.CreateSession("bob", peer.Initiator)
	require.NoError(t, err)

	f.run(t, signaling.UserLeft{ID: "bob"})

	assert.Equal(t, PeerLeft{ID: "bob"}, waitFor[PeerLeft](t, f.orch))
	assert.Equal(t, peer.StateClosed, session.State())
	assert.Nil(t, f.orch.Current())
	assert.True(t, f.orch.RemoteStream().Empty())
}

func TestUserLeftForOtherRemoteKeepsSession(t *testing.T) {
	f := newFixture(t)
	session, err := f.orch.CreateSession("bob", peer.Initiator)
	require.NoError(t, err)

	f.run(t, signaling.UserLeft{ID: "carol"})
	assert.True(t, f.orch.IsCurrent(session))
	assert.False(t, f.conn(0).Closed())
}

func TestStaleSessionEventsAreDropped(t *testing.T) {
	f := newFixture(t)
	old, err := f.orch.CreateSession("bob", peer.Initiator)
	require.NoError(t, err)
	current, err := f.orch.CreateSession("carol", peer.Initiator)
	require.NoError(t, err)

	stale := peer.Origin{RemoteID: old.RemoteID(), Epoch: old.Epoch()}
	f.orch.onSessionEvent(peer.DataMessage{Origin: stale, Data: []byte("old")})

	fresh := peer.Origin{RemoteID: current.RemoteID(), Epoch: current.Epoch()}
	f.orch.onSessionEvent(peer.DataMessage{Origin: fresh, Data: []byte("new")})

	got := waitFor[DataReceived](t, f.orch)
	assert.Equal(t, DataReceived{RemoteID: "carol", Data: []byte("new")}, got)
}

func TestRemoteStreamFollowsCurrentSession(t *testing.T) {
	f := newFixture(t)
	session, err := f.orch.CreateSession("bob", peer.Responder)
	require.NoError(t, err)

	stream := peer.RemoteStream{Tracks: []peer.RemoteTrack{
		fakeTrack{id: "a", kind: webrtc.RTPCodecTypeAudio},
		fakeTrack{id: "v", kind: webrtc.RTPCodecTypeVideo},
	}}
	origin := peer.Origin{RemoteID: "bob", Epoch: session.Epoch()}
	f.orch.onSessionEvent(peer.RemoteStreamUpdated{Origin: origin, Stream: stream})
	assert.Equal(t, []string{"a", "v"}, f.orch.RemoteStream().IDs())

	// Replacing the session clears what the old remote sent.
	_, err = f.orch.CreateSession("carol", peer.Responder)
	require.NoError(t, err)
	assert.True(t, f.orch.RemoteStream().Empty())
}

func TestSendWithoutSession(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.orch.Send([]byte("x")), ErrNoSession)
	assert.ErrorIs(t, f.orch.SendText("x"), ErrNoSession)
}

func TestSendBeforeChannelOpens(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.CreateSession("bob", peer.Responder)
	require.NoError(t, err)
	assert.ErrorIs(t, f.orch.Send([]byte("x")), peer.ErrChannelNotOpen)
}

func TestCloseRejectsNewSessions(t *testing.T) {
	f := newFixture(t)
	session, err := f.orch.CreateSession("bob", peer.Initiator)
	require.NoError(t, err)

	f.orch.Close()
	assert.Equal(t, peer.StateClosed, session.State())

	_, err = f.orch.CreateSession("carol", peer.Initiator)
	assert.ErrorIs(t, err, ErrClosed)
}
