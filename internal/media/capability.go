package media

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
)

var (
	ErrAccessDenied = errors.New("media access denied")
	ErrUnsupported  = errors.New("unsupported media file")
)

// StreamID groups every local track into one remote stream.
const StreamID = "warpcall"

// Capability provides the local tracks a session attaches before it
// negotiates.
type Capability interface {
	Tracks() []webrtc.TrackLocal
	SetEnabled(kind webrtc.RTPCodecType, enabled bool)
	Enabled(kind webrtc.RTPCodecType) bool
}

// None is a Capability without any local media.
type None struct{}

func (None) Tracks() []webrtc.TrackLocal          { return nil }
func (None) SetEnabled(webrtc.RTPCodecType, bool) {}
func (None) Enabled(webrtc.RTPCodecType) bool     { return false }

// switches holds the per-kind enable flags. A disabled kind keeps its
// track but stops writing samples.
type switches struct {
	mu      sync.RWMutex
	enabled map[webrtc.RTPCodecType]bool
}

func newSwitches() *switches {
	return &switches{enabled: map[webrtc.RTPCodecType]bool{
		webrtc.RTPCodecTypeAudio: true,
		webrtc.RTPCodecTypeVideo: true,
	}}
}

func (s *switches) set(kind webrtc.RTPCodecType, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled[kind] = enabled
}

func (s *switches) get(kind webrtc.RTPCodecType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled[kind]
}
