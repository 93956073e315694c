package peer

import (
	"sort"

	"github.com/pion/webrtc/v4"
)

// TrackSet accumulates remote tracks keyed by track id. It is not safe for
// concurrent use; a Session only touches it from its worker.
type TrackSet struct {
	tracks map[string]RemoteTrack
}

func NewTrackSet() *TrackSet {
	return &TrackSet{tracks: make(map[string]RemoteTrack)}
}

// Add records tracks and reports whether any id was new.
func (s *TrackSet) Add(tracks ...RemoteTrack) bool {
	added := false
	for _, t := range tracks {
		if t == nil {
			continue
		}
		if _, ok := s.tracks[t.ID()]; ok {
			continue
		}
		s.tracks[t.ID()] = t
		added = true
	}
	return added
}

func (s *TrackSet) Len() int {
	return len(s.tracks)
}

func (s *TrackSet) Clear() {
	s.tracks = make(map[string]RemoteTrack)
}

// Stream rebuilds the remote stream from every track in the set. The
// result does not depend on arrival order.
func (s *TrackSet) Stream() RemoteStream {
	tracks := make([]RemoteTrack, 0, len(s.tracks))
	for _, t := range s.tracks {
		tracks = append(tracks, t)
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].ID() < tracks[j].ID() })
	return RemoteStream{Tracks: tracks}
}

// RemoteStream is an immutable snapshot of a remote participant's tracks.
type RemoteStream struct {
	Tracks []RemoteTrack
}

func (r RemoteStream) Empty() bool {
	return len(r.Tracks) == 0
}

func (r RemoteStream) IDs() []string {
	ids := make([]string, len(r.Tracks))
	for i, t := range r.Tracks {
		ids[i] = t.ID()
	}
	return ids
}

// Count returns how many tracks of kind the stream carries.
func (r RemoteStream) Count(kind webrtc.RTPCodecType) int {
	n := 0
	for _, t := range r.Tracks {
		if t.Kind() == kind {
			n++
		}
	}
	return n
}
