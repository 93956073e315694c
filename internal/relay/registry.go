package relay

import (
	"errors"
	"sort"
	"sync"
)

var ErrEmptyRoomID = errors.New("room id required")

// Departure describes a participant leaving a room. Remaining is empty when
// the departure deleted the room.
type Departure struct {
	RoomID    string
	Remaining []string
}

// Registry is the authoritative room → participant mapping. It does no I/O;
// callers turn the returned member lists into notifications.
type Registry struct {
	mu sync.Mutex

	// rooms maps a room ID to its member set. A room is removed as soon as
	// its last member leaves.
	rooms map[string]map[string]struct{}

	// membership maps a participant to the one room it is in.
	membership map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:      make(map[string]map[string]struct{}),
		membership: make(map[string]string),
	}
}

// Join adds participant to roomID, creating the room if needed, and returns
// the members that were already present. A participant already in another
// room leaves it first; that departure is returned so the old room can be
// told.
func (r *Registry) Join(roomID, participant string) (existing []string, left *Departure, err error) {
	if roomID == "" {
		return nil, nil, ErrEmptyRoomID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.membership[participant]; ok {
		if current == roomID {
			return r.othersLocked(roomID, participant), nil, nil
		}
		left = r.leaveLocked(participant)
	}

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}
	existing = sortedKeys(members)
	members[participant] = struct{}{}
	r.membership[participant] = roomID

	return existing, left, nil
}

// Leave removes participant from its room. It returns nil when the
// participant was not in a room.
func (r *Registry) Leave(participant string) *Departure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(participant)
}

func (r *Registry) leaveLocked(participant string) *Departure {
	roomID, ok := r.membership[participant]
	if !ok {
		return nil
	}
	delete(r.membership, participant)

	members := r.rooms[roomID]
	delete(members, participant)
	if len(members) == 0 {
		delete(r.rooms, roomID)
		return &Departure{RoomID: roomID}
	}
	return &Departure{RoomID: roomID, Remaining: sortedKeys(members)}
}

func (r *Registry) othersLocked(roomID, participant string) []string {
	others := make([]string, 0, len(r.rooms[roomID]))
	for id := range r.rooms[roomID] {
		if id != participant {
			others = append(others, id)
		}
	}
	sort.Strings(others)
	return others
}

// RoomOf returns the room participant is in.
func (r *Registry) RoomOf(participant string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roomID, ok := r.membership[participant]
	return roomID, ok
}

// Members returns the sorted member list of roomID, or nil if the room does
// not exist.
func (r *Registry) Members(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return sortedKeys(members)
}

// Counts returns the number of live rooms and of participants in them.
func (r *Registry) Counts() (rooms, participants int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms), len(r.membership)
}

// RoomStats is a point-in-time view of one room.
type RoomStats struct {
	ID      string `json:"id"`
	Members int    `json:"members"`
}

// Snapshot lists every live room ordered by ID.
func (r *Registry) Snapshot() []RoomStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make([]RoomStats, 0, len(r.rooms))
	for id, members := range r.rooms {
		stats = append(stats, RoomStats{ID: id, Members: len(members)})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].ID < stats[j].ID })
	return stats
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
