package app

import (
	"cmp"
	"slices"
	"sync"

	"github.com/dkeye/StreamRoom/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomInfo is a read-only view for APIs.
type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"member_count"`
	Streamer    *domain.UserID  `json:"streamer"`
}

// RoomSnapshot is a detached copy of one room.
type RoomSnapshot struct {
	Name     domain.RoomName `json:"name"`
	Members  []domain.Member `json:"members"`
	Streamer *domain.UserID  `json:"streamer"`
}

// JoinResult is the state observed right after a member was inserted.
type JoinResult struct {
	Room     domain.RoomName
	Member   domain.Member
	Users    []domain.Member
	Streamer *domain.UserID
	// Others excludes the joiner.
	Others []domain.UserID
	// Left is set when the member was still seated elsewhere.
	Left *LeaveResult
}

// LeaveResult describes one removal. Remaining are the members left behind.
type LeaveResult struct {
	Room        domain.RoomName
	WasStreamer bool
	Remaining   []domain.UserID
	RoomRemoved bool
}

// StreamResult carries the room members at the moment the streamer slot changed.
type StreamResult struct {
	Room       domain.RoomName
	Demoted    *domain.UserID
	Recipients []domain.UserID
}

// RoomManager is the room table plus the member state of every live connection.
// One mutex guards both, so each compound operation below is a single
// critical section. Nothing here sends on the network.
type RoomManager struct {
	mu      sync.Mutex
	rooms   map[domain.RoomName]*domain.Room
	members map[domain.UserID]*domain.Member
}

func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms:   make(map[domain.RoomName]*domain.Room),
		members: make(map[domain.UserID]*domain.Member),
	}
}

// Connect creates the member state for a freshly accepted connection.
func (m *RoomManager) Connect(id domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberLocked(id)
}

// Disconnect forgets the member. Callers leave the room first.
func (m *RoomManager) Disconnect(id domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mem, ok := m.members[id]; ok && mem.Room != nil {
		log.Warn().Str("module", "app.rooms").Str("sid", string(id)).Msg("disconnect while seated, forcing leave")
		m.leaveLocked(mem)
	}
	delete(m.members, id)
}

func (m *RoomManager) Member(id domain.UserID) (domain.Member, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[id]
	if !ok {
		return domain.Member{}, false
	}
	return mem.Snapshot(), true
}

func (m *RoomManager) RoomOf(id domain.UserID) (domain.RoomName, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[id]
	if !ok {
		return "", false
	}
	return mem.CurrentRoom()
}

// GetOrCreate creates the room exactly once per name.
func (m *RoomManager) GetOrCreate(name domain.RoomName) RoomInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return infoOf(m.getOrCreateLocked(name))
}

func (m *RoomManager) Get(name domain.RoomName) (RoomSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[name]
	if !ok {
		return RoomSnapshot{}, false
	}
	return RoomSnapshot{
		Name:     room.Name,
		Members:  membersOf(room),
		Streamer: copyID(room.Streamer),
	}, true
}

// RemoveIfEmpty deletes the room when nobody is left in it.
func (m *RoomManager) RemoveIfEmpty(name domain.RoomName) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeIfEmptyLocked(name)
}

// Members returns the identities seated in name at call time.
func (m *RoomManager) Members(name domain.RoomName) []domain.UserID {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[name]
	if !ok {
		return nil
	}
	return idsOf(room, "")
}

// Join seats id in name. confirm runs inside the critical section so the
// joiner's confirmation is queued before any later change to the room can be
// observed; it must not block.
func (m *RoomManager) Join(id domain.UserID, name domain.RoomName, confirm func(JoinResult)) JoinResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	mem := m.memberLocked(id)
	var left *LeaveResult
	if mem.Room != nil {
		res := m.leaveLocked(mem)
		left = &res
	}

	room := m.getOrCreateLocked(name)
	mem.SetRoom(name)
	mem.IsStreaming = false
	room.Members[id] = mem

	res := JoinResult{
		Room:     name,
		Member:   mem.Snapshot(),
		Users:    membersOf(room),
		Streamer: copyID(room.Streamer),
		Others:   idsOf(room, id),
		Left:     left,
	}
	log.Info().Str("module", "app.rooms").Str("sid", string(id)).Str("room", string(name)).Int("members", len(room.Members)).Msg("member joined")

	if confirm != nil {
		confirm(res)
	}
	return res
}

// Leave takes id out of its room. ok is false when it was not seated.
func (m *RoomManager) Leave(id domain.UserID) (LeaveResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[id]
	if !ok || mem.Room == nil {
		return LeaveResult{}, false
	}
	return m.leaveLocked(mem), true
}

// StartStream makes id the streamer of its room, demoting any previous one.
func (m *RoomManager) StartStream(id domain.UserID) (StreamResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, room, ok := m.seatLocked(id)
	if !ok {
		return StreamResult{}, false
	}

	var demoted *domain.UserID
	if room.Streamer != nil && *room.Streamer != id {
		if prev, ok := room.Members[*room.Streamer]; ok {
			prev.IsStreaming = false
		}
		demoted = copyID(room.Streamer)
	}
	room.SetStreamer(id)
	mem.IsStreaming = true

	log.Info().Str("module", "app.rooms").Str("sid", string(id)).Str("room", string(room.Name)).Msg("stream started")
	return StreamResult{Room: room.Name, Demoted: demoted, Recipients: idsOf(room, "")}, true
}

// StopStream clears the streamer slot, only when id holds it.
func (m *RoomManager) StopStream(id domain.UserID) (StreamResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, room, ok := m.seatLocked(id)
	if !ok || !room.IsStreamer(id) {
		return StreamResult{}, false
	}
	room.ClearStreamer()
	mem.IsStreaming = false

	log.Info().Str("module", "app.rooms").Str("sid", string(id)).Str("room", string(room.Name)).Msg("stream stopped")
	return StreamResult{Room: room.Name, Recipients: idsOf(room, "")}, true
}

func (m *RoomManager) List() []RoomInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, infoOf(r))
	}
	slices.SortFunc(out, func(a, b RoomInfo) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

func (m *RoomManager) Stats() (rooms, members int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms), len(m.members)
}

func (m *RoomManager) memberLocked(id domain.UserID) *domain.Member {
	if mem, ok := m.members[id]; ok {
		return mem
	}
	mem := domain.NewMember(id)
	m.members[id] = mem
	return mem
}

func (m *RoomManager) seatLocked(id domain.UserID) (*domain.Member, *domain.Room, bool) {
	mem, ok := m.members[id]
	if !ok || mem.Room == nil {
		return nil, nil, false
	}
	room, ok := m.rooms[*mem.Room]
	if !ok {
		return nil, nil, false
	}
	return mem, room, true
}

func (m *RoomManager) getOrCreateLocked(name domain.RoomName) *domain.Room {
	if room, ok := m.rooms[name]; ok {
		return room
	}
	room := domain.NewRoom(name)
	m.rooms[name] = room
	log.Info().Str("module", "app.rooms").Str("room", string(name)).Msg("room created")
	return room
}

func (m *RoomManager) removeIfEmptyLocked(name domain.RoomName) bool {
	room, ok := m.rooms[name]
	if !ok || !room.Empty() {
		return false
	}
	delete(m.rooms, name)
	log.Info().Str("module", "app.rooms").Str("room", string(name)).Msg("room removed")
	return true
}

func (m *RoomManager) leaveLocked(mem *domain.Member) LeaveResult {
	name, _ := mem.CurrentRoom()
	res := LeaveResult{Room: name}

	if room, ok := m.rooms[name]; ok {
		delete(room.Members, mem.ID)
		if room.IsStreamer(mem.ID) {
			room.ClearStreamer()
			res.WasStreamer = true
		}
		res.Remaining = idsOf(room, "")
		res.RoomRemoved = m.removeIfEmptyLocked(name)
	}
	mem.ClearRoom()

	log.Info().Str("module", "app.rooms").Str("sid", string(mem.ID)).Str("room", string(name)).Bool("was_streamer", res.WasStreamer).Msg("member left")
	return res
}

func infoOf(r *domain.Room) RoomInfo {
	return RoomInfo{Name: r.Name, MemberCount: len(r.Members), Streamer: copyID(r.Streamer)}
}

func membersOf(r *domain.Room) []domain.Member {
	out := make([]domain.Member, 0, len(r.Members))
	for _, mem := range r.Members {
		out = append(out, mem.Snapshot())
	}
	slices.SortFunc(out, func(a, b domain.Member) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func idsOf(r *domain.Room, exclude domain.UserID) []domain.UserID {
	out := make([]domain.UserID, 0, len(r.Members))
	for id := range r.Members {
		if id == exclude {
			continue
		}
		out = append(out, id)
	}
	return out
}

func copyID(id *domain.UserID) *domain.UserID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
