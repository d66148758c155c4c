package domain

// Member is the session state of one connection: where it sits and whether it streams.
// No transport or lifecycle logic here.
type Member struct {
	ID          UserID    `json:"id"`
	Room        *RoomName `json:"room"`
	IsStreaming bool      `json:"is_streaming"`
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(id UserID) *Member {
	return &Member{ID: id}
}

// CurrentRoom returns the room the member is in, if any.
func (m *Member) CurrentRoom() (RoomName, bool) {
	if m.Room == nil {
		return "", false
	}
	return *m.Room, true
}

func (m *Member) SetRoom(name RoomName) {
	m.Room = &name
}

func (m *Member) ClearRoom() {
	m.Room = nil
	m.IsStreaming = false
}

// Snapshot returns a detached copy safe to hand out after a lock is released.
func (m *Member) Snapshot() Member {
	out := Member{ID: m.ID, IsStreaming: m.IsStreaming}
	if m.Room != nil {
		name := *m.Room
		out.Room = &name
	}
	return out
}
