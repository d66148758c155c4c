package domain

type RoomName string

func (n RoomName) String() string { return string(n) }

// Room is a named group of members with at most one streamer.
// The streamer, when set, is always a key of Members.
type Room struct {
	Name     RoomName
	Members  map[UserID]*Member
	Streamer *UserID
}

func NewRoom(name RoomName) *Room {
	return &Room{
		Name:    name,
		Members: make(map[UserID]*Member),
	}
}

func (r *Room) Empty() bool { return len(r.Members) == 0 }

// IsStreamer reports whether id holds the streamer slot.
func (r *Room) IsStreamer(id UserID) bool {
	return r.Streamer != nil && *r.Streamer == id
}

func (r *Room) SetStreamer(id UserID) { r.Streamer = &id }

func (r *Room) ClearStreamer() { r.Streamer = nil }
