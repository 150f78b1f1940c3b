// Package server coordinates room membership, history, and broadcast for the
// Tempest chat server via the Hub type.
package server

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/Tyrowin/tempest/internal/protocol"
)

// Room is a named channel with an ordered member list and bounded history.
// All room-visible events (joins, leaves, chat) are serialized under mu, which
// fixes the order every member observes them in.
type Room struct {
	name    string
	seq     uint64
	mu      sync.Mutex
	members []*Session
	history *history
	closed  bool
}

// Name returns the room name.
func (r *Room) Name() string {
	return r.name
}

// Members returns "[avatar] nickname" for each member in join order.
func (r *Room) Members() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.members))
	for _, member := range r.members {
		out = append(out, member.label())
	}
	return out
}

// HistoryLen returns how many chat messages the room retains.
func (r *Room) HistoryLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history.len()
}

func (r *Room) indexLocked(s *Session) int {
	for i, member := range r.members {
		if member == s {
			return i
		}
	}
	return -1
}

// broadcastLocked queues line for every member except exclude and returns
// the members whose buffers refused it.
func (r *Room) broadcastLocked(line string, exclude *Session) []*Session {
	var failed []*Session
	for _, member := range r.members {
		if exclude != nil && member == exclude {
			continue
		}
		if !member.deliver(line) {
			failed = append(failed, member)
		}
	}
	return failed
}

func (r *Room) infoLocked() RoomInfo {
	members := make([]MemberInfo, 0, len(r.members))
	for _, member := range r.members {
		members = append(members, member.info())
	}
	return RoomInfo{Name: r.name, Members: members, HistorySize: r.history.len()}
}

// Hub is the room registry. It creates rooms on demand, deletes them when the
// last member leaves, and enforces the global room cap.
//
// Lock order is Hub.mu before Room.mu. Session locks are leaves.
type Hub struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	nextSeq uint64

	maxRooms   int
	maxHistory int
	replay     int
	logger     *slog.Logger
}

// NewHub creates an empty registry.
func NewHub(maxRooms, maxHistory, replay int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:      make(map[string]*Room),
		maxRooms:   maxRooms,
		maxHistory: maxHistory,
		replay:     replay,
		logger:     logger,
	}
}

// Join moves s into the named room, leaving its current room first (even when
// it is the same room). The joiner receives ENTERED and the recent history,
// then every member, the joiner included, receives the join notice.
//
// If the room does not exist and creating it would exceed the cap, Join
// returns ErrRoomLimit and the session stays where it was.
func (h *Hub) Join(s *Session, name string) (*Room, error) {
	h.mu.Lock()

	old := s.Room()
	if _, exists := h.rooms[name]; !exists {
		count := len(h.rooms)
		if old != nil && h.soleMember(old, s) {
			count--
		}
		if count >= h.maxRooms {
			h.mu.Unlock()
			h.logger.Warn("room limit reached", "room", name, "rooms", len(h.rooms), "max_rooms", h.maxRooms)
			return nil, ErrRoomLimit
		}
	}

	var failed []*Session
	if old != nil {
		failed = h.leaveLocked(s, old)
	}

	room, exists := h.rooms[name]
	if !exists {
		h.nextSeq++
		room = &Room{name: name, seq: h.nextSeq, history: newHistory(h.maxHistory)}
		h.rooms[name] = room
		h.logger.Info("room created", "room", name, "rooms", len(h.rooms))
	}

	room.mu.Lock()
	h.mu.Unlock()

	room.members = append(room.members, s)
	s.setRoom(room)

	nickname, avatar := s.Identity()
	s.deliver(protocol.Entered(name))
	for _, entry := range room.history.last(h.replay) {
		s.deliver(entry.Line())
	}
	failed = append(failed, room.broadcastLocked(protocol.Joined(avatar, nickname), nil)...)
	members := len(room.members)
	room.mu.Unlock()

	h.logger.Info("room joined", "room", name, "nickname", nickname, "members", members)
	dropSlow(failed)
	return room, nil
}

// Leave removes s from its current room, notifying the remaining members and
// deleting the room if it is now empty. It reports whether s was in a room.
func (h *Hub) Leave(s *Session) bool {
	h.mu.Lock()
	room := s.Room()
	if room == nil {
		h.mu.Unlock()
		return false
	}
	failed := h.leaveLocked(s, room)
	h.mu.Unlock()

	dropSlow(failed)
	return true
}

func (h *Hub) soleMember(room *Room, s *Session) bool {
	room.mu.Lock()
	defer room.mu.Unlock()
	return len(room.members) == 1 && room.members[0] == s
}

// leaveLocked must be called with h.mu held. Removal and deletion of an empty
// room happen under the same locks, so an empty room is never observable.
func (h *Hub) leaveLocked(s *Session, room *Room) []*Session {
	room.mu.Lock()
	defer room.mu.Unlock()

	s.setRoom(nil)
	i := room.indexLocked(s)
	if i < 0 {
		return nil
	}
	room.members = append(room.members[:i], room.members[i+1:]...)

	nickname, avatar := s.Identity()
	if len(room.members) == 0 {
		room.closed = true
		delete(h.rooms, room.name)
		h.logger.Info("room deleted", "room", room.name, "rooms", len(h.rooms))
		return nil
	}

	h.logger.Info("room left", "room", room.name, "nickname", nickname, "members", len(room.members))
	return room.broadcastLocked(protocol.Left(avatar, nickname), nil)
}

// Say appends a chat message from s to its room's history and delivers it to
// every other member.
func (h *Hub) Say(s *Session, text string) error {
	room := s.Room()
	if room == nil {
		return ErrNotInRoom
	}

	room.mu.Lock()
	if room.closed || room.indexLocked(s) < 0 {
		room.mu.Unlock()
		return ErrNotInRoom
	}
	nickname, avatar := s.Identity()
	entry := HistoryEntry{Nickname: nickname, Avatar: avatar, Text: text}
	room.history.append(entry)
	failed := room.broadcastLocked(entry.Line(), s)
	recipients := len(room.members) - 1
	room.mu.Unlock()

	h.logger.Debug("chat", "room", room.name, "nickname", nickname, "recipients", recipients)
	dropSlow(failed)
	return nil
}

// Broadcast delivers a server-generated line to the members of a room,
// skipping exclude when it is non-nil. It returns the number of members the
// line was queued for, or false if the room does not exist.
func (h *Hub) Broadcast(name string, exclude *Session, line string) (int, bool) {
	h.mu.Lock()
	room, ok := h.rooms[name]
	if !ok {
		h.mu.Unlock()
		return 0, false
	}
	room.mu.Lock()
	h.mu.Unlock()

	failed := room.broadcastLocked(line, exclude)
	targets := len(room.members)
	if exclude != nil && room.indexLocked(exclude) >= 0 {
		targets--
	}
	room.mu.Unlock()

	dropSlow(failed)
	return targets - len(failed), true
}

// Room looks up a live room by name.
func (h *Hub) Room(name string) (*Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[name]
	return room, ok
}

// RoomCount returns the number of live rooms.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Rooms returns a snapshot of every room in creation order.
func (h *Hub) Rooms() []RoomInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	rooms := h.orderedLocked()
	out := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		room.mu.Lock()
		out = append(out, room.infoLocked())
		room.mu.Unlock()
	}
	return out
}

// Listing returns the room overview sent to newly connected sessions.
func (h *Hub) Listing() []protocol.RoomListing {
	infos := h.Rooms()
	out := make([]protocol.RoomListing, 0, len(infos))
	for _, info := range infos {
		members := make([]string, 0, len(info.Members))
		for _, m := range info.Members {
			members = append(members, protocol.Member(m.Avatar, m.Nickname))
		}
		out = append(out, protocol.RoomListing{Name: info.Name, Members: members})
	}
	return out
}

func (h *Hub) orderedLocked() []*Room {
	rooms := make([]*Room, 0, len(h.rooms))
	for _, room := range h.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].seq < rooms[j].seq })
	return rooms
}

// dropSlow disconnects sessions whose send buffers overflowed during a
// broadcast. Their own handlers perform the cleanup.
func dropSlow(sessions []*Session) {
	for _, s := range sessions {
		s.logger.Warn("dropping session with full send buffer")
		s.terminate("send buffer full")
	}
}
