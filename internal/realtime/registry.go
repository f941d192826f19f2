// Package realtime keeps track of the websocket sessions connected to this
// instance and the rooms they listen on.
package realtime

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lifedrop-api/pkg/logger"
	"github.com/jwalitptl/lifedrop-api/pkg/metrics"
)

// Conn is the part of a websocket connection the registry needs.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Message is the frame written to clients.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Time  time.Time       `json:"timestamp"`
}

var sessionSeq atomic.Uint64

type Session struct {
	ID     uint64
	UserID uuid.UUID

	conn    Conn
	writeMu sync.Mutex
	// rooms is guarded by the registry lock.
	rooms map[string]struct{}
}

// Write sends one frame. Writes on a session are serialized.
func (s *Session) Write(msg Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Session]struct{}
	sessions map[*Session]struct{}
	log      *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewRegistry(log *logger.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		rooms:    make(map[string]map[*Session]struct{}),
		sessions: make(map[*Session]struct{}),
		log:      log,
		metrics:  m,
		now:      time.Now,
	}
}

// Connect registers conn for userID and joins it to the user's own room.
func (r *Registry) Connect(userID uuid.UUID, conn Conn) *Session {
	s := &Session{
		ID:     sessionSeq.Add(1),
		UserID: userID,
		conn:   conn,
		rooms:  make(map[string]struct{}),
	}

	r.mu.Lock()
	r.sessions[s] = struct{}{}
	r.joinLocked(s, UserRoom(userID))
	r.mu.Unlock()

	r.metrics.RealtimeSessions.Inc()
	r.log.Debug("realtime session connected", "session", s.ID, "user_id", userID)
	return s
}

func (r *Registry) Join(s *Session, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s]; !ok {
		return
	}
	r.joinLocked(s, room)
}

func (r *Registry) Leave(s *Session, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(s, room)
}

// Disconnect removes s from every room and closes its connection. It is safe
// to call more than once.
func (r *Registry) Disconnect(s *Session) {
	r.mu.Lock()
	if _, ok := r.sessions[s]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, s)
	for room := range s.rooms {
		r.leaveLocked(s, room)
	}
	r.mu.Unlock()

	_ = s.conn.Close()
	r.metrics.RealtimeSessions.Dec()
	r.log.Debug("realtime session disconnected", "session", s.ID, "user_id", s.UserID)
}

// Emit writes event to every session in room and returns how many received
// it. Sessions that fail the write are disconnected.
func (r *Registry) Emit(room, event string, payload json.RawMessage) int {
	r.mu.RLock()
	targets := make([]*Session, 0, len(r.rooms[room]))
	for s := range r.rooms[room] {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	msg := Message{Event: event, Data: payload, Time: r.now().UTC()}
	delivered := 0
	for _, s := range targets {
		if err := s.Write(msg); err != nil {
			r.log.Warn("dropping realtime session after failed write", "session", s.ID, "room", room, "error", err.Error())
			r.metrics.RealtimeEmits.WithLabelValues("dropped").Inc()
			r.Disconnect(s)
			continue
		}
		r.metrics.RealtimeEmits.WithLabelValues("delivered").Inc()
		delivered++
	}
	return delivered
}

// Rooms returns the rooms s currently belongs to.
func (r *Registry) Rooms(s *Session) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) joinLocked(s *Session, room string) {
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Session]struct{})
		r.rooms[room] = members
	}
	members[s] = struct{}{}
	s.rooms[room] = struct{}{}
}

func (r *Registry) leaveLocked(s *Session, room string) {
	delete(s.rooms, room)
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}
