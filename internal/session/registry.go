// Package session tracks realtime connections, their exam binding and role,
// and the per-exam rooms used for broadcast fan-out.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleProctor Role = "proctor"
)

// ParseRole accepts the role names used by clients. The legacy teacher/pengawas
// spellings map to proctor.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "student", "siswa":
		return RoleStudent, true
	case "proctor", "teacher", "pengawas":
		return RoleProctor, true
	}
	return "", false
}

var (
	ErrUnknownSession = errors.New("session not found")
	ErrNotJoined      = errors.New("session has not joined an exam")
)

// Sender delivers an encoded message to one connected client.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
}

// Info is a read-only copy of a session's state.
type Info struct {
	ID          string            `json:"id"`
	Role        Role              `json:"role,omitempty"`
	ExamID      string            `json:"examId,omitempty"`
	UserID      string            `json:"userId,omitempty"`
	Settings    DetectionSettings `json:"settings"`
	ConnectedAt time.Time         `json:"connectedAt"`
}

type entry struct {
	info   Info
	sender Sender
}

// Registry owns the connect/join/disconnect lifecycle. Membership changes are
// rare compared to violation traffic, so one RWMutex guards both sessions and
// rooms; it is never held while sending.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*entry
	rooms       map[string]map[string]struct{}
	sendTimeout time.Duration
	now         func() time.Time
}

func NewRegistry(sendTimeout time.Duration) *Registry {
	if sendTimeout <= 0 {
		sendTimeout = 300 * time.Millisecond
	}
	return &Registry{
		sessions:    make(map[string]*entry),
		rooms:       make(map[string]map[string]struct{}),
		sendTimeout: sendTimeout,
		now:         time.Now,
	}
}

// Connect registers a new session. Connecting an id that is already present
// keeps the existing session.
func (r *Registry) Connect(id, userID string, sender Sender) Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		return e.info
	}
	e := &entry{
		info: Info{
			ID:          id,
			UserID:      userID,
			Settings:    DefaultSettings(),
			ConnectedAt: r.now().UTC(),
		},
		sender: sender,
	}
	r.sessions[id] = e
	return e.info
}

// Join binds a session to an exam room with a role. Joining the room the
// session is already in is a no-op and reports changed=false. Joining another
// exam moves the session out of its previous room.
func (r *Registry) Join(id, examID string, role Role) (changed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return false, ErrUnknownSession
	}
	if e.info.ExamID == examID && e.info.Role == role {
		return false, nil
	}
	if e.info.ExamID != "" && e.info.ExamID != examID {
		r.leaveLocked(e.info.ExamID, id)
	}
	e.info.ExamID = examID
	e.info.Role = role
	room, ok := r.rooms[examID]
	if !ok {
		room = make(map[string]struct{})
		r.rooms[examID] = room
	}
	room[id] = struct{}{}
	return true, nil
}

// UpdateSettings applies a partial settings update and returns the result.
func (r *Registry) UpdateSettings(id string, patch SettingsPatch) (DetectionSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return DetectionSettings{}, ErrUnknownSession
	}
	e.info.Settings = e.info.Settings.Apply(patch)
	return e.info.Settings, nil
}

// Disconnect removes the session and its room membership. Unknown ids are a
// no-op and report ok=false.
func (r *Registry) Disconnect(id string) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return Info{}, false
	}
	delete(r.sessions, id)
	if e.info.ExamID != "" {
		r.leaveLocked(e.info.ExamID, id)
	}
	return e.info, true
}

func (r *Registry) leaveLocked(examID, id string) {
	room, ok := r.rooms[examID]
	if !ok {
		return
	}
	delete(room, id)
	if len(room) == 0 {
		delete(r.rooms, examID)
	}
}

func (r *Registry) Get(id string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return Info{}, false
	}
	return e.info, true
}

// MembersOf lists the session ids in an exam room, optionally filtered by
// role (empty role means everyone). The result is sorted.
func (r *Registry) MembersOf(examID string, role Role) []string {
	r.mu.RLock()
	room := r.rooms[examID]
	out := make([]string, 0, len(room))
	for id := range room {
		if role != "" && r.sessions[id].info.Role != role {
			continue
		}
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Send delivers payload to one session with the registry's per-recipient
// timeout. The lock is released before the transport is touched.
func (r *Registry) Send(ctx context.Context, id string, payload []byte) error {
	r.mu.RLock()
	e, ok := r.sessions[id]
	var sender Sender
	if ok {
		sender = e.sender
	}
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownSession
	}
	if sender == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()
	return sender.Send(ctx, payload)
}

// Count returns the number of connected sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
