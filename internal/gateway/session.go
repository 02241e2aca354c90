package gateway

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pairbridge/gateway/internal/logx"
	"github.com/pairbridge/gateway/internal/protocol"
)

// Conn is the transport half a session owns. Send is best-effort: it reports
// false when the transport is closed or its write buffer is full. SendClose
// writes f before the close handshake so fatal error frames reach the peer.
type Conn interface {
	Send(f protocol.OutFrame) bool
	SendClose(f protocol.OutFrame, code int, reason string)
	Close(code int, reason string)
	IsOpen() bool
}

// Session is the server-side state for one live connection. It is owned by
// the SessionRegistry; no other component keeps a long-lived reference.
type Session struct {
	ID        string
	Conn      Conn
	CreatedAt time.Time

	mu            sync.Mutex
	authenticated bool
	userID        string
	userName      string
	instances     map[int]bool
	lastHeartbeat time.Time
}

// SetAuthenticated marks the session identified and records its scope.
func (s *Session) SetAuthenticated(userID, userName string, instances []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = true
	s.userID = userID
	s.userName = userName
	s.instances = make(map[int]bool, len(instances))
	for _, id := range instances {
		s.instances[id] = true
	}
}

func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// InScope reports whether the session is authorized for the instance.
func (s *Session) InScope(instanceID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated && s.instances[instanceID]
}

// Identity returns the authenticated user id and name.
func (s *Session) Identity() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.userName
}

// Touch records application-level liveness.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastHeartbeat = time.Now()
	s.mu.Unlock()
}

// SinceHeartbeat returns the time elapsed since the last ping.
func (s *Session) SinceHeartbeat() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastHeartbeat)
}

// SessionRegistry is the in-memory table of live sessions.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

// Create registers a new unauthenticated session for conn.
func (r *SessionRegistry) Create(conn Conn) *Session {
	now := time.Now()
	s := &Session{
		ID:            uuid.NewString(),
		Conn:          conn,
		CreatedAt:     now,
		instances:     map[int]bool{},
		lastHeartbeat: now,
	}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

func (r *SessionRegistry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Authenticate records identity and scope on an existing session.
func (r *SessionRegistry) Authenticate(id, userID, userName string, instances []int) error {
	r.mu.RLock()
	s := r.sessions[id]
	r.mu.RUnlock()
	if s == nil {
		return fmt.Errorf("session %s: unknown", id)
	}
	s.SetAuthenticated(userID, userName, instances)
	return nil
}

// UpdateHeartbeat refreshes liveness for the session, if it still exists.
func (r *SessionRegistry) UpdateHeartbeat(id string) {
	r.mu.RLock()
	s := r.sessions[id]
	r.mu.RUnlock()
	if s != nil {
		s.Touch()
	}
}

// Destroy removes the session. No-op when the session is already gone.
func (r *SessionRegistry) Destroy(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// ByScope returns every authenticated session authorized for the instance.
func (r *SessionRegistry) ByScope(instanceID int) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var res []*Session
	for _, s := range r.sessions {
		if s.InScope(instanceID) {
			res = append(res, s)
		}
	}
	return res
}

func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CleanupStale closes and removes every session whose last heartbeat is older
// than timeout. This is the only inactivity-based eviction path.
func (r *SessionRegistry) CleanupStale(timeout time.Duration) int {
	r.mu.Lock()
	var stale []*Session
	for id, s := range r.sessions {
		if s.SinceHeartbeat() > timeout {
			delete(r.sessions, id)
			stale = append(stale, s)
		}
	}
	r.mu.Unlock()
	for _, s := range stale {
		s.Conn.Close(protocol.CloseNormal, "Heartbeat timeout")
		logx.Log.Info().Str("session_id", s.ID).Str("reason", "heartbeat_expired").Msg("evicted")
	}
	return len(stale)
}
