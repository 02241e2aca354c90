package gateway

import (
	"sync"
	"testing"
	"time"

	"github.com/pairbridge/gateway/internal/protocol"
)

// fakeConn records frames and close calls for assertions.
type fakeConn struct {
	mu          sync.Mutex
	frames      []protocol.OutFrame
	closed      bool
	closeCode   int
	closeReason string
}

func (f *fakeConn) Send(fr protocol.OutFrame) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.frames = append(f.frames, fr)
	return true
}

func (f *fakeConn) SendClose(fr protocol.OutFrame, code int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
	f.closed = true
	f.closeCode = code
	f.closeReason = reason
}

func (f *fakeConn) Close(code int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.closeCode = code
	f.closeReason = reason
}

func (f *fakeConn) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeConn) lastFrame(t *testing.T) protocol.OutFrame {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		t.Fatalf("no frames sent")
	}
	return f.frames[len(f.frames)-1]
}

func (f *fakeConn) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func TestSessionRegistry(t *testing.T) {
	reg := NewSessionRegistry()
	conn := &fakeConn{}
	s := reg.Create(conn)
	if s.ID == "" {
		t.Fatalf("expected generated session id")
	}
	if got := reg.Get(s.ID); got != s {
		t.Fatalf("get returned wrong session")
	}
	if s.IsAuthenticated() {
		t.Fatalf("new session must start unauthenticated")
	}
	if len(reg.ByScope(1)) != 0 {
		t.Fatalf("unauthenticated session must not appear in scope lookups")
	}

	if err := reg.Authenticate(s.ID, "u1", "User One", []int{1, 3}); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !s.InScope(1) || !s.InScope(3) || s.InScope(2) {
		t.Fatalf("scope not recorded")
	}
	if got := reg.ByScope(3); len(got) != 1 || got[0] != s {
		t.Fatalf("scope lookup failed")
	}

	reg.Destroy(s.ID)
	reg.Destroy(s.ID) // idempotent
	if reg.Get(s.ID) != nil || reg.Count() != 0 {
		t.Fatalf("destroy did not remove session")
	}
}

func TestAuthenticateUnknownSession(t *testing.T) {
	reg := NewSessionRegistry()
	if err := reg.Authenticate("missing", "u", "n", []int{0}); err == nil {
		t.Fatalf("expected error for unknown session")
	}
}

func TestCleanupStale(t *testing.T) {
	reg := NewSessionRegistry()
	fresh := &fakeConn{}
	stale := &fakeConn{}
	sFresh := reg.Create(fresh)
	sStale := reg.Create(stale)
	if err := reg.Authenticate(sStale.ID, "u", "n", []int{1}); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	sStale.mu.Lock()
	sStale.lastHeartbeat = time.Now().Add(-2 * time.Minute)
	sStale.mu.Unlock()

	if n := reg.CleanupStale(time.Minute); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	if stale.IsOpen() {
		t.Fatalf("stale transport not closed")
	}
	if stale.closeCode != protocol.CloseNormal || stale.closeReason != "Heartbeat timeout" {
		t.Fatalf("wrong close: %d %q", stale.closeCode, stale.closeReason)
	}
	if len(reg.ByScope(1)) != 0 {
		t.Fatalf("stale session still visible in scope lookup")
	}
	if !fresh.IsOpen() || reg.Get(sFresh.ID) == nil {
		t.Fatalf("fresh session must survive the sweep")
	}
}

func TestHeartbeatKeepsSessionAlive(t *testing.T) {
	reg := NewSessionRegistry()
	conn := &fakeConn{}
	s := reg.Create(conn)
	s.mu.Lock()
	s.lastHeartbeat = time.Now().Add(-50 * time.Second)
	s.mu.Unlock()
	reg.UpdateHeartbeat(s.ID)
	if n := reg.CleanupStale(time.Minute); n != 0 {
		t.Fatalf("pinged session swept")
	}
}
