package sshsession

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"
)

// Session is one user's live remote connection plus its working-directory
// and timing metadata. The transport handle is owned 1:1 by the session and
// released exactly once, by Manager.Disconnect, eviction, or a replacing
// Connect. Authentication material is never stored here.
type Session struct {
	UserID      int64
	Host        string
	Port        int
	Username    string
	ID          string // opaque identifier for display/correlation only
	ConnectedAt time.Time

	// lastActivity is unix nanoseconds, updated on every operation. Kept
	// atomic so the eviction sweep can read it without taking mu while a
	// command is in flight.
	lastActivity atomic.Int64

	mu     sync.Mutex
	client *ssh.Client
	wd     string
	closed bool
}

// Info is an immutable snapshot of a session for callers outside the manager.
type Info struct {
	UserID           int64
	Host             string
	Port             int
	Username         string
	ID               string
	CurrentDirectory string
	ConnectedAt      time.Time
	LastActivity     time.Time
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the time of the most recent operation on the session.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// WorkingDirectory returns the session's current remote working directory.
func (s *Session) WorkingDirectory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wd
}

func (s *Session) info() Info {
	s.mu.Lock()
	wd := s.wd
	s.mu.Unlock()
	return Info{
		UserID:           s.UserID,
		Host:             s.Host,
		Port:             s.Port,
		Username:         s.Username,
		ID:               s.ID,
		CurrentDirectory: wd,
		ConnectedAt:      s.ConnectedAt,
		LastActivity:     s.LastActivity(),
	}
}

// closeHandle marks the session closed and closes the transport handle.
// Blocks until any in-flight command on the session completes. Safe to call
// more than once; only the first call closes the handle.
func (s *Session) closeHandle() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.closed = true
	s.mu.Unlock()

	if client != nil {
		client.Close()
	}
}

// record builds the persisted shape of the session. The secret is not part
// of the session; callers supply it (or leave it empty to keep the stored one).
func (s *Session) record(secret string) Record {
	return Record{
		UserID:           s.UserID,
		Host:             s.Host,
		Port:             s.Port,
		Username:         s.Username,
		Secret:           secret,
		CurrentDirectory: s.WorkingDirectory(),
		SessionID:        s.ID,
		SavedAt:          time.Now(),
	}
}
