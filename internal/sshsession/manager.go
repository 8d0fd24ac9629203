// Package sshsession owns remote shell sessions for end-users.
//
// The central type is Manager: a registry of at most one live SSH connection
// per user, with operations to connect, execute commands (preserving a
// per-session working directory without a long-lived interactive shell),
// transfer files, disconnect, evict idle sessions, and restore persisted
// sessions at startup.
//
// A session exists in the registry if and only if its transport handle is
// open. All lookups are keyed by the end-user identifier; replacing a
// connection for a user always disconnects the previous one first.
package sshsession

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"github.com/sshbridge/sshbridge/internal/logutil"
)

// Default bounds, used when Config leaves the corresponding field zero.
const (
	DefaultConnectTimeout  = 30 * time.Second
	DefaultAuthTimeout     = 30 * time.Second
	DefaultBannerTimeout   = 30 * time.Second
	DefaultCommandTimeout  = 30 * time.Second
	DefaultMaxOutputLength = 4000
	DefaultMaxFileSize     = 50 * 1024 * 1024
	DefaultSessionTimeout  = 3600 * time.Second
)

// Record is the shape exchanged with the persistence gateway. Secret is the
// plaintext auth secret within the process; the gateway adapter is
// responsible for protecting it at rest. An empty Secret on save means
// "keep whatever secret is already stored for this user".
type Record struct {
	UserID           int64
	Host             string
	Port             int
	Username         string
	Secret           string
	CurrentDirectory string
	SessionID        string
	SavedAt          time.Time
}

// Gateway persists connection parameters across process restarts. All
// failures from the gateway are treated as non-fatal by the manager: they
// are logged and the live session remains authoritative.
type Gateway interface {
	Save(rec Record) error
	Load(userID int64) (Record, bool, error)
	LoadAll() ([]Record, error)
	Delete(userID int64) error
}

// Config bounds the manager's network operations.
type Config struct {
	ConnectTimeout  time.Duration
	AuthTimeout     time.Duration
	BannerTimeout   time.Duration
	CommandTimeout  time.Duration
	MaxOutputLength int
	MaxFileSize     int64
	SessionTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = DefaultAuthTimeout
	}
	if c.BannerTimeout <= 0 {
		c.BannerTimeout = DefaultBannerTimeout
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.MaxOutputLength <= 0 {
		c.MaxOutputLength = DefaultMaxOutputLength
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	return c
}

// Manager is the single source of truth for "is user U connected, and
// through what handle". It is safe for concurrent use by many per-user call
// sequences plus the periodic eviction sweep.
type Manager struct {
	cfg Config
	gw  Gateway

	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewManager creates a Manager with the given bounds and persistence gateway.
// gw may be nil, in which case sessions are not persisted.
func NewManager(cfg Config, gw Gateway) *Manager {
	return &Manager{
		cfg:      cfg.withDefaults(),
		gw:       gw,
		sessions: make(map[int64]*Session),
	}
}

// Connect establishes an SSH connection for userID, replacing any existing
// session for that user. Exactly one of password/keyData must be non-empty.
// On success the new session starts in working directory "~" and is
// persisted via the gateway.
func (m *Manager) Connect(ctx context.Context, userID int64, host string, port int, username, password string, keyData []byte) (Info, error) {
	return m.connect(ctx, userID, host, port, username, password, keyData, "~")
}

func (m *Manager) connect(ctx context.Context, userID int64, host string, port int, username, password string, keyData []byte, initialDir string) (Info, error) {
	if password == "" && len(keyData) == 0 {
		return Info{}, newError(KindValidation, "no authentication method provided (password or key required)")
	}
	if password != "" && len(keyData) > 0 {
		return Info{}, newError(KindValidation, "supply either a password or a key, not both")
	}
	if !ValidateHost(host) {
		return Info{}, newError(KindValidation, "invalid hostname or IP address")
	}
	if !ValidatePort(port) {
		return Info{}, newError(KindValidation, "invalid port number (1-65535)")
	}
	if strings.TrimSpace(username) == "" {
		return Info{}, newError(KindValidation, "username cannot be empty")
	}

	var auth ssh.AuthMethod
	if len(keyData) > 0 {
		signer, err := ParsePrivateKey(keyData)
		if err != nil {
			return Info{}, wrapError(KindValidation, err, "%v", err)
		}
		auth = ssh.PublicKeys(signer)
	} else {
		auth = ssh.Password(password)
	}

	// Replace-not-stack: tear down any previous session for this user before
	// dialing, so two handles for one user never coexist.
	if m.IsConnected(userID) {
		if err := m.Disconnect(userID); err != nil {
			log.Printf("[sessions] replace: disconnect previous session for user %d: %v", userID, err)
		}
	}

	cfg := &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         m.cfg.ConnectTimeout,
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	log.Printf("[sessions] connecting to %s for user %d", logutil.SanitizeForLog(addr), userID)

	dialer := net.Dialer{Timeout: m.cfg.ConnectTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if isTimeout(err) {
			return Info{}, wrapError(KindTimeout, err, "connection timeout, please check host and port")
		}
		return Info{}, wrapError(KindTransport, err, "connection error: %v", err)
	}

	// The handshake covers version banner exchange and authentication; bound
	// both with a single connection deadline.
	handshakeDeadline := time.Now().Add(m.cfg.BannerTimeout + m.cfg.AuthTimeout)
	_ = netConn.SetDeadline(handshakeDeadline)

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, cfg)
	if err != nil {
		netConn.Close()
		return Info{}, classifyHandshakeError(err)
	}
	_ = netConn.SetDeadline(time.Time{})

	client := ssh.NewClient(sshConn, chans, reqs)

	sess := &Session{
		UserID:      userID,
		Host:        host,
		Port:        port,
		Username:    username,
		ID:          uuid.New().String(),
		ConnectedAt: time.Now(),
		client:      client,
		wd:          initialDir,
	}
	sess.touch()

	m.mu.Lock()
	m.sessions[userID] = sess
	m.mu.Unlock()

	m.saveRecord(sess, password)

	log.Printf("[sessions] connected user %d to %s as %s (session %s)",
		userID, logutil.SanitizeForLog(addr), logutil.SanitizeForLog(username), sess.ID)
	return sess.info(), nil
}

// Disconnect closes the user's transport handle, removes the registry entry,
// and deletes the persisted record. Returns a NotConnected error when no
// session exists, so a second call in a row fails.
func (m *Manager) Disconnect(userID int64) error {
	m.mu.Lock()
	sess, ok := m.sessions[userID]
	if !ok {
		m.mu.Unlock()
		return newError(KindNotConnected, "no active connection")
	}
	delete(m.sessions, userID)
	m.mu.Unlock()

	sess.closeHandle()
	m.deleteRecord(userID)

	log.Printf("[sessions] disconnected user %d (session %s)", userID, sess.ID)
	return nil
}

// IsConnected reports whether the user has an open session. Pure lookup.
func (m *Manager) IsConnected(userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[userID]
	return ok
}

// GetSession returns a snapshot of the user's session. Pure lookup.
func (m *Manager) GetSession(userID int64) (Info, bool) {
	m.mu.RLock()
	sess, ok := m.sessions[userID]
	m.mu.RUnlock()
	if !ok {
		return Info{}, false
	}
	return sess.info(), true
}

// EvictStale disconnects every session whose idle time strictly exceeds the
// configured session timeout as of now. Idle time exactly equal to the
// timeout is not evicted. Sessions whose activity is refreshed concurrently
// with the sweep are re-checked under the registry lock and kept.
func (m *Manager) EvictStale(now time.Time) int {
	m.mu.RLock()
	candidates := make(map[int64]*Session)
	for uid, sess := range m.sessions {
		if now.Sub(sess.LastActivity()) > m.cfg.SessionTimeout {
			candidates[uid] = sess
		}
	}
	m.mu.RUnlock()

	evicted := 0
	for uid, cand := range candidates {
		m.mu.Lock()
		sess, ok := m.sessions[uid]
		if !ok || sess != cand || now.Sub(sess.LastActivity()) <= m.cfg.SessionTimeout {
			// Disconnected, replaced, or touched since the snapshot.
			m.mu.Unlock()
			continue
		}
		delete(m.sessions, uid)
		m.mu.Unlock()

		sess.closeHandle()
		m.deleteRecord(uid)
		log.Printf("[sessions] evicted stale session for user %d (idle since %s)",
			uid, sess.LastActivity().Format(time.RFC3339))
		evicted++
	}
	return evicted
}

// RestoreAll attempts to reconnect every persisted session at process start.
// Records without a stored secret (key-auth sessions) cannot be retried and
// are deleted, as are records whose reconnect attempt fails.
func (m *Manager) RestoreAll(ctx context.Context) {
	if m.gw == nil {
		return
	}
	recs, err := m.gw.LoadAll()
	if err != nil {
		log.Printf("[sessions] restore: load persisted sessions: %v", err)
		return
	}

	for _, rec := range recs {
		if m.IsConnected(rec.UserID) {
			continue
		}
		if rec.Secret == "" {
			log.Printf("[sessions] restore: user %d has no stored secret, dropping record", rec.UserID)
			m.deleteRecord(rec.UserID)
			continue
		}
		dir := rec.CurrentDirectory
		if dir == "" {
			dir = "~"
		}
		if _, err := m.connect(ctx, rec.UserID, rec.Host, rec.Port, rec.Username, rec.Secret, nil, dir); err != nil {
			log.Printf("[sessions] restore: reconnect user %d to %s: %v",
				rec.UserID, logutil.SanitizeForLog(rec.Host), err)
			m.deleteRecord(rec.UserID)
			continue
		}
		log.Printf("[sessions] restored session for user %d (%s)", rec.UserID, logutil.SanitizeForLog(rec.Host))
	}
}

// CloseAll closes every open session. Used during shutdown. The persisted
// records are kept so sessions can be restored on the next start.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[int64]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.closeHandle()
	}
	log.Printf("[sessions] all sessions closed (%d total)", len(sessions))
}

// SessionCount returns the number of open sessions.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// getSession returns the live session for internal operations.
func (m *Manager) getSession(userID int64) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[userID]
	m.mu.RUnlock()
	if !ok {
		return nil, newError(KindNotConnected, "no active SSH connection, please connect first")
	}
	return sess, nil
}

// saveRecord persists the session best-effort. An empty secret keeps any
// previously stored one (working-directory updates must not wipe credentials).
func (m *Manager) saveRecord(sess *Session, secret string) {
	if m.gw == nil {
		return
	}
	if err := m.gw.Save(sess.record(secret)); err != nil {
		log.Printf("[sessions] persist session for user %d: %v", sess.UserID, err)
	}
}

func (m *Manager) deleteRecord(userID int64) {
	if m.gw == nil {
		return
	}
	if err := m.gw.Delete(userID); err != nil {
		log.Printf("[sessions] delete persisted session for user %d: %v", userID, err)
	}
}

// classifyHandshakeError maps an SSH handshake failure onto the error
// taxonomy: credential rejection, deadline expiry, or transport trouble.
func classifyHandshakeError(err error) *Error {
	msg := err.Error()
	if strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain") {
		return wrapError(KindAuth, err, "authentication failed, please check your credentials")
	}
	if isTimeout(err) {
		return wrapError(KindTimeout, err, "connection timeout, please check host and port")
	}
	return wrapError(KindTransport, err, "SSH error: %v", err)
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
