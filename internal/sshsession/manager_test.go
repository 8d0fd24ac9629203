package sshsession

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestConnectRegistersSession(t *testing.T) {
	srv := startTestServer(t, nil)
	gw := newMemGateway()
	m := newTestManager(gw)

	info := mustConnect(t, m, srv, 1)

	if !m.IsConnected(1) {
		t.Fatal("expected user 1 to be connected")
	}
	if info.Host != srv.Host || info.Port != srv.Port || info.Username != testUser {
		t.Errorf("unexpected session info: %+v", info)
	}
	if info.CurrentDirectory != "~" {
		t.Errorf("expected initial directory ~, got %q", info.CurrentDirectory)
	}
	if info.ID == "" {
		t.Error("expected a session ID")
	}

	rec, ok := gw.record(1)
	if !ok {
		t.Fatal("expected a persisted record")
	}
	if rec.Secret != testPassword {
		t.Errorf("expected persisted secret, got %q", rec.Secret)
	}
	if rec.SessionID != info.ID {
		t.Errorf("persisted session ID %q != %q", rec.SessionID, info.ID)
	}
}

func TestConnectWrongPassword(t *testing.T) {
	srv := startTestServer(t, nil)
	m := newTestManager(nil)

	_, err := m.Connect(context.Background(), 1, srv.Host, srv.Port, testUser, "wrong", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !IsKind(err, KindAuth) {
		t.Errorf("expected auth error, got %v (kind %s)", err, KindOf(err))
	}
	if m.IsConnected(1) {
		t.Error("failed connect must not register a session")
	}
}

func TestConnectValidation(t *testing.T) {
	m := newTestManager(nil)
	ctx := context.Background()

	cases := []struct {
		name     string
		host     string
		port     int
		username string
		password string
		key      []byte
	}{
		{"no auth method", "example.com", 22, "user", "", nil},
		{"both auth methods", "example.com", 22, "user", "pw", []byte("key")},
		{"bad host", "bad host!", 22, "user", "pw", nil},
		{"port zero", "example.com", 0, "user", "pw", nil},
		{"port too high", "example.com", 70000, "user", "pw", nil},
		{"empty username", "example.com", 22, "  ", "pw", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Connect(ctx, 1, tc.host, tc.port, tc.username, tc.password, tc.key)
			if !IsKind(err, KindValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestConnectReplacesExistingSession(t *testing.T) {
	srv := startTestServer(t, nil)
	m := newTestManager(newMemGateway())

	first := mustConnect(t, m, srv, 1)
	second := mustConnect(t, m, srv, 1)

	if m.SessionCount() != 1 {
		t.Fatalf("expected 1 session, got %d", m.SessionCount())
	}
	if first.ID == second.ID {
		t.Error("replacement must create a new session")
	}
}

func TestDisconnect(t *testing.T) {
	srv := startTestServer(t, nil)
	gw := newMemGateway()
	m := newTestManager(gw)

	mustConnect(t, m, srv, 1)

	if err := m.Disconnect(1); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if m.IsConnected(1) {
		t.Error("expected user 1 to be disconnected")
	}
	if _, ok := gw.record(1); ok {
		t.Error("disconnect must delete the persisted record")
	}

	// Second disconnect in a row fails.
	if err := m.Disconnect(1); !IsKind(err, KindNotConnected) {
		t.Errorf("expected not-connected error, got %v", err)
	}
}

func TestEvictStale(t *testing.T) {
	srv := startTestServer(t, nil)
	gw := newMemGateway()
	m := newTestManager(gw)

	mustConnect(t, m, srv, 1)
	mustConnect(t, m, srv, 2)
	mustConnect(t, m, srv, 3)

	now := time.Now()
	backdate := func(userID int64, idle time.Duration) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		m.sessions[userID].lastActivity.Store(now.Add(-idle).UnixNano())
	}

	backdate(1, m.cfg.SessionTimeout+time.Second) // stale
	backdate(2, m.cfg.SessionTimeout)             // exactly at the boundary
	backdate(3, time.Minute)                      // fresh

	if n := m.EvictStale(now); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if m.IsConnected(1) {
		t.Error("user 1 should have been evicted")
	}
	if !m.IsConnected(2) {
		t.Error("idle time equal to the timeout must not evict")
	}
	if !m.IsConnected(3) {
		t.Error("fresh session must not be evicted")
	}
	if _, ok := gw.record(1); ok {
		t.Error("eviction must delete the persisted record")
	}
	if _, ok := gw.record(2); !ok {
		t.Error("kept session must keep its record")
	}
}

func TestEvictStaleKeepsRefreshedSession(t *testing.T) {
	srv := startTestServer(t, nil)
	m := newTestManager(nil)
	mustConnect(t, m, srv, 1)

	now := time.Now()
	// Session looks stale relative to a sweep timestamp taken before its
	// activity was refreshed.
	if n := m.EvictStale(now.Add(-2 * m.cfg.SessionTimeout)); n != 0 {
		t.Fatalf("expected no evictions, got %d", n)
	}
	if !m.IsConnected(1) {
		t.Error("refreshed session must survive the sweep")
	}
}

func TestRestoreAll(t *testing.T) {
	srv := startTestServer(t, nil)
	gw := newMemGateway()

	gw.records[10] = Record{
		UserID: 10, Host: srv.Host, Port: srv.Port, Username: testUser,
		Secret: testPassword, CurrentDirectory: "/var/log",
	}
	gw.records[11] = Record{ // key-auth session, no stored secret
		UserID: 11, Host: srv.Host, Port: srv.Port, Username: testUser,
	}
	gw.records[12] = Record{ // dead host
		UserID: 12, Host: "127.0.0.1", Port: 1, Username: testUser,
		Secret: testPassword,
	}

	m := newTestManager(gw)
	m.RestoreAll(context.Background())

	if !m.IsConnected(10) {
		t.Error("expected user 10 to be restored")
	}
	info, _ := m.GetSession(10)
	if info.CurrentDirectory != "/var/log" {
		t.Errorf("expected restored directory /var/log, got %q", info.CurrentDirectory)
	}

	if m.IsConnected(11) {
		t.Error("secretless record must not reconnect")
	}
	if _, ok := gw.record(11); ok {
		t.Error("secretless record must be deleted")
	}

	if m.IsConnected(12) {
		t.Error("unreachable host must not register a session")
	}
	if _, ok := gw.record(12); ok {
		t.Error("failed restore must delete the record")
	}
}

func TestClassifyHandshakeError(t *testing.T) {
	err := classifyHandshakeError(strError("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password]"))
	if err.Kind != KindAuth {
		t.Errorf("expected auth kind, got %s", err.Kind)
	}
	if !strings.Contains(err.Error(), "authentication failed") {
		t.Errorf("unexpected message: %s", err.Error())
	}

	err = classifyHandshakeError(strError("ssh: handshake failed: read tcp: connection reset"))
	if err.Kind != KindTransport {
		t.Errorf("expected transport kind, got %s", err.Kind)
	}
}

type strError string

func (e strError) Error() string { return string(e) }
