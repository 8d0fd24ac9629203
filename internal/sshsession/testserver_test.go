package sshsession

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
)

const (
	testUser     = "testuser"
	testPassword = "testpass"
)

// execHandler scripts the remote side of one exec request.
type execHandler func(cmd string) (stdout, stderr string, exitCode int)

// testServer is an in-process SSH server whose exec behavior is scripted by
// the test. It records every command it receives.
type testServer struct {
	Host string
	Port int

	mu       sync.Mutex
	commands []string
	handler  execHandler
}

// Commands returns the exec commands received so far.
func (s *testServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

func (s *testServer) SetHandler(h execHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *testServer) handleExec(cmd string) (string, string, int) {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return "", "", 0
	}
	return h(cmd)
}

// startTestServer runs an SSH server on a loopback port accepting
// testUser/testPassword and any public key. Cleanup is registered on t.
func startTestServer(t *testing.T, handler execHandler) *testServer {
	t.Helper()

	_, hostKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	hostSigner, err := ssh.NewSignerFromKey(hostKey)
	if err != nil {
		t.Fatalf("host signer: %v", err)
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if conn.User() == testUser && string(password) == testPassword {
				return &ssh.Permissions{}, nil
			}
			return nil, errAuth
		},
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			return &ssh.Permissions{}, nil
		},
	}
	config.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := &testServer{handler: handler}
	host, portStr, _ := net.SplitHostPort(listener.Addr().String())
	srv.Host = host
	srv.Port, _ = strconv.Atoi(portStr)

	var conns []net.Conn
	var connsMu sync.Mutex

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			netConn, err := listener.Accept()
			if err != nil {
				return
			}
			connsMu.Lock()
			conns = append(conns, netConn)
			connsMu.Unlock()
			go handleTestConn(netConn, config, srv)
		}
	}()

	t.Cleanup(func() {
		listener.Close()
		connsMu.Lock()
		for _, c := range conns {
			c.Close()
		}
		connsMu.Unlock()
		<-done
	})
	return srv
}

var errAuth = errors.New("wrong credentials")

func handleTestConn(netConn net.Conn, config *ssh.ServerConfig, srv *testServer) {
	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, config)
	if err != nil {
		netConn.Close()
		return
	}
	defer sshConn.Close()

	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go handleTestSession(ch, requests, srv)
	}
}

func handleTestSession(ch ssh.Channel, requests <-chan *ssh.Request, srv *testServer) {
	defer ch.Close()
	for req := range requests {
		if req.Type != "exec" {
			if req.WantReply {
				req.Reply(false, nil)
			}
			continue
		}

		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			req.Reply(false, nil)
			return
		}
		if req.WantReply {
			req.Reply(true, nil)
		}

		stdout, stderr, exitCode := srv.handleExec(payload.Command)
		if stdout != "" {
			ch.Write([]byte(stdout))
		}
		if stderr != "" {
			ch.Stderr().Write([]byte(stderr))
		}

		exitPayload := []byte{byte(exitCode >> 24), byte(exitCode >> 16), byte(exitCode >> 8), byte(exitCode)}
		ch.SendRequest("exit-status", false, exitPayload)
		return
	}
}

// memGateway is an in-memory persistence gateway for manager tests.
type memGateway struct {
	mu      sync.Mutex
	records map[int64]Record
	saveErr error
}

func newMemGateway() *memGateway {
	return &memGateway{records: make(map[int64]Record)}
}

func (g *memGateway) Save(rec Record) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.saveErr != nil {
		return g.saveErr
	}
	if rec.Secret == "" {
		if old, ok := g.records[rec.UserID]; ok {
			rec.Secret = old.Secret
		}
	}
	g.records[rec.UserID] = rec
	return nil
}

func (g *memGateway) Load(userID int64) (Record, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[userID]
	return rec, ok, nil
}

func (g *memGateway) LoadAll() ([]Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	recs := make([]Record, 0, len(g.records))
	for _, rec := range g.records {
		recs = append(recs, rec)
	}
	return recs, nil
}

func (g *memGateway) Delete(userID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, userID)
	return nil
}

func (g *memGateway) record(userID int64) (Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[userID]
	return rec, ok
}

// newTestManager builds a Manager pointed at nothing in particular; tests
// connect it to a testServer explicitly.
func newTestManager(gw Gateway) *Manager {
	return NewManager(Config{}, gw)
}

func mustConnect(t *testing.T, m *Manager, srv *testServer, userID int64) Info {
	t.Helper()
	info, err := m.Connect(context.Background(), userID, srv.Host, srv.Port, testUser, testPassword, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return info
}
