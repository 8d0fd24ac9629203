// Package conversation collects SSH connection parameters from a user one
// chat turn at a time and hands them to the connection orchestrator in a
// single connect call.
//
// The dialogue is a small state machine per user: idle -> awaiting_host ->
// awaiting_username -> awaiting_password or awaiting_key -> idle. Invalid
// input re-prompts without changing state. Any connect attempt, successful
// or not, resets the user to idle and discards the collected parameters, so
// the plaintext secret lives in the scratch space for at most one turn.
package conversation

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/sshbridge/sshbridge/internal/logutil"
	"github.com/sshbridge/sshbridge/internal/sshsession"
)

const defaultPort = 22

// Connector is the slice of the session manager the dialogue needs.
type Connector interface {
	Connect(ctx context.Context, userID int64, host string, port int, username, password string, keyData []byte) (sshsession.Info, error)
}

// Reply is what the front end shows the user after one dialogue turn.
// ScrubInput asks the front end to delete the user's message (it contained
// a secret); scrub failures are the front end's to handle. Connected is set
// only on the turn that established a session.
type Reply struct {
	OK         bool
	Text       string
	ScrubInput bool
	Connected  bool
}

type userState struct {
	state   State
	method  AuthMethod
	scratch map[string]string
}

// Manager tracks the dialogue state of every user. Safe for concurrent use;
// the connect attempt itself runs outside the state lock so one user's slow
// handshake cannot stall another user's turns.
type Manager struct {
	conn Connector

	mu    sync.Mutex
	users map[int64]*userState
}

func NewManager(conn Connector) *Manager {
	return &Manager{
		conn:  conn,
		users: make(map[int64]*userState),
	}
}

// StateOf returns the user's current dialogue state.
func (m *Manager) StateOf(userID int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.users[userID]; ok {
		return st.state
	}
	return StateIdle
}

// InProgress reports whether a dialogue is underway for the user.
func (m *Manager) InProgress(userID int64) bool {
	return m.StateOf(userID) != StateIdle
}

// Begin starts a new dialogue for the user, replacing any dialogue already
// in progress. The collected parameters of the replaced dialogue are
// discarded.
func (m *Manager) Begin(userID int64, method AuthMethod) Reply {
	if !method.IsValid() {
		return Reply{Text: "Unknown authentication method. Use password or key."}
	}

	m.mu.Lock()
	m.users[userID] = &userState{
		state:   StateAwaitingHost,
		method:  method,
		scratch: make(map[string]string),
	}
	m.mu.Unlock()

	log.Printf("[conversation] user %d started %s setup", userID, method)
	return Reply{OK: true, Text: "Enter the server address (host or host:port):"}
}

// Cancel aborts the user's dialogue from any state and discards everything
// collected so far.
func (m *Manager) Cancel(userID int64) Reply {
	m.mu.Lock()
	_, active := m.users[userID]
	delete(m.users, userID)
	m.mu.Unlock()

	if !active {
		return Reply{OK: true, Text: "Nothing to cancel."}
	}
	log.Printf("[conversation] user %d cancelled setup", userID)
	return Reply{OK: true, Text: "Connection setup cancelled."}
}

// HandleText advances the dialogue with one message from the user. In
// awaiting_password the raw text (not trimmed) is taken as the secret and
// the reply asks the front end to scrub the message.
func (m *Manager) HandleText(ctx context.Context, userID int64, text string) Reply {
	m.mu.Lock()
	st, ok := m.users[userID]
	if !ok {
		m.mu.Unlock()
		return Reply{Text: "No connection setup in progress."}
	}

	switch st.state {
	case StateAwaitingHost:
		reply := handleHost(st, text)
		m.mu.Unlock()
		return reply

	case StateAwaitingUsername:
		reply := handleUsername(st, text)
		m.mu.Unlock()
		return reply

	case StateAwaitingPassword:
		// Take the parameters and reset before dialing so the secret does
		// not outlive this turn in the dialogue state.
		host, port, username := st.scratch["host"], st.scratch["port"], st.scratch["username"]
		delete(m.users, userID)
		m.mu.Unlock()
		return m.attemptConnect(ctx, userID, host, port, username, text, nil)

	case StateAwaitingKey:
		m.mu.Unlock()
		return Reply{Text: "Please send the private key as a file attachment."}

	default:
		delete(m.users, userID)
		m.mu.Unlock()
		return Reply{Text: "No connection setup in progress."}
	}
}

// HandleAttachment advances the dialogue with file content from the user.
// Only the awaiting_key state consumes attachments.
func (m *Manager) HandleAttachment(ctx context.Context, userID int64, data []byte) Reply {
	m.mu.Lock()
	st, ok := m.users[userID]
	if !ok || st.state != StateAwaitingKey {
		m.mu.Unlock()
		return Reply{Text: "Not expecting a key file right now."}
	}
	host, port, username := st.scratch["host"], st.scratch["port"], st.scratch["username"]
	delete(m.users, userID)
	m.mu.Unlock()

	return m.attemptConnect(ctx, userID, host, port, username, "", data)
}

func handleHost(st *userState, text string) Reply {
	host := strings.TrimSpace(text)
	port := defaultPort
	if h, p, found := strings.Cut(host, ":"); found {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || !sshsession.ValidatePort(n) {
			return Reply{Text: "Invalid port. Enter the address as host or host:port (port 1-65535):"}
		}
		host, port = strings.TrimSpace(h), n
	}
	if !sshsession.ValidateHost(host) {
		return Reply{Text: "Invalid host. Enter a hostname or IP address:"}
	}

	st.scratch["host"] = host
	st.scratch["port"] = strconv.Itoa(port)
	st.state = StateAwaitingUsername
	return Reply{OK: true, Text: "Enter the username:"}
}

func handleUsername(st *userState, text string) Reply {
	username := strings.TrimSpace(text)
	if username == "" {
		return Reply{Text: "Username cannot be empty. Enter the username:"}
	}
	st.scratch["username"] = username

	if st.method == AuthKey {
		st.state = StateAwaitingKey
		return Reply{OK: true, Text: "Send the private key as a file attachment."}
	}
	st.state = StateAwaitingPassword
	return Reply{OK: true, Text: "Enter the password (the message will be removed after processing):"}
}

func (m *Manager) attemptConnect(ctx context.Context, userID int64, host, portStr, username, password string, keyData []byte) Reply {
	scrub := password != ""
	port, _ := strconv.Atoi(portStr)

	info, err := m.conn.Connect(ctx, userID, host, port, username, password, keyData)
	if err != nil {
		log.Printf("[conversation] user %d connect to %s failed: %v",
			userID, logutil.SanitizeForLog(host), err)
		return Reply{Text: fmt.Sprintf("Connection failed: %v", err), ScrubInput: scrub}
	}

	log.Printf("[conversation] user %d connected to %s", userID, logutil.SanitizeForLog(host))
	return Reply{
		OK:         true,
		Text:       fmt.Sprintf("Connected to %s:%d as %s.", info.Host, info.Port, info.Username),
		ScrubInput: scrub,
		Connected:  true,
	}
}
