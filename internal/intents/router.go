// Package intents is the transport-free surface a chat front end drives.
// Each method maps one user intent onto the credential dialogue or the
// session manager and returns a plain-text result with no presentation
// markup, so HTTP, WebSocket, and bot gateways can all share it.
package intents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sshbridge/sshbridge/internal/conversation"
	"github.com/sshbridge/sshbridge/internal/monitor"
	"github.com/sshbridge/sshbridge/internal/sshsession"
)

// Result is the outcome of one intent. Payload and Filename are set only by
// intents that return file content. ScrubInput asks the caller to delete
// the user's message because it carried a secret.
type Result struct {
	OK         bool   `json:"ok"`
	Text       string `json:"text,omitempty"`
	Payload    []byte `json:"payload,omitempty"`
	Filename   string `json:"filename,omitempty"`
	ScrubInput bool   `json:"scrub_input,omitempty"`
}

// Router dispatches intents to the dialogue and the session manager.
type Router struct {
	sessions *sshsession.Manager
	dialogue *conversation.Manager
	monitors *monitor.Registry
}

func NewRouter(sessions *sshsession.Manager, dialogue *conversation.Manager, monitors *monitor.Registry) *Router {
	return &Router{sessions: sessions, dialogue: dialogue, monitors: monitors}
}

// Connect starts the credential dialogue for the user with the given
// authentication method ("password" or "key").
func (r *Router) Connect(userID int64, method string) Result {
	reply := r.dialogue.Begin(userID, conversation.AuthMethod(method))
	return fromReply(reply)
}

// CancelDialogue aborts the user's credential dialogue, discarding
// everything collected so far.
func (r *Router) CancelDialogue(userID int64) Result {
	return fromReply(r.dialogue.Cancel(userID))
}

// SubmitText routes free-form text: to the dialogue while one is in
// progress, to command execution while connected, and to a usage hint
// otherwise.
func (r *Router) SubmitText(ctx context.Context, userID int64, text string) Result {
	if r.dialogue.InProgress(userID) {
		return fromReply(r.dialogue.HandleText(ctx, userID, text))
	}
	if r.sessions.IsConnected(userID) {
		return r.ExecuteCommand(ctx, userID, text)
	}
	return Result{Text: "Not connected. Start a connection first."}
}

// SubmitFile routes file content: to the dialogue as key material while it
// awaits a key, to an upload into the session working directory otherwise.
func (r *Router) SubmitFile(ctx context.Context, userID int64, data []byte, name string) Result {
	if r.dialogue.StateOf(userID) == conversation.StateAwaitingKey {
		return fromReply(r.dialogue.HandleAttachment(ctx, userID, data))
	}
	if name == "" {
		return Result{Text: "File name is required for uploads."}
	}
	return r.UploadTo(ctx, userID, data, name)
}

// ExecuteCommand runs a shell command on the user's session.
func (r *Router) ExecuteCommand(ctx context.Context, userID int64, command string) Result {
	if strings.TrimSpace(command) == "" {
		return Result{Text: "Command cannot be empty."}
	}
	res, err := r.sessions.Execute(ctx, userID, command, 0)
	if err != nil {
		return fromError(err)
	}
	return fromExec(res)
}

// Disconnect closes the user's session.
func (r *Router) Disconnect(userID int64) Result {
	if err := r.sessions.Disconnect(userID); err != nil {
		return fromError(err)
	}
	return Result{OK: true, Text: "Disconnected."}
}

// Status describes the user's session, or reports that none exists.
func (r *Router) Status(userID int64) Result {
	info, ok := r.sessions.GetSession(userID)
	if !ok {
		return Result{Text: "Not connected."}
	}
	idle := time.Since(info.LastActivity).Round(time.Second)
	return Result{
		OK: true,
		Text: fmt.Sprintf("Connected to %s:%d as %s\nDirectory: %s\nConnected: %s\nIdle: %s",
			info.Host, info.Port, info.Username, info.CurrentDirectory,
			info.ConnectedAt.Format(time.RFC3339), idle),
	}
}

// ListFiles lists the session's current working directory.
func (r *Router) ListFiles(ctx context.Context, userID int64) Result {
	return r.ExecuteCommand(ctx, userID, "ls -la")
}

// UploadTo writes data to path on the remote host.
func (r *Router) UploadTo(ctx context.Context, userID int64, data []byte, path string) Result {
	remotePath, err := r.sessions.Upload(ctx, userID, data, path)
	if err != nil {
		return fromError(err)
	}
	return Result{OK: true, Text: fmt.Sprintf("Uploaded %d bytes to %s", len(data), remotePath)}
}

// DownloadFrom fetches path from the remote host and returns its content.
func (r *Router) DownloadFrom(ctx context.Context, userID int64, path string) Result {
	data, remotePath, err := r.sessions.Download(ctx, userID, path)
	if err != nil {
		return fromError(err)
	}
	name := remotePath
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return Result{OK: true, Payload: data, Filename: name,
		Text: fmt.Sprintf("Downloaded %d bytes from %s", len(data), remotePath)}
}

// Monitor runs the named monitoring template on the user's session.
func (r *Router) Monitor(ctx context.Context, userID int64, name string) Result {
	cmd, ok := r.monitors.Command(name)
	if !ok {
		return Result{Text: fmt.Sprintf("Unknown monitor %q. Available: %s",
			name, strings.Join(r.monitors.Names(), ", "))}
	}
	return r.ExecuteCommand(ctx, userID, cmd)
}

// MonitorNames lists the available monitoring templates.
func (r *Router) MonitorNames() Result {
	return Result{OK: true, Text: strings.Join(r.monitors.Names(), "\n")}
}

func fromReply(reply conversation.Reply) Result {
	return Result{OK: reply.OK, Text: reply.Text, ScrubInput: reply.ScrubInput}
}

func fromExec(res sshsession.Result) Result {
	var b strings.Builder
	if res.Stdout != "" {
		b.WriteString(res.Stdout)
	}
	if res.Stderr != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(res.Stderr)
	}
	text := b.String()
	if text == "" {
		text = "(no output)"
	}
	if res.OK && res.ExitCode != 0 {
		text = fmt.Sprintf("%s\n(exit code %d)", text, res.ExitCode)
	}
	return Result{OK: res.OK, Text: text}
}

func fromError(err error) Result {
	return Result{Text: err.Error()}
}
