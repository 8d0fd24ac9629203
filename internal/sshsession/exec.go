package sshsession

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/sshbridge/sshbridge/internal/logutil"
)

// truncationMarker is appended to command output cut at MaxOutputLength.
const truncationMarker = "\n... (output truncated)"

// Result is the outcome of a completed remote command. OK is false only for
// a failed directory change; a command that runs and exits non-zero is still
// a completed call, with the problem conveyed in Stderr and ExitCode.
type Result struct {
	OK       bool
	Stdout   string
	Stderr   string
	ExitCode int
}

// Execute runs command on the user's session. Commands starting with "cd "
// are rewritten into a directory change that updates the session's working
// directory; everything else runs with the working directory prepended so
// directory context persists without a long-lived interactive shell.
// A timeout of zero or less uses the configured command timeout. The
// session's activity timestamp is refreshed whether or not the command
// succeeds.
func (m *Manager) Execute(ctx context.Context, userID int64, command string, timeout time.Duration) (Result, error) {
	sess, err := m.getSession(userID)
	if err != nil {
		return Result{}, err
	}
	if timeout <= 0 {
		timeout = m.cfg.CommandTimeout
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed || sess.client == nil {
		return Result{}, newError(KindNotConnected, "no active SSH connection, please connect first")
	}
	sess.touch()
	defer sess.touch()

	trimmed := strings.TrimSpace(command)
	if strings.HasPrefix(trimmed, "cd ") {
		return m.changeDirectoryLocked(ctx, sess, strings.TrimSpace(trimmed[3:]), timeout)
	}

	full := fmt.Sprintf("cd %s && %s", sess.wd, command)
	log.Printf("[sessions] user %d executing: %s", userID, logutil.Truncate(logutil.SanitizeForLog(command), 80))

	stdout, stderr, exitCode, err := runCommand(ctx, sess.client, full, timeout)
	if err != nil {
		return Result{}, err
	}
	return Result{
		OK:       true,
		Stdout:   m.truncateOutput(stdout),
		Stderr:   m.truncateOutput(stderr),
		ExitCode: exitCode,
	}, nil
}

// changeDirectoryLocked resolves a cd request against the session's current
// directory and updates it to the absolute path the remote shell printed.
// Any error text leaves the working directory unchanged. Caller holds sess.mu.
func (m *Manager) changeDirectoryLocked(ctx context.Context, sess *Session, path string, timeout time.Duration) (Result, error) {
	full := fmt.Sprintf("cd %s && cd %s && pwd", sess.wd, path)

	stdout, stderr, _, err := runCommand(ctx, sess.client, full, timeout)
	if err != nil {
		return Result{}, err
	}

	if errText := strings.TrimSpace(stderr); errText != "" {
		return Result{OK: false, Stderr: m.truncateOutput(errText), ExitCode: 1}, nil
	}
	newDir := strings.TrimSpace(stdout)
	if newDir == "" {
		return Result{OK: false, Stderr: "could not determine new directory", ExitCode: 1}, nil
	}

	sess.wd = newDir
	m.saveRecordWithDir(sess, newDir)

	return Result{OK: true, Stdout: fmt.Sprintf("Changed directory to: %s", newDir)}, nil
}

// saveRecordWithDir persists the session with an explicit working directory,
// for callers that hold sess.mu and cannot take it again.
func (m *Manager) saveRecordWithDir(sess *Session, dir string) {
	if m.gw == nil {
		return
	}
	rec := Record{
		UserID:           sess.UserID,
		Host:             sess.Host,
		Port:             sess.Port,
		Username:         sess.Username,
		CurrentDirectory: dir,
		SessionID:        sess.ID,
		SavedAt:          time.Now(),
	}
	if err := m.gw.Save(rec); err != nil {
		log.Printf("[sessions] persist session for user %d: %v", sess.UserID, err)
	}
}

func (m *Manager) truncateOutput(s string) string {
	if len(s) > m.cfg.MaxOutputLength {
		return s[:m.cfg.MaxOutputLength] + truncationMarker
	}
	return s
}

// runCommand opens a fresh exec session on the client, runs cmd, and returns
// stdout, stderr, and the exit status. On timeout the exec session is closed
// but the client handle is left open for subsequent calls.
func runCommand(ctx context.Context, client *ssh.Client, cmd string, timeout time.Duration) (stdout, stderr string, exitCode int, err error) {
	session, err := client.NewSession()
	if err != nil {
		return "", "", -1, wrapError(KindTransport, err, "SSH error: %v", err)
	}
	defer session.Close()

	var outBuf, errBuf bytes.Buffer
	session.Stdout = &outBuf
	session.Stderr = &errBuf

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case runErr := <-done:
		if runErr != nil {
			var exitErr *ssh.ExitError
			if errors.As(runErr, &exitErr) {
				return outBuf.String(), errBuf.String(), exitErr.ExitStatus(), nil
			}
			return "", "", -1, wrapError(KindTransport, runErr, "SSH error: %v", runErr)
		}
		return outBuf.String(), errBuf.String(), 0, nil
	case <-timer.C:
		session.Close()
		return "", "", -1, newError(KindTimeout, "command execution timed out")
	case <-ctx.Done():
		session.Close()
		return "", "", -1, wrapError(KindTimeout, ctx.Err(), "command cancelled")
	}
}
