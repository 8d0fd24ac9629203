// File transfer over the managed SSH sessions. Transfers run as shell
// commands on fresh exec sessions: uploads stream base64 chunks to avoid
// shell argument limits, downloads capture cat output. Paths are handed to
// the remote shell verbatim so "~" and environment references keep working.
package sshsession

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/sshbridge/sshbridge/internal/logutil"
)

// uploadChunkSize bounds the base64 payload of one append command.
const uploadChunkSize = 48000

// Upload writes data to destPath on the user's remote host, replacing any
// existing file. A relative destination is resolved against the session's
// current working directory. The working directory is not mutated.
func (m *Manager) Upload(ctx context.Context, userID int64, data []byte, destPath string) (string, error) {
	sess, err := m.getSession(userID)
	if err != nil {
		return "", err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed || sess.client == nil {
		return "", newError(KindNotConnected, "no active SSH connection, please connect first")
	}
	sess.touch()
	defer sess.touch()

	remotePath := resolveRemotePath(sess.wd, destPath)
	start := time.Now()

	// Truncate or create the target, then append decoded chunks.
	if err := m.runTransferCommand(ctx, sess, fmt.Sprintf(": > %s", remotePath)); err != nil {
		return "", err
	}
	for i := 0; i < len(data); i += uploadChunkSize {
		end := i + uploadChunkSize
		if end > len(data) {
			end = len(data)
		}
		b64 := base64.StdEncoding.EncodeToString(data[i:end])
		cmd := fmt.Sprintf("echo '%s' | base64 -d >> %s", b64, remotePath)
		if err := m.runTransferCommand(ctx, sess, cmd); err != nil {
			return "", err
		}
	}

	log.Printf("[sessions] user %d uploaded %d bytes to %s in %s",
		userID, len(data), logutil.SanitizeForLog(remotePath), time.Since(start))
	return remotePath, nil
}

// Download fetches srcPath from the user's remote host. A relative source is
// resolved against the session's current working directory. The remote size
// is checked first; a file larger than the configured maximum is refused
// before any bytes are transferred.
func (m *Manager) Download(ctx context.Context, userID int64, srcPath string) ([]byte, string, error) {
	sess, err := m.getSession(userID)
	if err != nil {
		return nil, "", err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed || sess.client == nil {
		return nil, "", newError(KindNotConnected, "no active SSH connection, please connect first")
	}
	sess.touch()
	defer sess.touch()

	remotePath := resolveRemotePath(sess.wd, srcPath)

	stdout, stderr, exitCode, err := runCommand(ctx, sess.client, fmt.Sprintf("stat -c %%s %s", remotePath), m.cfg.CommandTimeout)
	if err != nil {
		return nil, "", err
	}
	if exitCode != 0 {
		return nil, "", newError(KindTransport, "file not found: %s", strings.TrimSpace(firstNonEmpty(stderr, remotePath)))
	}
	size, err := strconv.ParseInt(strings.TrimSpace(stdout), 10, 64)
	if err != nil {
		return nil, "", newError(KindTransport, "could not determine remote file size")
	}
	if size > m.cfg.MaxFileSize {
		return nil, "", newError(KindResourceLimit, "file too large (%d bytes), max %d bytes", size, m.cfg.MaxFileSize)
	}

	start := time.Now()
	stdout, stderr, exitCode, err = runCommand(ctx, sess.client, fmt.Sprintf("cat %s", remotePath), m.cfg.CommandTimeout)
	if err != nil {
		return nil, "", err
	}
	if exitCode != 0 {
		return nil, "", newError(KindTransport, "download error: %s", strings.TrimSpace(stderr))
	}

	log.Printf("[sessions] user %d downloaded %d bytes from %s in %s",
		userID, len(stdout), logutil.SanitizeForLog(remotePath), time.Since(start))
	return []byte(stdout), remotePath, nil
}

// runTransferCommand runs one shell step of a transfer, mapping a non-zero
// exit into a transport error carrying the remote stderr.
func (m *Manager) runTransferCommand(ctx context.Context, sess *Session, cmd string) error {
	_, stderr, exitCode, err := runCommand(ctx, sess.client, cmd, m.cfg.CommandTimeout)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return newError(KindTransport, "upload error: %s", strings.TrimSpace(stderr))
	}
	return nil
}

// resolveRemotePath resolves path against the working directory unless it is
// already absolute.
func resolveRemotePath(wd, path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return wd + "/" + path
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
