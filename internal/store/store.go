// Package store adapts the sqlite database into the session persistence
// gateway. The auth secret is fernet-encrypted on the way in and decrypted
// on the way out, so a plaintext password never reaches disk. Swapping this
// package for a different storage or token scheme leaves the orchestrator
// untouched.
package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sshbridge/sshbridge/internal/crypto"
	"github.com/sshbridge/sshbridge/internal/database"
	"github.com/sshbridge/sshbridge/internal/sshsession"
)

// SessionStore implements sshsession.Gateway on top of the database package.
type SessionStore struct{}

func NewSessionStore() *SessionStore {
	return &SessionStore{}
}

// Save fully rewrites the user's record. An empty plaintext secret keeps the
// previously stored ciphertext, so working-directory updates do not wipe
// credentials.
func (s *SessionStore) Save(rec sshsession.Record) error {
	secret := ""
	if rec.Secret != "" {
		enc, err := crypto.Encrypt(rec.Secret)
		if err != nil {
			return fmt.Errorf("encrypt secret: %w", err)
		}
		secret = enc
	} else {
		var existing database.SessionRecord
		if err := database.DB.First(&existing, "user_id = ?", rec.UserID).Error; err == nil {
			secret = existing.Secret
		}
	}

	row := database.SessionRecord{
		UserID:           rec.UserID,
		Host:             rec.Host,
		Port:             rec.Port,
		Username:         rec.Username,
		Secret:           secret,
		CurrentDirectory: rec.CurrentDirectory,
		SessionID:        rec.SessionID,
	}
	return database.DB.Save(&row).Error
}

// Load returns the record for one user, with the secret decrypted.
func (s *SessionStore) Load(userID int64) (sshsession.Record, bool, error) {
	var row database.SessionRecord
	if err := database.DB.First(&row, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return sshsession.Record{}, false, nil
		}
		return sshsession.Record{}, false, err
	}
	rec, err := toRecord(row)
	if err != nil {
		return sshsession.Record{}, false, err
	}
	return rec, true, nil
}

// LoadAll returns every persisted record. Records whose secret fails to
// decrypt (for example after a key change) are returned with an empty
// secret rather than dropped, so the caller can decide to delete them.
func (s *SessionStore) LoadAll() ([]sshsession.Record, error) {
	var rows []database.SessionRecord
	if err := database.DB.Order("user_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	recs := make([]sshsession.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := toRecord(row)
		if err != nil {
			rec = recordShape(row)
			rec.Secret = ""
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *SessionStore) Delete(userID int64) error {
	return database.DB.Delete(&database.SessionRecord{}, "user_id = ?", userID).Error
}

func toRecord(row database.SessionRecord) (sshsession.Record, error) {
	secret, err := crypto.Decrypt(row.Secret)
	if err != nil {
		return sshsession.Record{}, fmt.Errorf("decrypt secret for user %d: %w", row.UserID, err)
	}
	rec := recordShape(row)
	rec.Secret = secret
	return rec, nil
}

func recordShape(row database.SessionRecord) sshsession.Record {
	return sshsession.Record{
		UserID:           row.UserID,
		Host:             row.Host,
		Port:             row.Port,
		Username:         row.Username,
		CurrentDirectory: row.CurrentDirectory,
		SessionID:        row.SessionID,
		SavedAt:          row.SavedAt,
	}
}
