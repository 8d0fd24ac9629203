package database

import "time"

// SessionRecord is the persisted shape of one user's connection parameters.
// One row per user; every save fully rewrites the row. Secret holds the
// fernet-encrypted password for password-auth sessions and is empty for
// key-auth sessions (private keys are never persisted).
type SessionRecord struct {
	UserID           int64     `gorm:"primaryKey" json:"user_id"`
	Host             string    `gorm:"not null" json:"host"`
	Port             int       `gorm:"not null;default:22" json:"port"`
	Username         string    `gorm:"not null" json:"username"`
	Secret           string    `json:"-"` // fernet-encrypted
	CurrentDirectory string    `gorm:"default:~" json:"current_directory"`
	SessionID        string    `json:"session_id"`
	SavedAt          time.Time `gorm:"autoUpdateTime" json:"saved_at"`
}

// Setting is a generic key/value row. Used for the fernet key, among others.
type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
