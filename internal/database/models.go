package database

import "time"

type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SavedConnection is a named SSH connection profile. Password and Passphrase
// hold Fernet tokens, never plaintext.
type SavedConnection struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string    `gorm:"uniqueIndex;not null;size:128" json:"name"`
	Host           string    `gorm:"not null" json:"host"`
	Port           int       `gorm:"not null;default:22" json:"port"`
	Username       string    `gorm:"not null" json:"username"`
	AuthType       string    `gorm:"not null;default:password" json:"auth_type"`
	Password       string    `json:"-"`
	PrivateKeyPath string    `json:"private_key_path"`
	Passphrase     string    `json:"-"`
	LogPath        string    `json:"log_path"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TailRecord is the history row of one finished tail session.
type TailRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  string    `gorm:"index;size:64" json:"session_id"`
	Host       string    `gorm:"index;not null" json:"host"`
	Port       int       `gorm:"not null" json:"port"`
	Username   string    `json:"username"`
	Path       string    `gorm:"not null" json:"path"`
	Reason     string    `gorm:"index" json:"reason"`
	Error      string    `json:"error,omitempty"`
	Lines      int       `json:"lines"`
	Dropped    int       `json:"dropped"`
	Truncated  int       `json:"truncated"`
	Streamed   bool      `json:"streamed"`
	DurationMs int64     `json:"duration_ms"`
	StartedAt  time.Time `json:"started_at"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
