package models

import (
	"strconv"
	"time"
)

// Connection status values stored on a user record.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Score bounds and the score a freshly created user starts with.
const (
	MinAttentionScore     = 0
	MaxAttentionScore     = 100
	InitialAttentionScore = 100
)

/** --------------------ENTITIES-------------------- */

// User is the durable record of one participant inside one session.
// ExternalID is the opaque identifier the client sends on the wire.
type User struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ExternalID       string    `gorm:"not null;size:191;uniqueIndex:idx_users_session_external" json:"externalId"`
	SessionID        string    `gorm:"not null;size:191;uniqueIndex:idx_users_session_external" json:"sessionId"`
	Name             string    `gorm:"not null" json:"name"`
	Email            string    `json:"email"`
	ConnectionStatus string    `gorm:"not null;type:varchar(20);default:offline" json:"connectionStatus"`
	LastActivity     time.Time `json:"lastActivity"`
	AttentionScore   int       `gorm:"not null;default:100" json:"attentionScore"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Key returns the id as the string form used in logs and wire payloads.
func (u *User) Key() string {
	return strconv.FormatUint(uint64(u.ID), 10)
}

// IsOnline reports whether the record is in the online state.
func (u *User) IsOnline() bool {
	return u.ConnectionStatus == StatusOnline
}

/** -------------------- DTOs -------------------- */

// NewUser carries the fields needed to create a user record.
type NewUser struct {
	ExternalID string `json:"externalId" binding:"required"`
	SessionID  string `json:"sessionId" binding:"required"`
	Name       string `json:"name"`
	Email      string `json:"email"`
}
