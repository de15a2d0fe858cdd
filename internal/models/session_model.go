package models

import (
	"strconv"
	"time"
)

// Session is a logical grouping of users sharing one engagement stream.
type Session struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Name      string     `gorm:"not null" json:"name"`
	OwnerID   uint       `gorm:"not null" json:"ownerId"`
	Active    bool       `gorm:"not null;default:true" json:"active"`
	StartTime time.Time  `gorm:"not null" json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}

// Key returns the session id in the string form used by the live engine.
func (s *Session) Key() string {
	return strconv.FormatUint(uint64(s.ID), 10)
}

/** -------------------- DTOs -------------------- */

type NewSession struct {
	Name    string `json:"name" binding:"required"`
	OwnerID uint   `json:"ownerId"`
}
