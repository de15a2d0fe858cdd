package models

import "time"

// Activity event types understood by the scoring engine.
const (
	EventClick     = "click"
	EventScroll    = "scroll"
	EventTabSwitch = "tabSwitch"
	EventFocus     = "focus"
	EventBlur      = "blur"
)

// IsDistraction reports whether an event type signals the user left the session.
func IsDistraction(eventType string) bool {
	return eventType == EventTabSwitch || eventType == EventBlur
}

// ActivityEvent is one raw activity signal as persisted.
type ActivityEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"userId"`
	EventType string    `gorm:"not null;type:varchar(32)" json:"eventType"`
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`
	Data      string    `gorm:"type:text" json:"data,omitempty"`
}

/** -------------------- DTOs -------------------- */

type NewActivityEvent struct {
	UserID    uint
	EventType string
	// Data is the client's free-form payload, stored verbatim.
	Data string
	// Timestamp defaults to the store's clock when zero.
	Timestamp time.Time
}
