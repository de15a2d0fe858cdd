package models

import (
	"strconv"
	"time"
)

// Alert categories.
const (
	AlertDistraction         = "distraction"
	AlertMultipleDistraction = "multiple_distractions"
	AlertInactivity          = "inactivity"
)

// Alert severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Alert is a persisted notification produced by the anomaly detector.
type Alert struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"not null;index" json:"sessionId"`
	Category  string    `gorm:"not null;type:varchar(32)" json:"category"`
	Message   string    `gorm:"not null" json:"message"`
	Severity  string    `gorm:"not null;type:varchar(16)" json:"severity"`
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`
	Resolved  bool      `gorm:"not null;default:false" json:"resolved"`
}

func (a *Alert) Key() string {
	return strconv.FormatUint(uint64(a.ID), 10)
}

// AlertDraft is an alert before the store assigns it an identity and a time.
// Penalty is informational and never applied to a stored score.
type AlertDraft struct {
	SessionID string `json:"sessionId"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	Severity  string `json:"severity"`
	Penalty   int    `json:"penalty,omitempty"`
}
