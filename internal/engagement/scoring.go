// Package engagement holds the pure scoring and anomaly rules of the
// engagement engine. Nothing in here touches storage or the network.
package engagement

import (
	"math"
	"time"

	"engagement-service/internal/models"
)

const (
	// InactivityThreshold is the idle interval after which a reported score
	// starts to decay.
	InactivityThreshold = 60 * time.Second

	// InactivityDecay is subtracted once per whole idle interval.
	InactivityDecay = 10

	highLevelFloor   = 70
	mediumLevelFloor = 40
)

// Level is the coarse attention classification reported to observers.
type Level string

const (
	LevelHigh   Level = "High"
	LevelMedium Level = "Medium"
	LevelLow    Level = "Low"
)

// MemberSummary is one member's row of an engagement update.
type MemberSummary struct {
	UserID         string `json:"userId"`
	Name           string `json:"name"`
	AttentionScore int    `json:"attentionScore"`
	Status         Level  `json:"status"`
	LastActivityMs int64  `json:"lastActivityMs"`
}

// Summary is the result of aggregating a session's members at one instant.
type Summary struct {
	SessionID        string          `json:"sessionId"`
	OverallAttention int             `json:"overallAttention"`
	Members          []MemberSummary `json:"perMemberSummaries"`
}

// Adjust applies the per-event delta to a score, clamped to [0, 100].
func Adjust(current int, eventType string) int {
	switch eventType {
	case models.EventClick, models.EventScroll:
		current += 2
	case models.EventFocus:
		current += 10
	case models.EventBlur, models.EventTabSwitch:
		current -= 15
	}
	return Clamp(current)
}

// Clamp bounds a score to the valid attention range.
func Clamp(score int) int {
	if score < models.MinAttentionScore {
		return models.MinAttentionScore
	}
	if score > models.MaxAttentionScore {
		return models.MaxAttentionScore
	}
	return score
}

// Classify maps a score to its attention level.
func Classify(score int) Level {
	switch {
	case score >= highLevelFloor:
		return LevelHigh
	case score >= mediumLevelFloor:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Decayed returns the score to report for a member idle since lastActivity.
// The stored score is not changed; decay only exists at evaluation time.
func Decayed(score int, lastActivity, now time.Time) int {
	idle := now.Sub(lastActivity)
	if idle <= InactivityThreshold {
		return Clamp(score)
	}
	intervals := int64(idle / InactivityThreshold)
	decayed := int64(score) - intervals*InactivityDecay
	if decayed < 0 {
		return 0
	}
	return Clamp(int(decayed))
}

// Aggregate computes the session-wide attention and the per-member rows.
// Offline members are left out entirely. Members in any other non-online
// state are listed but do not count toward the average.
func Aggregate(sessionID string, members []models.User, now time.Time) Summary {
	summary := Summary{
		SessionID: sessionID,
		Members:   make([]MemberSummary, 0, len(members)),
	}

	total, online := 0, 0
	for i := range members {
		m := &members[i]
		if m.ConnectionStatus == models.StatusOffline {
			continue
		}

		score := Decayed(m.AttentionScore, m.LastActivity, now)
		if m.IsOnline() {
			total += score
			online++
		}

		var lastMs int64
		if !m.LastActivity.IsZero() {
			lastMs = m.LastActivity.UnixMilli()
		}
		summary.Members = append(summary.Members, MemberSummary{
			UserID:         m.ExternalID,
			Name:           m.Name,
			AttentionScore: score,
			Status:         Classify(score),
			LastActivityMs: lastMs,
		})
	}

	if online > 0 {
		summary.OverallAttention = int(math.Round(float64(total) / float64(online)))
	}
	return summary
}
