package engagement

import (
	"fmt"
	"time"

	"engagement-service/internal/models"
)

const (
	// WindowSize is the number of most recent events the windowed rule inspects.
	WindowSize = 10

	// DistractionThreshold is how many distraction events in the window
	// raise a multiple_distractions alert.
	DistractionThreshold = 3

	// InactivityWindow is how old the newest event may get before the user
	// counts as inactive.
	InactivityWindow = 2 * time.Minute

	MultipleDistractionPenalty = -20
	InactivityPenalty          = -10
)

// DetectEvent classifies a single event. Only tab switches and blurs
// produce an alert.
func DetectEvent(sessionID, eventType string) *models.AlertDraft {
	if !models.IsDistraction(eventType) {
		return nil
	}
	return &models.AlertDraft{
		SessionID: sessionID,
		Category:  models.AlertDistraction,
		Message:   fmt.Sprintf("Potential distraction detected: %s", eventType),
		Severity:  models.SeverityMedium,
	}
}

// DetectWindow inspects a user's recent events, newest first, and returns
// up to two alerts. Events past WindowSize are ignored.
func DetectWindow(sessionID string, events []models.ActivityEvent, now time.Time) []models.AlertDraft {
	if len(events) > WindowSize {
		events = events[:WindowSize]
	}

	var drafts []models.AlertDraft

	distractions := 0
	for _, e := range events {
		if models.IsDistraction(e.EventType) {
			distractions++
		}
	}
	if distractions >= DistractionThreshold {
		drafts = append(drafts, models.AlertDraft{
			SessionID: sessionID,
			Category:  models.AlertMultipleDistraction,
			Message:   fmt.Sprintf("User showing signs of disengagement with %d distraction events", distractions),
			Severity:  models.SeverityHigh,
			Penalty:   MultipleDistractionPenalty,
		})
	}

	if len(events) > 0 && now.Sub(events[0].Timestamp) > InactivityWindow {
		drafts = append(drafts, models.AlertDraft{
			SessionID: sessionID,
			Category:  models.AlertInactivity,
			Message:   "User has been inactive for over 2 minutes",
			Severity:  models.SeverityMedium,
			Penalty:   InactivityPenalty,
		})
	}

	return drafts
}
