// Package repositories defines the durable record store the engagement
// engine talks to, plus decorators shared by its implementations.
package repositories

import (
	"context"
	"errors"

	"engagement-service/internal/models"
)

// ErrNotFound is returned when a record with the requested id does not exist.
var ErrNotFound = errors.New("record not found")

// DefaultListLimit is applied when a list call passes a non-positive limit.
const DefaultListLimit = 100

// UserStore holds per-session user records.
type UserStore interface {
	GetUsersBySession(ctx context.Context, sessionID string) ([]models.User, error)
	GetUser(ctx context.Context, id uint) (*models.User, error)
	// CreateUser stores a new record that starts online with a full score.
	CreateUser(ctx context.Context, in models.NewUser) (*models.User, error)
	// EnsureUser atomically marks the (session, external id) record online,
	// creating it when absent. Concurrent calls yield one record.
	EnsureUser(ctx context.Context, in models.NewUser) (*models.User, error)
	// SetUserStatus and SetUserScore also stamp the record's last activity.
	SetUserStatus(ctx context.Context, id uint, status string) (*models.User, error)
	SetUserScore(ctx context.Context, id uint, score int) (*models.User, error)
}

// EventStore holds raw activity events.
type EventStore interface {
	CreateActivityEvent(ctx context.Context, in models.NewActivityEvent) (*models.ActivityEvent, error)
	// RecentEventsForUser returns at most limit events, newest first.
	RecentEventsForUser(ctx context.Context, userID uint, limit int) ([]models.ActivityEvent, error)
}

// AlertStore holds alerts; the store assigns ids and timestamps.
type AlertStore interface {
	CreateAlert(ctx context.Context, draft models.AlertDraft) (*models.Alert, error)
	AlertsBySession(ctx context.Context, sessionID string, limit int) ([]models.Alert, error)
	ResolveAlert(ctx context.Context, id uint) (*models.Alert, error)
}

// SessionStore holds session records for the request/response API.
type SessionStore interface {
	CreateSession(ctx context.Context, in models.NewSession) (*models.Session, error)
	GetSession(ctx context.Context, id uint) (*models.Session, error)
	EndSession(ctx context.Context, id uint) (*models.Session, error)
	ActiveSessions(ctx context.Context) ([]models.Session, error)
}

// Store is the full durable record store contract.
type Store interface {
	UserStore
	EventStore
	AlertStore
	SessionStore
}

// FindUser looks up the record for an external user id within a session.
// It returns ErrNotFound when the user has never joined that session.
func FindUser(ctx context.Context, store UserStore, sessionID, externalID string) (*models.User, error) {
	users, err := store.GetUsersBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ExternalID == externalID {
			return &users[i], nil
		}
	}
	return nil, ErrNotFound
}
