// Package memory is an in-process implementation of the durable store,
// used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"engagement-service/internal/models"
	"engagement-service/internal/repositories"
)

// Store keeps every record in maps guarded by one RWMutex. Returned records
// are copies, so callers can hold them without synchronization.
type Store struct {
	mu       sync.RWMutex
	users    map[uint]models.User
	events   []models.ActivityEvent
	sessions map[uint]models.Session
	alerts   map[uint]models.Alert

	nextUserID    uint
	nextEventID   uint
	nextSessionID uint
	nextAlertID   uint

	now func() time.Time
}

var _ repositories.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the clock used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSeedSession creates one session up front.
func WithSeedSession(name string) Option {
	return func(s *Store) {
		s.insertSession(models.NewSession{Name: name, OwnerID: 1})
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		users:         make(map[uint]models.User),
		sessions:      make(map[uint]models.Session),
		alerts:        make(map[uint]models.Alert),
		nextUserID:    1,
		nextEventID:   1,
		nextSessionID: 1,
		nextAlertID:   1,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// Users
// =============================================================================

func (s *Store) GetUsersBySession(ctx context.Context, sessionID string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0)
	for _, u := range s.users {
		if u.SessionID == sessionID {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, repositories.ErrNotFound)
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, in models.NewUser) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.insertUser(in)
	return &u, nil
}

func (s *Store) EnsureUser(ctx context.Context, in models.NewUser) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, u := range s.users {
		if u.SessionID != in.SessionID || u.ExternalID != in.ExternalID {
			continue
		}
		now := s.now()
		u.ConnectionStatus = models.StatusOnline
		u.LastActivity = now
		u.UpdatedAt = now
		s.users[id] = u
		return &u, nil
	}
	u := s.insertUser(in)
	return &u, nil
}

// insertUser requires s.mu held for writing.
func (s *Store) insertUser(in models.NewUser) models.User {
	now := s.now()
	u := models.User{
		ID:               s.nextUserID,
		ExternalID:       in.ExternalID,
		SessionID:        in.SessionID,
		Name:             in.Name,
		Email:            in.Email,
		ConnectionStatus: models.StatusOnline,
		LastActivity:     now,
		AttentionScore:   models.InitialAttentionScore,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.nextUserID++
	s.users[u.ID] = u
	return u
}

func (s *Store) SetUserStatus(ctx context.Context, id uint, status string) (*models.User, error) {
	return s.updateUser(id, func(u *models.User) { u.ConnectionStatus = status })
}

func (s *Store) SetUserScore(ctx context.Context, id uint, score int) (*models.User, error) {
	return s.updateUser(id, func(u *models.User) { u.AttentionScore = score })
}

func (s *Store) updateUser(id uint, mutate func(*models.User)) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, repositories.ErrNotFound)
	}
	mutate(&u)
	now := s.now()
	u.LastActivity = now
	u.UpdatedAt = now
	s.users[id] = u
	return &u, nil
}

// =============================================================================
// Activity events
// =============================================================================

func (s *Store) CreateActivityEvent(ctx context.Context, in models.NewActivityEvent) (*models.ActivityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := in.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	e := models.ActivityEvent{
		ID:        s.nextEventID,
		UserID:    in.UserID,
		EventType: in.EventType,
		Timestamp: ts,
		Data:      in.Data,
	}
	s.nextEventID++
	s.events = append(s.events, e)
	return &e, nil
}

func (s *Store) RecentEventsForUser(ctx context.Context, userID uint, limit int) ([]models.ActivityEvent, error) {
	if limit <= 0 {
		limit = repositories.DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ActivityEvent, 0)
	for _, e := range s.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// =============================================================================
// Alerts
// =============================================================================

func (s *Store) CreateAlert(ctx context.Context, draft models.AlertDraft) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := models.Alert{
		ID:        s.nextAlertID,
		SessionID: draft.SessionID,
		Category:  draft.Category,
		Message:   draft.Message,
		Severity:  draft.Severity,
		Timestamp: s.now(),
	}
	s.nextAlertID++
	s.alerts[a.ID] = a
	return &a, nil
}

func (s *Store) AlertsBySession(ctx context.Context, sessionID string, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = repositories.DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Alert, 0)
	for _, a := range s.alerts {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ResolveAlert(ctx context.Context, id uint) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %d: %w", id, repositories.ErrNotFound)
	}
	a.Resolved = true
	s.alerts[id] = a
	return &a, nil
}

// =============================================================================
// Sessions
// =============================================================================

func (s *Store) CreateSession(ctx context.Context, in models.NewSession) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.insertSession(in)
	return &session, nil
}

// insertSession must be called with mu held or before the store is shared.
func (s *Store) insertSession(in models.NewSession) models.Session {
	session := models.Session{
		ID:        s.nextSessionID,
		Name:      in.Name,
		OwnerID:   in.OwnerID,
		Active:    true,
		StartTime: s.now(),
	}
	s.nextSessionID++
	s.sessions[session.ID] = session
	return session
}

func (s *Store) GetSession(ctx context.Context, id uint) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %d: %w", id, repositories.ErrNotFound)
	}
	return &session, nil
}

func (s *Store) EndSession(ctx context.Context, id uint) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %d: %w", id, repositories.ErrNotFound)
	}
	end := s.now()
	session.Active = false
	session.EndTime = &end
	s.sessions[id] = session
	return &session, nil
}

func (s *Store) ActiveSessions(ctx context.Context) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Session, 0)
	for _, session := range s.sessions {
		if session.Active {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
