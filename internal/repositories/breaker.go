package repositories

import (
	"context"
	"errors"
	"time"

	"engagement-service/internal/models"
	"engagement-service/pkg/logger"

	"github.com/sony/gobreaker"
)

// BreakerConfig holds the circuit breaker settings for the store.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the settings used when nothing is configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "durable-store",
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      10,
	}
}

// BreakerStore guards every store call with one circuit breaker. Missing
// records and cancelled contexts do not count as failures.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

var _ Store = (*BreakerStore)(nil)

func NewBreakerStore(next Store, cfg BreakerConfig, log *logger.Logger) *BreakerStore {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Store circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, context.Canceled)
		},
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// State reports the breaker state, for health endpoints.
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

func guard[T any](b *BreakerStore, call func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return call()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

func (b *BreakerStore) GetUsersBySession(ctx context.Context, sessionID string) ([]models.User, error) {
	return guard(b, func() ([]models.User, error) { return b.next.GetUsersBySession(ctx, sessionID) })
}

func (b *BreakerStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return guard(b, func() (*models.User, error) { return b.next.GetUser(ctx, id) })
}

func (b *BreakerStore) CreateUser(ctx context.Context, in models.NewUser) (*models.User, error) {
	return guard(b, func() (*models.User, error) { return b.next.CreateUser(ctx, in) })
}

func (b *BreakerStore) EnsureUser(ctx context.Context, in models.NewUser) (*models.User, error) {
	return guard(b, func() (*models.User, error) { return b.next.EnsureUser(ctx, in) })
}

func (b *BreakerStore) SetUserStatus(ctx context.Context, id uint, status string) (*models.User, error) {
	return guard(b, func() (*models.User, error) { return b.next.SetUserStatus(ctx, id, status) })
}

func (b *BreakerStore) SetUserScore(ctx context.Context, id uint, score int) (*models.User, error) {
	return guard(b, func() (*models.User, error) { return b.next.SetUserScore(ctx, id, score) })
}

func (b *BreakerStore) CreateActivityEvent(ctx context.Context, in models.NewActivityEvent) (*models.ActivityEvent, error) {
	return guard(b, func() (*models.ActivityEvent, error) { return b.next.CreateActivityEvent(ctx, in) })
}

func (b *BreakerStore) RecentEventsForUser(ctx context.Context, userID uint, limit int) ([]models.ActivityEvent, error) {
	return guard(b, func() ([]models.ActivityEvent, error) { return b.next.RecentEventsForUser(ctx, userID, limit) })
}

func (b *BreakerStore) CreateAlert(ctx context.Context, draft models.AlertDraft) (*models.Alert, error) {
	return guard(b, func() (*models.Alert, error) { return b.next.CreateAlert(ctx, draft) })
}

func (b *BreakerStore) AlertsBySession(ctx context.Context, sessionID string, limit int) ([]models.Alert, error) {
	return guard(b, func() ([]models.Alert, error) { return b.next.AlertsBySession(ctx, sessionID, limit) })
}

func (b *BreakerStore) ResolveAlert(ctx context.Context, id uint) (*models.Alert, error) {
	return guard(b, func() (*models.Alert, error) { return b.next.ResolveAlert(ctx, id) })
}

func (b *BreakerStore) CreateSession(ctx context.Context, in models.NewSession) (*models.Session, error) {
	return guard(b, func() (*models.Session, error) { return b.next.CreateSession(ctx, in) })
}

func (b *BreakerStore) GetSession(ctx context.Context, id uint) (*models.Session, error) {
	return guard(b, func() (*models.Session, error) { return b.next.GetSession(ctx, id) })
}

func (b *BreakerStore) EndSession(ctx context.Context, id uint) (*models.Session, error) {
	return guard(b, func() (*models.Session, error) { return b.next.EndSession(ctx, id) })
}

func (b *BreakerStore) ActiveSessions(ctx context.Context) ([]models.Session, error) {
	return guard(b, func() ([]models.Session, error) { return b.next.ActiveSessions(ctx) })
}
