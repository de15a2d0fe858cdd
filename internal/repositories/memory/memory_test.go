package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"engagement-service/internal/models"
	"engagement-service/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore() (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	return New(WithClock(clock.Now)), clock
}

func TestCreateUserDefaults(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	u, err := store.CreateUser(ctx, models.NewUser{ExternalID: "42", SessionID: "1", Name: "Ada"})
	require.NoError(t, err)

	assert.Equal(t, uint(1), u.ID)
	assert.Equal(t, models.StatusOnline, u.ConnectionStatus)
	assert.Equal(t, models.InitialAttentionScore, u.AttentionScore)
	assert.Equal(t, clock.Now(), u.LastActivity)
}

func TestEnsureUserReusesRecord(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	u, err := store.EnsureUser(ctx, models.NewUser{ExternalID: "42", SessionID: "1", Name: "Ada"})
	require.NoError(t, err)
	_, err = store.SetUserScore(ctx, u.ID, 55)
	require.NoError(t, err)
	_, err = store.SetUserStatus(ctx, u.ID, models.StatusOffline)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	again, err := store.EnsureUser(ctx, models.NewUser{ExternalID: "42", SessionID: "1", Name: "Other"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, "Ada", again.Name)
	assert.Equal(t, 55, again.AttentionScore)
	assert.Equal(t, models.StatusOnline, again.ConnectionStatus)
	assert.Equal(t, clock.Now(), again.LastActivity)

	other, err := store.EnsureUser(ctx, models.NewUser{ExternalID: "42", SessionID: "2"})
	require.NoError(t, err)
	assert.NotEqual(t, u.ID, other.ID)
}

func TestEnsureUserConcurrentCallsCreateOneRecord(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.EnsureUser(ctx, models.NewUser{ExternalID: "42", SessionID: "1"})
		}()
	}
	wg.Wait()

	users, err := store.GetUsersBySession(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestSettersTouchLastActivity(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	u, err := store.CreateUser(ctx, models.NewUser{ExternalID: "42", SessionID: "1"})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	updated, err := store.SetUserScore(ctx, u.ID, 55)
	require.NoError(t, err)
	assert.Equal(t, 55, updated.AttentionScore)
	assert.Equal(t, clock.Now(), updated.LastActivity)

	clock.Advance(time.Minute)
	updated, err = store.SetUserStatus(ctx, u.ID, models.StatusOffline)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, updated.ConnectionStatus)
	assert.Equal(t, 55, updated.AttentionScore)
	assert.Equal(t, clock.Now(), updated.LastActivity)
}

func TestSettersUnknownUser(t *testing.T) {
	store, _ := newTestStore()

	_, err := store.SetUserScore(context.Background(), 99, 10)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	_, err = store.SetUserStatus(context.Background(), 99, models.StatusOnline)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestGetUsersBySession(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	_, _ = store.CreateUser(ctx, models.NewUser{ExternalID: "a", SessionID: "1"})
	_, _ = store.CreateUser(ctx, models.NewUser{ExternalID: "b", SessionID: "2"})
	_, _ = store.CreateUser(ctx, models.NewUser{ExternalID: "c", SessionID: "1"})

	users, err := store.GetUsersBySession(ctx, "1")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "a", users[0].ExternalID)
	assert.Equal(t, "c", users[1].ExternalID)

	found, err := repositories.FindUser(ctx, store, "1", "c")
	require.NoError(t, err)
	assert.Equal(t, uint(3), found.ID)

	_, err = repositories.FindUser(ctx, store, "2", "c")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestRecentEventsNewestFirst(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	for _, et := range []string{models.EventClick, models.EventBlur, models.EventFocus} {
		_, err := store.CreateActivityEvent(ctx, models.NewActivityEvent{UserID: 7, EventType: et})
		require.NoError(t, err)
		clock.Advance(time.Second)
	}
	_, _ = store.CreateActivityEvent(ctx, models.NewActivityEvent{UserID: 8, EventType: models.EventClick})

	recent, err := store.RecentEventsForUser(ctx, 7, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, models.EventFocus, recent[0].EventType)
	assert.Equal(t, models.EventBlur, recent[1].EventType)

	all, err := store.RecentEventsForUser(ctx, 7, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestAlertsLifecycle(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	first, err := store.CreateAlert(ctx, models.AlertDraft{SessionID: "1", Category: models.AlertDistraction, Severity: models.SeverityMedium})
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := store.CreateAlert(ctx, models.AlertDraft{SessionID: "1", Category: models.AlertInactivity, Severity: models.SeverityMedium})
	require.NoError(t, err)
	_, _ = store.CreateAlert(ctx, models.AlertDraft{SessionID: "2", Category: models.AlertInactivity})

	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.Resolved)

	alerts, err := store.AlertsBySession(ctx, "1", 0)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, second.ID, alerts[0].ID)

	resolved, err := store.ResolveAlert(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)

	_, err = store.ResolveAlert(ctx, 999)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestSessionsLifecycle(t *testing.T) {
	store := New(WithSeedSession("Introduction to Programming Concepts"))
	ctx := context.Background()

	active, err := store.ActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	created, err := store.CreateSession(ctx, models.NewSession{Name: "Algorithms", OwnerID: 3})
	require.NoError(t, err)
	assert.True(t, created.Active)

	ended, err := store.EndSession(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, ended.Active)
	require.NotNil(t, ended.EndTime)

	active, err = store.ActiveSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, err = store.GetSession(ctx, 404)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestConcurrentWrites(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	u, _ := store.CreateUser(ctx, models.NewUser{ExternalID: "a", SessionID: "1"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = store.SetUserScore(ctx, u.ID, i)
			_, _ = store.CreateActivityEvent(ctx, models.NewActivityEvent{UserID: u.ID, EventType: models.EventClick})
		}(i)
	}
	wg.Wait()

	events, err := store.RecentEventsForUser(ctx, u.ID, 100)
	require.NoError(t, err)
	assert.Len(t, events, 50)
}
