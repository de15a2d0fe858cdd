package websocket

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"engagement-service/internal/models"
	"engagement-service/internal/repositories"
	"engagement-service/internal/repositories/memory"
	"engagement-service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubConnectCreatesUserAndBroadcasts(t *testing.T) {
	hub, store := createTestHub(t, DefaultHubConfig())
	c, _ := createTestClient(hub, "")

	hub.HandleFrame(c, connectFrame(t, "42", "1"))

	user, err := repositories.FindUser(context.Background(), store, "1", "42")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, user.ConnectionStatus)
	assert.Equal(t, models.InitialAttentionScore, user.AttentionScore)
	assert.Equal(t, []string{"42"}, hub.Registry().MembersOf("1"))

	updates := decodeAll(t, drain(c), MessageTypeEngagementUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, "1", updates[0]["sessionId"])
	assert.EqualValues(t, 100, updates[0]["overallAttention"])
	members := updates[0]["perMemberSummaries"].([]interface{})
	require.Len(t, members, 1)
	assert.Equal(t, "42", members[0].(map[string]interface{})["userId"])
	assert.Equal(t, "High", members[0].(map[string]interface{})["status"])
}

func TestHubReconnectReusesUserRecord(t *testing.T) {
	hub, store := createTestHub(t, DefaultHubConfig())
	c, _ := createTestClient(hub, "")
	ctx := context.Background()

	hub.HandleFrame(c, connectFrame(t, "42", "1"))
	hub.HandleFrame(c, frame(t, map[string]interface{}{
		"type": "connection", "action": "disconnect", "userId": "42", "sessionId": "1",
	}))

	user, err := repositories.FindUser(ctx, store, "1", "42")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, user.ConnectionStatus)
	assert.Empty(t, hub.Registry().MembersOf("1"))

	hub.HandleFrame(c, connectFrame(t, "42", "1"))
	users, err := store.GetUsersBySession(ctx, "1")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, models.StatusOnline, users[0].ConnectionStatus)
}

func TestHubActivityAdjustsScoreAndRaisesAlert(t *testing.T) {
	hub, store := createTestHub(t, DefaultHubConfig())
	c, _ := createTestClient(hub, "")
	ctx := context.Background()

	hub.HandleFrame(c, connectFrame(t, "42", "1"))
	drain(c)

	hub.HandleFrame(c, activityFrame(t, "42", "1", models.EventTabSwitch))

	user, err := repositories.FindUser(ctx, store, "1", "42")
	require.NoError(t, err)
	assert.Equal(t, 85, user.AttentionScore)

	events, err := store.RecentEventsForUser(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTabSwitch, events[0].EventType)
	assert.Equal(t, "{}", events[0].Data)

	alerts := decodeAll(t, drain(c), MessageTypeAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertDistraction, alerts[0]["category"])
	assert.Equal(t, "Potential distraction detected: tabSwitch", alerts[0]["message"])
	assert.Equal(t, models.SeverityMedium, alerts[0]["severity"])
	assert.NotEmpty(t, alerts[0]["alertId"])

	stored, err := store.AlertsBySession(ctx, "1", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.False(t, stored[0].Resolved)
}

func TestHubActivityClampsScore(t *testing.T) {
	hub, store := createTestHub(t, DefaultHubConfig())
	c, _ := createTestClient(hub, "")
	ctx := context.Background()

	hub.HandleFrame(c, connectFrame(t, "42", "1"))
	hub.HandleFrame(c, activityFrame(t, "42", "1", models.EventClick))

	user, err := repositories.FindUser(ctx, store, "1", "42")
	require.NoError(t, err)
	assert.Equal(t, 100, user.AttentionScore)

	for i := 0; i < 12; i++ {
		hub.HandleFrame(c, activityFrame(t, "42", "1", models.EventBlur))
	}
	user, err = repositories.FindUser(ctx, store, "1", "42")
	require.NoError(t, err)
	assert.Equal(t, 0, user.AttentionScore)
}

func TestHubActivityPassesDataThrough(t *testing.T) {
	hub, store := createTestHub(t, DefaultHubConfig())
	c, _ := createTestClient(hub, "")

	hub.HandleFrame(c, connectFrame(t, "42", "1"))
	hub.HandleFrame(c, []byte(`{"type":"activity","userId":"42","sessionId":"1","eventType":"scroll","timestamp":1,"data":{"y":120}}`))

	user, err := repositories.FindUser(context.Background(), store, "1", "42")
	require.NoError(t, err)
	events, err := store.RecentEventsForUser(context.Background(), user.ID, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"y":120}`, events[0].Data)
	assert.Equal(t, 100, user.AttentionScore)
}

func TestHubActivityForUnknownUserStillAlerts(t *testing.T) {
	hub, store := createTestHub(t, DefaultHubConfig())
	observer, _ := createTestClient(hub, "1")

	hub.HandleFrame(observer, activityFrame(t, "ghost", "1", models.EventBlur))

	alerts := decodeAll(t, drain(observer), MessageTypeAlert)
	require.Len(t, alerts, 1)

	users, err := store.GetUsersBySession(context.Background(), "1")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestHubDropsInvalidFrames(t *testing.T) {
	hub, _ := createTestHub(t, DefaultHubConfig())
	c, _ := createTestClient(hub, "1")

	for _, raw := range []string{
		`not json`,
		`{"type":"bogus"}`,
		`{"type":"connection","action":"connect","sessionId":"1"}`,
		`{"type":"activity","userId":"42","sessionId":"1","eventType":"wiggle"}`,
	} {
		hub.HandleFrame(c, []byte(raw))
	}

	assert.Empty(t, drain(c))
	assert.Empty(t, hub.Registry().ActiveSessions())
}

func TestHubIgnoresFramesFromClosedClient(t *testing.T) {
	hub, _ := createTestHub(t, DefaultHubConfig())
	c, _ := createTestClient(hub, "")
	c.Close()

	hub.HandleFrame(c, connectFrame(t, "42", "1"))
	assert.Empty(t, hub.Registry().ActiveSessions())
}

func TestHubReconnectClosesPreviousConnection(t *testing.T) {
	hub, store := createTestHub(t, DefaultHubConfig())
	first, _ := createTestClient(hub, "")
	second, _ := createTestClient(hub, "")

	hub.HandleFrame(first, connectFrame(t, "42", "1"))
	hub.HandleFrame(second, connectFrame(t, "42", "1"))

	assert.Equal(t, StateClosing, first.State())
	assert.True(t, second.IsOpen())

	// The old socket's close handling must leave the new registration alone.
	hub.HandleClose(first)
	assert.Equal(t, []string{"42"}, hub.Registry().MembersOf("1"))

	user, err := repositories.FindUser(context.Background(), store, "1", "42")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, user.ConnectionStatus)
}

func TestHubCloseMarksUserOffline(t *testing.T) {
	hub, store := createTestHub(t, DefaultHubConfig())
	leaving, _ := createTestClient(hub, "")
	staying, _ := createTestClient(hub, "")

	hub.HandleFrame(leaving, connectFrame(t, "a", "1"))
	hub.HandleFrame(staying, connectFrame(t, "b", "1"))
	drain(staying)

	leaving.Close()
	hub.HandleClose(leaving)

	user, err := repositories.FindUser(context.Background(), store, "1", "a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, user.ConnectionStatus)
	assert.Equal(t, []string{"b"}, hub.Registry().MembersOf("1"))

	updates := decodeAll(t, drain(staying), MessageTypeEngagementUpdate)
	require.Len(t, updates, 1)
	members := updates[0]["perMemberSummaries"].([]interface{})
	require.Len(t, members, 1)
	assert.Equal(t, "b", members[0].(map[string]interface{})["userId"])
}

func TestHubMovingSessionUpdatesBoth(t *testing.T) {
	hub, store := createTestHub(t, DefaultHubConfig())
	c, _ := createTestClient(hub, "")
	ctx := context.Background()

	hub.HandleFrame(c, connectFrame(t, "42", "1"))
	hub.HandleFrame(c, connectFrame(t, "42", "2"))

	assert.Empty(t, hub.Registry().MembersOf("1"))
	assert.Equal(t, []string{"42"}, hub.Registry().MembersOf("2"))

	old, err := repositories.FindUser(ctx, store, "1", "42")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, old.ConnectionStatus)

	current, err := repositories.FindUser(ctx, store, "2", "42")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, current.ConnectionStatus)
}

func TestHubInboundEngagementUpdateMakesObserver(t *testing.T) {
	hub, _ := createTestHub(t, DefaultHubConfig())
	member, _ := createTestClient(hub, "")
	watcher, _ := createTestClient(hub, "")

	hub.HandleFrame(watcher, []byte(`{"type":"engagementUpdate","sessionId":"1","overallAttention":3}`))
	assert.Equal(t, "1", watcher.Observing())
	assert.Empty(t, hub.Registry().ActiveSessions())

	hub.HandleFrame(member, connectFrame(t, "42", "1"))
	updates := decodeAll(t, drain(watcher), MessageTypeEngagementUpdate)
	require.Len(t, updates, 1)
	assert.EqualValues(t, 100, updates[0]["overallAttention"])
}

func TestHubScopeAllReachesEveryone(t *testing.T) {
	cfg := DefaultHubConfig()
	cfg.Scope = ScopeAll
	hub, _ := createTestHub(t, cfg)
	member, _ := createTestClient(hub, "")
	stranger, _ := createTestClient(hub, "")

	hub.HandleFrame(member, connectFrame(t, "42", "1"))
	assert.Len(t, decodeAll(t, drain(stranger), MessageTypeEngagementUpdate), 1)
}

func TestHubScopeSessionIsolatesSessions(t *testing.T) {
	hub, _ := createTestHub(t, DefaultHubConfig())
	inOne, _ := createTestClient(hub, "")
	inTwo, _ := createTestClient(hub, "")

	hub.HandleFrame(inOne, connectFrame(t, "a", "1"))
	hub.HandleFrame(inTwo, connectFrame(t, "b", "2"))
	drain(inOne)
	drain(inTwo)

	hub.HandleFrame(inOne, activityFrame(t, "a", "1", models.EventBlur))
	assert.Len(t, decodeAll(t, drain(inOne), MessageTypeAlert), 1)
	assert.Empty(t, drain(inTwo))
}

func TestHubSlowClientOnlyLosesItsOwnMessages(t *testing.T) {
	cfg := DefaultHubConfig()
	cfg.SendBuffer = 1
	hub, _ := createTestHub(t, cfg)
	slow, _ := createTestClient(hub, "1")
	fast, _ := createTestClient(hub, "1")

	hub.HandleFrame(fast, connectFrame(t, "42", "1"))
	drain(fast)

	hub.HandleFrame(fast, activityFrame(t, "42", "1", models.EventBlur))
	assert.Len(t, decodeAll(t, drain(fast), MessageTypeAlert), 1)

	// slow still holds the membership update and never drained it.
	assert.Len(t, drain(slow), 1)
}

type recordingPresence struct {
	mu     sync.Mutex
	online map[string]bool
}

func (p *recordingPresence) SetUserOnline(_ context.Context, sessionID, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[sessionID+"/"+userID] = true
	return nil
}

func (p *recordingPresence) SetUserOffline(_ context.Context, sessionID, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, sessionID+"/"+userID)
	return nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	alerts  []*AlertMessage
	updates []*EngagementUpdateMessage
	err     error
}

func (p *recordingPublisher) PublishAlert(_ context.Context, alert *AlertMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, alert)
	return p.err
}

func (p *recordingPublisher) PublishEngagement(_ context.Context, update *EngagementUpdateMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, update)
	return p.err
}

func TestHubMirrorsPresenceAndPublishes(t *testing.T) {
	presence := &recordingPresence{online: map[string]bool{}}
	publisher := &recordingPublisher{err: errors.New("broker unavailable")}
	hub, _ := createTestHub(t, DefaultHubConfig(), WithPresence(presence), WithPublisher(publisher))
	c, _ := createTestClient(hub, "")

	hub.HandleFrame(c, connectFrame(t, "42", "1"))
	assert.True(t, presence.online["1/42"])

	// A failing publisher does not stop the broadcast.
	hub.HandleFrame(c, activityFrame(t, "42", "1", models.EventTabSwitch))
	require.Len(t, publisher.alerts, 1)
	assert.Equal(t, models.AlertDistraction, publisher.alerts[0].Category)
	assert.Len(t, decodeAll(t, drain(c), MessageTypeAlert), 1)

	hub.HandleFrame(c, frame(t, map[string]interface{}{
		"type": "connection", "action": "disconnect", "userId": "42", "sessionId": "1",
	}))
	assert.False(t, presence.online["1/42"])
}

func TestHubPumpsEndToEnd(t *testing.T) {
	hub, store := createTestHub(t, DefaultHubConfig())
	c, conn := startTestClient(hub, "")

	conn.deliver(connectFrame(t, "42", "1"))
	conn.deliver(activityFrame(t, "42", "1", models.EventBlur))

	require.Eventually(t, func() bool {
		return len(conn.messagesOfType(MessageTypeAlert)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, conn.messagesOfType(MessageTypeEngagementUpdate), 1)

	_ = conn.Close()
	require.Eventually(t, func() bool {
		return c.State() == StateClosed
	}, 2*time.Second, 10*time.Millisecond)

	user, err := repositories.FindUser(context.Background(), store, "1", "42")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, user.ConnectionStatus)
	assert.Empty(t, hub.Registry().ActiveSessions())
}

func TestHubConcurrentConnectsKeepOneRecord(t *testing.T) {
	store := &hookedStore{
		Store: memory.New(),
		onList: func(context.Context, string) error {
			time.Sleep(20 * time.Millisecond)
			return nil
		},
	}
	hub := NewHub(store, DefaultHubConfig(), logger.Nop())
	t.Cleanup(hub.Shutdown)
	first, _ := createTestClient(hub, "")
	second, _ := createTestClient(hub, "")

	connect := connectFrame(t, "42", "1")
	var wg sync.WaitGroup
	for _, c := range []*Client{first, second} {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			hub.HandleFrame(c, connect)
		}(c)
	}
	wg.Wait()

	ctx := context.Background()
	users, err := store.GetUsersBySession(ctx, "1")
	require.NoError(t, err)
	require.Len(t, users, 1)

	for _, c := range []*Client{first, second} {
		c.Close()
		hub.HandleClose(c)
	}

	summary, _, err := hub.Evaluate(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, summary.Members)
	assert.Equal(t, 0, summary.OverallAttention)
}

func TestHubShutdownPersistsOfflineStatus(t *testing.T) {
	store := &hookedStore{Store: memory.New()}
	hub := NewHub(store, DefaultHubConfig(), logger.Nop())
	_, conn := startTestClient(hub, "")

	conn.deliver(connectFrame(t, "42", "1"))
	require.Eventually(t, func() bool {
		return len(hub.Registry().MembersOf("1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Shutdown()

	user, err := repositories.FindUser(context.Background(), store.Store, "1", "42")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, user.ConnectionStatus)
	assert.True(t, conn.isClosed())
}

func TestHubRejectsClientsAfterShutdown(t *testing.T) {
	hub, _ := createTestHub(t, DefaultHubConfig())
	hub.Shutdown()

	c, conn := startTestClient(hub, "")
	assert.Equal(t, StateClosed, c.State())
	assert.True(t, conn.isClosed())
	conns, _ := hub.Registry().Counts()
	assert.Equal(t, 0, conns)
}
