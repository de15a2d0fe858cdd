package websocket

import (
	"context"
	"sync"
	"time"

	"engagement-service/internal/engagement"
	"engagement-service/internal/models"
	"engagement-service/internal/repositories"
	"engagement-service/pkg/logger"
)

// Presence mirrors who is online into a shared cache.
type Presence interface {
	SetUserOnline(ctx context.Context, sessionID, userID string) error
	SetUserOffline(ctx context.Context, sessionID, userID string) error
}

// EventPublisher forwards engine output to downstream consumers.
type EventPublisher interface {
	PublishAlert(ctx context.Context, alert *AlertMessage) error
	PublishEngagement(ctx context.Context, update *EngagementUpdateMessage) error
}

// HubConfig tunes the gateway.
type HubConfig struct {
	Scope        BroadcastScope
	SendBuffer   int
	StoreTimeout time.Duration
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		Scope:        ScopeSession,
		SendBuffer:   DefaultSendBuffer,
		StoreTimeout: 5 * time.Second,
	}
}

type HubOption func(*Hub)

func WithPresence(p Presence) HubOption {
	return func(h *Hub) { h.presence = p }
}

func WithPublisher(p EventPublisher) HubOption {
	return func(h *Hub) { h.publisher = p }
}

func WithMetrics(m *ConnectionMetrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

// Hub is the gateway: it turns inbound frames into store writes, alerts and
// broadcasts. Frames of one connection are handled in arrival order.
type Hub struct {
	cfg         HubConfig
	registry    *Registry
	broadcaster *Broadcaster
	store       repositories.Store
	presence    Presence
	publisher   EventPublisher
	metrics     *ConnectionMetrics
	logger      *logger.Logger
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// lifecycle orders pumps.Add against Shutdown.
	lifecycle sync.Mutex
	closed    bool
	pumps     sync.WaitGroup
}

func NewHub(store repositories.Store, cfg HubConfig, log *logger.Logger, opts ...HubOption) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultHubConfig().StoreTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		cfg:      cfg,
		registry: NewRegistry(),
		store:    store,
		logger:   log,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = NewConnectionMetrics("engagement")
	}
	h.broadcaster = NewBroadcaster(h.registry, cfg.Scope, h.metrics, log)
	return h
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

func (h *Hub) Broadcaster() *Broadcaster {
	return h.broadcaster
}

func (h *Hub) Metrics() *ConnectionMetrics {
	return h.metrics
}

// Attach marks a freshly upgraded client open and tracks it.
func (h *Hub) Attach(c *Client) {
	h.registry.Attach(c)
	c.transition(StateConnecting, StateOpen)
	h.updateGauges()
}

// track registers a read pump with the hub. It reports false once the hub
// is shutting down.
func (h *Hub) track() bool {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()
	if h.closed {
		return false
	}
	h.pumps.Add(1)
	return true
}

// Shutdown closes every connection, waits up to the store timeout for their
// offline writes, then cancels pending store calls.
func (h *Hub) Shutdown() {
	h.lifecycle.Lock()
	h.closed = true
	h.lifecycle.Unlock()

	for _, c := range h.registry.Clients() {
		c.Close()
	}

	drained := make(chan struct{})
	go func() {
		h.pumps.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(h.cfg.StoreTimeout):
		h.logger.Warn("Timed out waiting for connections to close")
	}

	h.cancel()
	h.logger.Info("WebSocket hub shutting down")
}

func (h *Hub) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(h.ctx, h.cfg.StoreTimeout)
}

func (h *Hub) updateGauges() {
	conns, users := h.registry.Counts()
	h.metrics.OpenConnections.Set(float64(conns))
	h.metrics.RegisteredUsers.Set(float64(users))
}

// HandleFrame decodes and dispatches one inbound frame. Malformed frames and
// frames from a connection that is not open are dropped.
func (h *Hub) HandleFrame(c *Client, data []byte) {
	if !c.IsOpen() {
		h.metrics.FramesDropped.WithLabelValues(dropNotOpen).Inc()
		return
	}

	msg, err := DecodeInbound(data)
	if err != nil {
		h.metrics.FramesDropped.WithLabelValues(dropInvalid).Inc()
		h.logger.Warn("Dropping inbound frame", "clientID", c.id, "error", err)
		return
	}

	switch m := msg.(type) {
	case *ConnectionMessage:
		h.metrics.FramesReceived.WithLabelValues(MessageTypeConnection.String()).Inc()
		if m.Action == ActionConnect {
			h.handleConnect(c, m)
		} else {
			h.handleDisconnect(c, m)
		}
	case *ActivityMessage:
		h.metrics.FramesReceived.WithLabelValues(MessageTypeActivity.String()).Inc()
		h.handleActivity(m)
	case *EngagementUpdateMessage:
		h.metrics.FramesReceived.WithLabelValues(MessageTypeEngagementUpdate.String()).Inc()
		if c.Observe(m.SessionID) {
			h.logger.Debug("Client now observing session", "clientID", c.id, "sessionID", m.SessionID)
		}
	}
}

func (h *Hub) handleConnect(c *Client, m *ConnectionMessage) {
	reg, err := h.registry.Register(m.UserID, m.SessionID, c)
	if err != nil {
		h.metrics.FramesDropped.WithLabelValues(dropNotOpen).Inc()
		return
	}
	h.updateGauges()

	if reg.Replaced != nil {
		h.logger.Info("Closing previous connection", "userID", m.UserID, "clientID", reg.Replaced.id)
		reg.Replaced.Close()
	}
	if reg.PreviousUser != "" {
		h.markOffline(reg.PreviousUserSession, reg.PreviousUser)
	}
	if reg.PreviousSession != "" {
		h.markOffline(reg.PreviousSession, m.UserID)
	}

	h.markOnline(m)
	h.logger.Info("User connected", "userID", m.UserID, "sessionID", m.SessionID)
	h.broadcastMembership(m.SessionID)
}

func (h *Hub) handleDisconnect(c *Client, m *ConnectionMessage) {
	sessionID, ok := h.registry.UnregisterClient(m.UserID, c)
	if !ok {
		h.logger.Debug("Ignoring disconnect for user not registered on this connection", "clientID", c.id, "userID", m.UserID)
		return
	}
	h.updateGauges()
	h.markOffline(sessionID, m.UserID)
	h.logger.Info("User disconnected", "userID", m.UserID, "sessionID", sessionID)
}

// HandleClose runs once per socket after its read loop ends.
func (h *Hub) HandleClose(c *Client) {
	userID, sessionID, registered := h.registry.Detach(c)
	h.updateGauges()
	if !registered {
		return
	}
	h.markOffline(sessionID, userID)
	h.logger.Info("User disconnected", "userID", userID, "sessionID", sessionID, "reason", "socket closed")
}

// markOnline creates the user on first sight or flips it back online.
func (h *Hub) markOnline(m *ConnectionMessage) {
	ctx, cancel := h.storeCtx()
	defer cancel()

	name := m.DisplayName
	if name == "" {
		name = m.UserID
	}
	if _, err := h.store.EnsureUser(ctx, models.NewUser{
		ExternalID: m.UserID,
		SessionID:  m.SessionID,
		Name:       name,
	}); err != nil {
		h.logger.Error("Failed to mark user online", "userID", m.UserID, "sessionID", m.SessionID, "error", err)
	}

	if h.presence != nil {
		if err := h.presence.SetUserOnline(ctx, m.SessionID, m.UserID); err != nil {
			h.logger.Warn("Failed to mirror presence", "userID", m.UserID, "error", err)
		}
	}
}

// markOffline persists the offline status and tells the session.
func (h *Hub) markOffline(sessionID, userID string) {
	ctx, cancel := h.storeCtx()
	defer cancel()

	user, err := repositories.FindUser(ctx, h.store, sessionID, userID)
	if err != nil {
		h.logger.Warn("Failed to look up user going offline", "userID", userID, "sessionID", sessionID, "error", err)
	} else if _, err := h.store.SetUserStatus(ctx, user.ID, models.StatusOffline); err != nil {
		h.logger.Error("Failed to set user offline", "userID", userID, "error", err)
	}

	if h.presence != nil {
		if err := h.presence.SetUserOffline(ctx, sessionID, userID); err != nil {
			h.logger.Warn("Failed to mirror presence", "userID", userID, "error", err)
		}
	}
	h.broadcastMembership(sessionID)
}

func (h *Hub) handleActivity(m *ActivityMessage) {
	ctx, cancel := h.storeCtx()
	defer cancel()
	// Events are stamped with server time; the client timestamp is only validated.
	now := h.now()

	user, err := repositories.FindUser(ctx, h.store, m.SessionID, m.UserID)
	if err != nil {
		h.logger.Warn("Activity for unknown user", "userID", m.UserID, "sessionID", m.SessionID, "error", err)
	} else {
		if _, err := h.store.CreateActivityEvent(ctx, models.NewActivityEvent{
			UserID:    user.ID,
			EventType: m.EventType,
			Data:      m.PayloadString(),
			Timestamp: now,
		}); err != nil {
			h.logger.Error("Failed to store activity event", "userID", m.UserID, "error", err)
		}
		score := engagement.Adjust(user.AttentionScore, m.EventType)
		if _, err := h.store.SetUserScore(ctx, user.ID, score); err != nil {
			h.logger.Error("Failed to update attention score", "userID", m.UserID, "error", err)
		}
	}

	if draft := engagement.DetectEvent(m.SessionID, m.EventType); draft != nil {
		h.raiseAlert(ctx, *draft)
	}
}

// raiseAlert stores a draft and broadcasts it. When the store fails the
// alert still goes out, without an id.
func (h *Hub) raiseAlert(ctx context.Context, draft models.AlertDraft) {
	h.metrics.AlertsRaised.WithLabelValues(draft.Category).Inc()

	var msg *AlertMessage
	alert, err := h.store.CreateAlert(ctx, draft)
	if err != nil {
		h.logger.Error("Failed to store alert", "sessionID", draft.SessionID, "category", draft.Category, "error", err)
		msg = NewUnpersistedAlertMessage(draft, h.now())
	} else {
		msg = NewAlertMessage(alert)
	}

	if _, _, err := h.broadcaster.Broadcast(draft.SessionID, MessageTypeAlert, msg); err != nil {
		h.logger.Error("Failed to broadcast alert", "sessionID", draft.SessionID, "error", err)
	}
	if h.publisher != nil {
		if err := h.publisher.PublishAlert(ctx, msg); err != nil {
			h.logger.Warn("Failed to publish alert", "sessionID", draft.SessionID, "error", err)
		}
	}
}

// Evaluate reads a session's users and aggregates them at the current time.
func (h *Hub) Evaluate(ctx context.Context, sessionID string) (engagement.Summary, []models.User, error) {
	users, err := h.store.GetUsersBySession(ctx, sessionID)
	if err != nil {
		return engagement.Summary{}, nil, err
	}
	return engagement.Aggregate(sessionID, users, h.now()), users, nil
}

// broadcastMembership pushes a fresh aggregate after a membership change.
// It does not feed the session's history.
func (h *Hub) broadcastMembership(sessionID string) {
	ctx, cancel := h.storeCtx()
	defer cancel()

	summary, _, err := h.Evaluate(ctx, sessionID)
	if err != nil {
		h.logger.Error("Failed to evaluate session", "sessionID", sessionID, "error", err)
		return
	}
	if _, _, err := h.broadcaster.Broadcast(sessionID, MessageTypeEngagementUpdate, NewEngagementUpdate(summary, h.now())); err != nil {
		h.logger.Error("Failed to broadcast membership", "sessionID", sessionID, "error", err)
	}
}
