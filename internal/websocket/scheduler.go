package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"engagement-service/internal/engagement"
	"engagement-service/internal/models"

	"golang.org/x/sync/errgroup"
)

// SchedulerConfig tunes the periodic evaluation.
type SchedulerConfig struct {
	Interval        time.Duration
	SessionTimeout  time.Duration
	HistoryCapacity int
	WindowedAlerts  bool
	AlertCooldown   time.Duration
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:        5 * time.Second,
		SessionTimeout:  4 * time.Second,
		HistoryCapacity: engagement.DefaultHistoryCapacity,
		WindowedAlerts:  true,
		AlertCooldown:   2 * time.Minute,
	}
}

// Scheduler evaluates every active session on a fixed interval, records the
// overall score into the session's history and broadcasts the result.
type Scheduler struct {
	hub *Hub
	cfg SchedulerConfig

	mu       sync.Mutex
	history  map[string]*engagement.History
	inflight map[string]bool
	cooldown map[string]time.Time
}

func NewScheduler(hub *Hub, cfg SchedulerConfig) *Scheduler {
	def := DefaultSchedulerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.SessionTimeout <= 0 || cfg.SessionTimeout > cfg.Interval {
		cfg.SessionTimeout = cfg.Interval
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = def.HistoryCapacity
	}
	if cfg.AlertCooldown < 0 {
		cfg.AlertCooldown = 0
	}
	return &Scheduler{
		hub:      hub,
		cfg:      cfg,
		history:  make(map[string]*engagement.History),
		inflight: make(map[string]bool),
		cooldown: make(map[string]time.Time),
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.hub.logger.Info("Engagement scheduler started", "interval", s.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			s.hub.logger.Info("Engagement scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates all active sessions concurrently. It returns once every
// evaluation finished or the per-session cap elapsed, whichever is first.
// A session still running from an earlier tick is skipped.
func (s *Scheduler) Tick(ctx context.Context) {
	s.pruneCooldowns(s.hub.now())

	var g errgroup.Group
	for _, sessionID := range s.hub.registry.ActiveSessions() {
		if !s.begin(sessionID) {
			s.hub.logger.Warn("Previous evaluation still running", "sessionID", sessionID)
			continue
		}
		sessionID := sessionID
		g.Go(func() error {
			defer s.end(sessionID)
			return s.evaluateSession(ctx, sessionID)
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			s.hub.logger.Warn("Tick finished with errors", "error", err)
		}
	case <-time.After(s.cfg.SessionTimeout):
		s.hub.logger.Warn("Tick returned before all sessions finished", "timeout", s.cfg.SessionTimeout)
	case <-ctx.Done():
	}
}

func (s *Scheduler) begin(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[sessionID] {
		return false
	}
	s.inflight[sessionID] = true
	return true
}

func (s *Scheduler) end(sessionID string) {
	s.mu.Lock()
	delete(s.inflight, sessionID)
	s.mu.Unlock()
}

func (s *Scheduler) evaluateSession(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SessionTimeout)
	defer cancel()
	start := time.Now()
	defer s.hub.metrics.ObserveEvaluation(start)

	summary, users, err := s.hub.Evaluate(ctx, sessionID)
	if err != nil {
		s.hub.metrics.EvaluationErrors.Inc()
		return fmt.Errorf("evaluate session %s: %w", sessionID, err)
	}

	s.record(sessionID, summary.OverallAttention)

	update := NewEngagementUpdate(summary, s.hub.now())
	if _, _, err := s.hub.broadcaster.Broadcast(sessionID, MessageTypeEngagementUpdate, update); err != nil {
		return err
	}
	if s.hub.publisher != nil {
		if err := s.hub.publisher.PublishEngagement(ctx, update); err != nil {
			s.hub.logger.Warn("Failed to publish engagement update", "sessionID", sessionID, "error", err)
		}
	}

	if s.cfg.WindowedAlerts {
		s.scanWindows(ctx, sessionID, users)
	}
	return nil
}

// scanWindows runs the windowed rule for each online member, at most once
// per user and category within the cooldown.
func (s *Scheduler) scanWindows(ctx context.Context, sessionID string, users []models.User) {
	now := s.hub.now()
	for _, u := range users {
		if !u.IsOnline() || !s.hub.registry.IsMember(sessionID, u.ExternalID) {
			continue
		}
		events, err := s.hub.store.RecentEventsForUser(ctx, u.ID, engagement.WindowSize)
		if err != nil {
			s.hub.logger.Warn("Failed to read recent events", "userID", u.ExternalID, "error", err)
			continue
		}
		for _, draft := range engagement.DetectWindow(sessionID, events, now) {
			if !s.allow(u.ID, draft.Category, now) {
				continue
			}
			draft.Message = fmt.Sprintf("%s: %s", u.Name, draft.Message)
			s.hub.raiseAlert(ctx, draft)
		}
	}
}

func (s *Scheduler) allow(userID uint, category string, now time.Time) bool {
	key := fmt.Sprintf("%d:%s", userID, category)

	s.mu.Lock()
	defer s.mu.Unlock()
	if at, ok := s.cooldown[key]; ok && now.Sub(at) < s.cfg.AlertCooldown {
		return false
	}
	s.cooldown[key] = now
	return true
}

// pruneCooldowns drops expired cooldown entries.
func (s *Scheduler) pruneCooldowns(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, at := range s.cooldown {
		if now.Sub(at) >= s.cfg.AlertCooldown {
			delete(s.cooldown, k)
		}
	}
}

func (s *Scheduler) record(sessionID string, overall int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.history[sessionID]
	if !ok {
		h = engagement.NewHistory(s.cfg.HistoryCapacity)
		s.history[sessionID] = h
	}
	h.Push(overall)
}

// HistoryOf returns the recorded overall scores, oldest first.
func (s *Scheduler) HistoryOf(sessionID string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.history[sessionID]
	if !ok {
		return []int{}
	}
	return h.Values()
}
