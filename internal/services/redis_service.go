package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"engagement-service/internal/database"
	"engagement-service/internal/websocket"
	"engagement-service/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const (
	onlineTTL  = 5 * time.Minute
	offlineTTL = 24 * time.Hour
)

// RedisService mirrors presence, relays engine output over Pub/Sub and
// backs the API rate limiter.
type RedisService struct {
	client *database.RedisClient
	logger *logger.Logger
}

var (
	_ websocket.Presence       = (*RedisService)(nil)
	_ websocket.EventPublisher = (*RedisService)(nil)
)

func NewRedisService(client *database.RedisClient, log *logger.Logger) *RedisService {
	return &RedisService{
		client: client,
		logger: log,
	}
}

func onlineKey(sessionID string) string {
	return fmt.Sprintf("session:%s:online", sessionID)
}

func statusKey(sessionID, userID string) string {
	return fmt.Sprintf("session:%s:user:%s:status", sessionID, userID)
}

// AlertChannel is the Pub/Sub channel alerts for sessionID are relayed on.
func AlertChannel(sessionID string) string {
	return fmt.Sprintf("engagement:session:%s:alerts", sessionID)
}

// EngagementChannel is the Pub/Sub channel for sessionID's updates.
func EngagementChannel(sessionID string) string {
	return fmt.Sprintf("engagement:session:%s:updates", sessionID)
}

// =============================================================================
// Presence
// =============================================================================

func (r *RedisService) SetUserOnline(ctx context.Context, sessionID, userID string) error {
	pipe := r.client.GetClient().Pipeline()
	now := time.Now().Unix()

	pipe.SAdd(ctx, onlineKey(sessionID), userID)
	pipe.HSet(ctx, statusKey(sessionID, userID), map[string]interface{}{
		"status":     "online",
		"last_seen":  now,
		"updated_at": now,
	})
	pipe.Expire(ctx, statusKey(sessionID, userID), onlineTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set user online: %w", err)
	}
	r.logger.Debug("User set to online", "userID", userID, "sessionID", sessionID)
	return nil
}

func (r *RedisService) SetUserOffline(ctx context.Context, sessionID, userID string) error {
	pipe := r.client.GetClient().Pipeline()
	now := time.Now().Unix()

	pipe.SRem(ctx, onlineKey(sessionID), userID)
	pipe.HSet(ctx, statusKey(sessionID, userID), map[string]interface{}{
		"status":     "offline",
		"last_seen":  now,
		"updated_at": now,
	})
	pipe.Expire(ctx, statusKey(sessionID, userID), offlineTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set user offline: %w", err)
	}
	r.logger.Debug("User set to offline", "userID", userID, "sessionID", sessionID)
	return nil
}

func (r *RedisService) IsUserOnline(ctx context.Context, sessionID, userID string) (bool, error) {
	return r.client.GetClient().SIsMember(ctx, onlineKey(sessionID), userID).Result()
}

func (r *RedisService) GetOnlineUsers(ctx context.Context, sessionID string) ([]string, error) {
	return r.client.GetClient().SMembers(ctx, onlineKey(sessionID)).Result()
}

// =============================================================================
// PubSub Operations
// =============================================================================

func (r *RedisService) publish(ctx context.Context, channel string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := r.client.GetClient().Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

func (r *RedisService) PublishAlert(ctx context.Context, alert *websocket.AlertMessage) error {
	return r.publish(ctx, AlertChannel(alert.SessionID), alert)
}

func (r *RedisService) PublishEngagement(ctx context.Context, update *websocket.EngagementUpdateMessage) error {
	return r.publish(ctx, EngagementChannel(update.SessionID), update)
}

func (r *RedisService) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return r.client.GetClient().Subscribe(ctx, channels...)
}

// =============================================================================
// Rate Limiting
// =============================================================================

// CheckRateLimit records one hit under key and reports whether fewer than
// limit hits were already seen inside window.
func (r *RedisService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-window).UnixNano()

	pipe := r.client.GetClient().Pipeline()

	// Remove old entries
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))

	// Count current entries
	count := pipe.ZCard(ctx, key)

	// Add current request
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})

	// Set expiration
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return count.Val() < int64(limit), nil
}
