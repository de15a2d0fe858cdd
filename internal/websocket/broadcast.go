package websocket

import (
	"encoding/json"
	"fmt"
	"strings"

	"engagement-service/pkg/logger"
)

// BroadcastScope selects who receives a session's messages.
type BroadcastScope string

const (
	// ScopeSession delivers to members and observers of the session.
	ScopeSession BroadcastScope = "session"
	// ScopeAll delivers every message to every open connection.
	ScopeAll BroadcastScope = "all"
)

// ParseBroadcastScope accepts "session" or "all", case-insensitively.
func ParseBroadcastScope(s string) (BroadcastScope, error) {
	switch BroadcastScope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeSession, "":
		return ScopeSession, nil
	case ScopeAll:
		return ScopeAll, nil
	default:
		return "", fmt.Errorf("unknown broadcast scope %q", s)
	}
}

// Broadcaster fans one message out to the recipients of a session. A
// recipient whose buffer is full loses that message; nobody else does.
type Broadcaster struct {
	registry *Registry
	scope    BroadcastScope
	metrics  *ConnectionMetrics
	logger   *logger.Logger
}

func NewBroadcaster(registry *Registry, scope BroadcastScope, metrics *ConnectionMetrics, log *logger.Logger) *Broadcaster {
	if scope == "" {
		scope = ScopeSession
	}
	return &Broadcaster{registry: registry, scope: scope, metrics: metrics, logger: log}
}

func (b *Broadcaster) Scope() BroadcastScope {
	return b.scope
}

// Broadcast serializes msg once and queues it to every recipient.
func (b *Broadcaster) Broadcast(sessionID string, msgType MessageType, msg interface{}) (delivered, dropped int, err error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, 0, fmt.Errorf("marshal %s: %w", msgType, err)
	}

	for _, c := range b.registry.Recipients(sessionID, b.scope == ScopeAll) {
		if c.trySend(data) {
			delivered++
			continue
		}
		dropped++
		b.logger.Warn("Dropping message for slow client", "clientID", c.GetID(), "type", msgType, "sessionID", sessionID)
	}

	b.metrics.MessagesSent.WithLabelValues(msgType.String()).Add(float64(delivered))
	if dropped > 0 {
		b.metrics.MessagesDropped.WithLabelValues(msgType.String()).Add(float64(dropped))
	}
	return delivered, dropped, nil
}
