package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"engagement-service/internal/engagement"
	"engagement-service/internal/models"

	"github.com/go-playground/validator/v10"
)

// MessageType is the `type` tag carried by every frame.
type MessageType string

const (
	// Client to server
	MessageTypeConnection MessageType = "connection"
	MessageTypeActivity   MessageType = "activity"

	// Server to client. An inbound engagementUpdate never changes engine
	// state; it only marks the sender as an observer of the session.
	MessageTypeEngagementUpdate MessageType = "engagementUpdate"
	MessageTypeAlert            MessageType = "alert"
)

// Connection actions.
const (
	ActionConnect    = "connect"
	ActionDisconnect = "disconnect"
)

var (
	ErrInvalidMessage     = errors.New("invalid message")
	ErrUnknownMessageType = errors.New("unknown message type")
)

func (mt MessageType) String() string {
	return string(mt)
}

// IsValid checks if the MessageType is one of the protocol's kinds.
func (mt MessageType) IsValid() bool {
	switch mt {
	case MessageTypeConnection, MessageTypeActivity,
		MessageTypeEngagementUpdate, MessageTypeAlert:
		return true
	default:
		return false
	}
}

// envelope is decoded first to find out which concrete message follows.
type envelope struct {
	Type MessageType `json:"type"`
}

// ConnectionMessage announces that a user joins or leaves a session.
type ConnectionMessage struct {
	Type        MessageType `json:"type"`
	Action      string      `json:"action" validate:"required,oneof=connect disconnect"`
	UserID      string      `json:"userId" validate:"required,max=128"`
	SessionID   string      `json:"sessionId" validate:"required,max=128"`
	DisplayName string      `json:"displayName" validate:"max=256"`
	Timestamp   int64       `json:"timestamp" validate:"gte=0"`
}

// ActivityMessage carries one activity signal. Data is passed through to
// the store untouched.
type ActivityMessage struct {
	Type      MessageType     `json:"type"`
	UserID    string          `json:"userId" validate:"required,max=128"`
	SessionID string          `json:"sessionId" validate:"required,max=128"`
	EventType string          `json:"eventType" validate:"required,oneof=click scroll tabSwitch focus blur"`
	Timestamp int64           `json:"timestamp" validate:"gte=0"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EngagementUpdateMessage is the periodic or membership-triggered summary.
type EngagementUpdateMessage struct {
	Type               MessageType                `json:"type"`
	SessionID          string                     `json:"sessionId" validate:"required,max=128"`
	OverallAttention   int                        `json:"overallAttention"`
	PerMemberSummaries []engagement.MemberSummary `json:"perMemberSummaries"`
	Timestamp          int64                      `json:"timestamp"`
}

// AlertMessage is broadcast once when an alert is created.
type AlertMessage struct {
	Type      MessageType `json:"type"`
	AlertID   string      `json:"alertId"`
	SessionID string      `json:"sessionId"`
	Category  string      `json:"category"`
	Message   string      `json:"message"`
	Severity  string      `json:"severity"`
	Timestamp int64       `json:"timestamp"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeInbound parses one text frame into *ConnectionMessage,
// *ActivityMessage or *EngagementUpdateMessage.
func DecodeInbound(data []byte) (interface{}, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	var msg interface{}
	switch env.Type {
	case MessageTypeConnection:
		msg = &ConnectionMessage{}
	case MessageTypeActivity:
		msg = &ActivityMessage{}
	case MessageTypeEngagementUpdate:
		msg = &EngagementUpdateMessage{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := validate.Struct(msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return msg, nil
}

// PayloadString renders the free-form data for storage, "{}" when absent.
func (m *ActivityMessage) PayloadString() string {
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return "{}"
	}
	return string(m.Data)
}

// Message constructors

// NewEngagementUpdate builds the outbound frame for an aggregate.
func NewEngagementUpdate(summary engagement.Summary, at time.Time) *EngagementUpdateMessage {
	members := summary.Members
	if members == nil {
		members = []engagement.MemberSummary{}
	}
	return &EngagementUpdateMessage{
		Type:               MessageTypeEngagementUpdate,
		SessionID:          summary.SessionID,
		OverallAttention:   summary.OverallAttention,
		PerMemberSummaries: members,
		Timestamp:          at.UnixMilli(),
	}
}

// NewAlertMessage builds the outbound frame for a stored alert.
func NewAlertMessage(alert *models.Alert) *AlertMessage {
	return &AlertMessage{
		Type:      MessageTypeAlert,
		AlertID:   alert.Key(),
		SessionID: alert.SessionID,
		Category:  alert.Category,
		Message:   alert.Message,
		Severity:  alert.Severity,
		Timestamp: alert.Timestamp.UnixMilli(),
	}
}

// NewUnpersistedAlertMessage is used when the store failed to save a draft;
// the alert carries no id since only the store assigns one.
func NewUnpersistedAlertMessage(draft models.AlertDraft, at time.Time) *AlertMessage {
	return &AlertMessage{
		Type:      MessageTypeAlert,
		SessionID: draft.SessionID,
		Category:  draft.Category,
		Message:   draft.Message,
		Severity:  draft.Severity,
		Timestamp: at.UnixMilli(),
	}
}
