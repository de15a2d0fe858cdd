package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"engagement-service/internal/models"
	"engagement-service/internal/repositories"
)

// ErrReportsDisabled is returned when no object store is configured.
var ErrReportsDisabled = errors.New("report export is not configured")

// ObjectStore is where exported reports are written.
type ObjectStore interface {
	PutObject(ctx context.Context, objectName, contentType string, data []byte) (string, error)
}

// HistorySource yields a session's recorded overall scores.
type HistorySource interface {
	HistoryOf(sessionID string) []int
}

// SessionReport is the exported snapshot of one session.
type SessionReport struct {
	SessionID   string          `json:"sessionId"`
	Session     *models.Session `json:"session,omitempty"`
	Users       []models.User   `json:"users"`
	History     []int           `json:"history"`
	Alerts      []models.Alert  `json:"alerts"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

type ReportService struct {
	store   repositories.Store
	history HistorySource
	objects ObjectStore
	now     func() time.Time
}

// NewReportService builds the exporter. objects may be nil, in which case
// Export returns ErrReportsDisabled.
func NewReportService(store repositories.Store, history HistorySource, objects ObjectStore) *ReportService {
	return &ReportService{
		store:   store,
		history: history,
		objects: objects,
		now:     time.Now,
	}
}

func (s *ReportService) Enabled() bool {
	return s.objects != nil
}

// Build collects the report without uploading it.
func (s *ReportService) Build(ctx context.Context, sessionID string) (*SessionReport, error) {
	report := &SessionReport{
		SessionID:   sessionID,
		History:     s.history.HistoryOf(sessionID),
		GeneratedAt: s.now().UTC(),
	}

	if id, err := strconv.ParseUint(sessionID, 10, 64); err == nil {
		session, err := s.store.GetSession(ctx, uint(id))
		switch {
		case err == nil:
			report.Session = session
		case !errors.Is(err, repositories.ErrNotFound):
			return nil, fmt.Errorf("load session: %w", err)
		}
	}

	users, err := s.store.GetUsersBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	report.Users = users

	alerts, err := s.store.AlertsBySession(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("load alerts: %w", err)
	}
	report.Alerts = alerts

	return report, nil
}

// Export uploads the report as JSON and returns the object URL.
func (s *ReportService) Export(ctx context.Context, sessionID string) (string, error) {
	if s.objects == nil {
		return "", ErrReportsDisabled
	}

	report, err := s.Build(ctx, sessionID)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	name := fmt.Sprintf("reports/session-%s/%s.json", sessionID, report.GeneratedAt.Format("20060102T150405Z"))
	return s.objects.PutObject(ctx, name, "application/json", data)
}
