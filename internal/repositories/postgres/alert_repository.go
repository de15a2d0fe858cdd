package postgres

import (
	"context"
	"fmt"

	"engagement-service/internal/models"
	"engagement-service/internal/repositories"
)

func (s *Store) CreateAlert(ctx context.Context, draft models.AlertDraft) (*models.Alert, error) {
	alert := models.Alert{
		SessionID: draft.SessionID,
		Category:  draft.Category,
		Message:   draft.Message,
		Severity:  draft.Severity,
		Timestamp: s.now(),
	}
	if err := s.withContext(ctx).Create(&alert).Error; err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}
	return &alert, nil
}

func (s *Store) AlertsBySession(ctx context.Context, sessionID string, limit int) ([]models.Alert, error) {
	var alerts []models.Alert
	err := s.withContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(limitOrDefault(limit)).
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts of session %s: %w", sessionID, err)
	}
	return alerts, nil
}

func (s *Store) ResolveAlert(ctx context.Context, id uint) (*models.Alert, error) {
	result := s.withContext(ctx).
		Model(&models.Alert{}).
		Where("id = ?", id).
		Update("resolved", true)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to resolve alert %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("alert %d: %w", id, repositories.ErrNotFound)
	}

	var alert models.Alert
	if err := s.withContext(ctx).First(&alert, "id = ?", id).Error; err != nil {
		return nil, notFound("alert", id, err)
	}
	return &alert, nil
}
