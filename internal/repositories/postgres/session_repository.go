package postgres

import (
	"context"
	"fmt"

	"engagement-service/internal/models"
	"engagement-service/internal/repositories"
)

func (s *Store) CreateSession(ctx context.Context, in models.NewSession) (*models.Session, error) {
	session := models.Session{
		Name:      in.Name,
		OwnerID:   in.OwnerID,
		Active:    true,
		StartTime: s.now(),
	}
	if err := s.withContext(ctx).Create(&session).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &session, nil
}

func (s *Store) GetSession(ctx context.Context, id uint) (*models.Session, error) {
	var session models.Session
	if err := s.withContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, notFound("session", id, err)
	}
	return &session, nil
}

func (s *Store) EndSession(ctx context.Context, id uint) (*models.Session, error) {
	end := s.now()
	result := s.withContext(ctx).
		Model(&models.Session{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"active": false, "end_time": end})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to end session %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("session %d: %w", id, repositories.ErrNotFound)
	}
	return s.GetSession(ctx, id)
}

func (s *Store) ActiveSessions(ctx context.Context) ([]models.Session, error) {
	var sessions []models.Session
	if err := s.withContext(ctx).Where("active = ?", true).Order("id").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	return sessions, nil
}
