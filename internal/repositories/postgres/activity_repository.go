package postgres

import (
	"context"
	"fmt"

	"engagement-service/internal/models"
)

func (s *Store) CreateActivityEvent(ctx context.Context, in models.NewActivityEvent) (*models.ActivityEvent, error) {
	event := models.ActivityEvent{
		UserID:    in.UserID,
		EventType: in.EventType,
		Timestamp: in.Timestamp,
		Data:      in.Data,
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if err := s.withContext(ctx).Create(&event).Error; err != nil {
		return nil, fmt.Errorf("failed to create activity event: %w", err)
	}
	return &event, nil
}

func (s *Store) RecentEventsForUser(ctx context.Context, userID uint, limit int) ([]models.ActivityEvent, error) {
	var events []models.ActivityEvent
	err := s.withContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(limitOrDefault(limit)).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list events of user %d: %w", userID, err)
	}
	return events, nil
}
