package postgres

import (
	"context"
	"fmt"

	"engagement-service/internal/models"
	"engagement-service/internal/repositories"

	"gorm.io/gorm/clause"
)

func (s *Store) GetUsersBySession(ctx context.Context, sessionID string) ([]models.User, error) {
	var users []models.User
	err := s.withContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users of session %s: %w", sessionID, err)
	}
	return users, nil
}

func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.withContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound("user", id, err)
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, in models.NewUser) (*models.User, error) {
	now := s.now()
	user := models.User{
		ExternalID:       in.ExternalID,
		SessionID:        in.SessionID,
		Name:             in.Name,
		Email:            in.Email,
		ConnectionStatus: models.StatusOnline,
		LastActivity:     now,
		AttentionScore:   models.InitialAttentionScore,
	}
	if err := s.withContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", in.ExternalID, err)
	}
	return &user, nil
}

// EnsureUser upserts on idx_users_session_external, so racing connects of
// the same user converge on one row. Name and score of an existing row are
// kept.
func (s *Store) EnsureUser(ctx context.Context, in models.NewUser) (*models.User, error) {
	now := s.now()
	user := models.User{
		ExternalID:       in.ExternalID,
		SessionID:        in.SessionID,
		Name:             in.Name,
		Email:            in.Email,
		ConnectionStatus: models.StatusOnline,
		LastActivity:     now,
		AttentionScore:   models.InitialAttentionScore,
	}
	err := s.withContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}, {Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"connection_status", "last_activity", "updated_at"}),
	}).Create(&user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user %s: %w", in.ExternalID, err)
	}

	var stored models.User
	err = s.withContext(ctx).
		Where("session_id = ? AND external_id = ?", in.SessionID, in.ExternalID).
		First(&stored).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", in.ExternalID, err)
	}
	return &stored, nil
}

func (s *Store) SetUserStatus(ctx context.Context, id uint, status string) (*models.User, error) {
	return s.updateUser(ctx, id, map[string]interface{}{"connection_status": status})
}

func (s *Store) SetUserScore(ctx context.Context, id uint, score int) (*models.User, error) {
	return s.updateUser(ctx, id, map[string]interface{}{"attention_score": score})
}

func (s *Store) updateUser(ctx context.Context, id uint, fields map[string]interface{}) (*models.User, error) {
	fields["last_activity"] = s.now()

	result := s.withContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update user %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("user %d: %w", id, repositories.ErrNotFound)
	}
	return s.GetUser(ctx, id)
}
