package services

import (
	"context"
	"errors"

	"engagement-service/internal/websocket"
)

// FanoutPublisher forwards engine output to every configured sink and
// joins their errors.
type FanoutPublisher []websocket.EventPublisher

func (f FanoutPublisher) PublishAlert(ctx context.Context, alert *websocket.AlertMessage) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishAlert(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f FanoutPublisher) PublishEngagement(ctx context.Context, update *websocket.EngagementUpdateMessage) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishEngagement(ctx, update); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
