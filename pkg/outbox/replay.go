package outbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ReplayService 重新投递失败的 outbox 事件
type ReplayService struct {
	repo      *Repository
	publisher Publisher
	logger    *zap.Logger
}

func NewReplayService(repo *Repository, publisher Publisher, logger *zap.Logger) *ReplayService {
	return &ReplayService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// ReplayEvent 立即发布指定事件，成功标记 sent，失败重新进入退避
func (s *ReplayService) ReplayEvent(ctx context.Context, eventID int64) error {
	event, err := s.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return err
	}

	if err := s.repo.ResetForReplay(ctx, eventID); err != nil {
		return err
	}

	if err := s.publisher.PublishWithContext(traceFromPayload(ctx, event.Payload), event.RoutingKey, event.Payload); err != nil {
		if markErr := s.repo.MarkAsFailed(ctx, eventID, 5); markErr != nil {
			return fmt.Errorf("failed to publish and mark as failed: %w (mark error: %v)", err, markErr)
		}
		return fmt.Errorf("failed to publish: %w", err)
	}

	return s.repo.MarkAsSent(ctx, eventID)
}

// ReplayFailedEvents 重放最多 limit 个失败事件，返回成功数
func (s *ReplayService) ReplayFailedEvents(ctx context.Context, limit int) (int, error) {
	events, err := s.repo.GetFailedEvents(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to get failed events: %w", err)
	}

	successCount := 0
	for _, event := range events {
		if err := s.ReplayEvent(ctx, event.ID); err != nil {
			s.logger.Warn("Replay failed",
				zap.Int64("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}
		successCount++
	}

	return successCount, nil
}
