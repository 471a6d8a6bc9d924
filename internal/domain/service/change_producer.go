package service

import (
	"context"
	"isinFlow/internal/domain/model"
	"isinFlow/internal/domain/repository"
	"log/slog"
)

// ChangeProducerUseCase handles publishing change events to the feed
type ChangeProducerUseCase struct {
	Producer repository.ChangePublisher
	log      *slog.Logger
}

// NewChangeProducerUseCase creates a new use case for publishing change events
func NewChangeProducerUseCase(producer repository.ChangePublisher, log *slog.Logger) *ChangeProducerUseCase {
	if log == nil {
		log = slog.Default()
	}
	return &ChangeProducerUseCase{
		Producer: producer,
		log:      log,
	}
}

// Execute publishes a change event to the feed
func (uc *ChangeProducerUseCase) Execute(ctx context.Context, event *model.ChangeEvent) error {
	err := uc.Producer.PublishChange(ctx, event)
	if err != nil {
		uc.log.Error("failed to publish change event",
			slog.String("table", event.Table),
			slog.String("type", string(event.Type)),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

// ExecuteBatch publishes events in order, in a single write when the producer
// supports batches.
func (uc *ChangeProducerUseCase) ExecuteBatch(ctx context.Context, events []*model.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	batcher, ok := uc.Producer.(repository.BatchChangePublisher)
	if !ok {
		for _, event := range events {
			if err := uc.Execute(ctx, event); err != nil {
				return err
			}
		}
		return nil
	}
	if err := batcher.PublishChangeBatch(ctx, events); err != nil {
		uc.log.Error("failed to publish change batch",
			slog.Int("events", len(events)),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}
