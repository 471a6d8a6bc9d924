package app

import (
	"context"
	"errors"
	"isinFlow/internal/domain/model"
	"isinFlow/internal/infrastructure/queue"
	"log/slog"

	"github.com/patrickmn/go-cache"
)

// KafkaEventProcessor applies change events consumed from Kafka and commits
// each message once it has been applied.
type KafkaEventProcessor struct {
	Consumer   queue.ChangeConsumer
	Applier    ChangeApplier
	DedupCache *cache.Cache
	log        *slog.Logger
}

func NewKafkaEventProcessor(consumer queue.ChangeConsumer, applier ChangeApplier, log *slog.Logger) *KafkaEventProcessor {
	if log == nil {
		log = slog.Default()
	}
	return &KafkaEventProcessor{
		Consumer:   consumer,
		Applier:    applier,
		DedupCache: cache.New(DefaultDedupTTL, 2*DefaultDedupTTL),
		log:        log.With(slog.String("component", "kafka_event_processor")),
	}
}

// Run starts the Kafka event processor
func (p *KafkaEventProcessor) Run(ctx context.Context) error {
	eventCh, err := p.Consumer.Subscribe(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-eventCh:
			if !ok {
				return ctx.Err()
			}
			if event == nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			// left uncommitted so the group redelivers it after restart
			if err := p.processEvent(ctx, event); errors.Is(err, ErrEngineStopped) {
				return err
			}

			if err := p.Consumer.Commit(ctx, event); err != nil && ctx.Err() == nil {
				p.log.Warn("failed to commit change event",
					slog.String("event", event.ID),
					slog.String("error", err.Error()))
			}
		}
	}
}

func (p *KafkaEventProcessor) processEvent(ctx context.Context, event *model.ChangeEvent) error {
	if _, seen := p.DedupCache.Get(event.ID); seen {
		return nil
	}

	if err := p.Applier.ApplyEvent(ctx, event); err != nil {
		if errors.Is(err, ErrEngineStopped) {
			return err
		}
		p.log.Error("failed to apply change event",
			slog.String("event", event.ID),
			slog.String("table", event.Table),
			slog.String("error", err.Error()))
	}
	p.DedupCache.SetDefault(event.ID, struct{}{})
	return nil
}
