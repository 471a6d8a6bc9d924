package app

import (
	"context"
	"errors"
	"isinFlow/internal/app/dto"
	"isinFlow/internal/domain/model"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
)

// ErrContextCancelled is returned when the context is cancelled during processing
var ErrContextCancelled = errors.New("context cancelled during processing")

// DefaultDedupTTL bounds how long a processed event ID is remembered.
const DefaultDedupTTL = 10 * time.Minute

// ChangeApplier applies a single change-feed event to the canonical store.
type ChangeApplier interface {
	ApplyEvent(ctx context.Context, event *model.ChangeEvent) error
}

// EventProcessor applies change events from a channel to the engine.
type EventProcessor struct {
	EventCh    chan *dto.ChangeDTO
	Applier    ChangeApplier
	DedupCache *cache.Cache
	log        *slog.Logger
}

func NewEventProcessor(eventCh chan *dto.ChangeDTO, applier ChangeApplier, log *slog.Logger) *EventProcessor {
	if log == nil {
		log = slog.Default()
	}
	return &EventProcessor{
		EventCh:    eventCh,
		Applier:    applier,
		DedupCache: cache.New(DefaultDedupTTL, 2*DefaultDedupTTL),
		log:        log.With(slog.String("component", "event_processor")),
	}
}

func (p *EventProcessor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case changeDto, ok := <-p.EventCh:
			if !ok {
				p.log.Info("event channel closed, stopping event processor")
				return nil
			}
			if err := p.processEvent(ctx, changeDto); err != nil {
				if errors.Is(err, ErrContextCancelled) {
					p.log.Info("context cancelled, stopping event processor")
					return ctx.Err()
				}
				if errors.Is(err, ErrEngineStopped) {
					p.log.Info("engine stopped, stopping event processor")
					return err
				}
				// Other errors are just logged but processing continues
				p.log.Error("error processing change event", slog.String("error", err.Error()))
			}
		}
	}
}

// processEvent handles a single change event with context cancellation checks
func (p *EventProcessor) processEvent(ctx context.Context, changeDto *dto.ChangeDTO) error {
	if ctx.Err() != nil {
		return ErrContextCancelled
	}
	if changeDto == nil {
		return nil
	}

	if changeDto.EventID != "" {
		if _, seen := p.DedupCache.Get(changeDto.EventID); seen {
			return nil
		}
		p.DedupCache.SetDefault(changeDto.EventID, struct{}{})
	}

	return p.Applier.ApplyEvent(ctx, changeDto.ToModel())
}
