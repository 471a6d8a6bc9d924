package queue

import (
	"context"
	"isinFlow/internal/app/dto"
	"isinFlow/internal/domain/model"
	"isinFlow/internal/domain/repository"
)

// ChannelPublisher feeds change events straight into an in-process channel.
// It stands in for Kafka when no brokers are configured.
type ChannelPublisher struct {
	ch chan<- *dto.ChangeDTO
}

func NewChannelPublisher(ch chan<- *dto.ChangeDTO) *ChannelPublisher {
	return &ChannelPublisher{ch: ch}
}

var _ repository.ChangePublisher = (*ChannelPublisher)(nil)

func (p *ChannelPublisher) PublishChange(ctx context.Context, event *model.ChangeEvent) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.ch <- dto.FromModel(event):
		return nil
	}
}
