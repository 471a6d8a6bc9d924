package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"isinFlow/internal/app/dto"
	"isinFlow/internal/domain/model"
	"isinFlow/internal/domain/repository"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	BatchSize     int
	BatchTimeout  int
}

// ChangeConsumer defines interface for consuming change events
type ChangeConsumer interface {
	Subscribe(ctx context.Context) (<-chan *model.ChangeEvent, error)
	Commit(ctx context.Context, event *model.ChangeEvent) error
	Close() error
}

// KafkaProducer publishes change events to Kafka
type KafkaProducer struct {
	writer *kafka.Writer
}

var _ repository.BatchChangePublisher = (*KafkaProducer)(nil)

// NewKafkaProducer creates a new Kafka producer
func NewKafkaProducer(config KafkaConfig) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{}, // events for the same table stay ordered on one partition
		RequiredAcks: kafka.RequireAll,
	}

	return &KafkaProducer{writer: writer}
}

// PublishChange sends a change event to Kafka
func (p *KafkaProducer) PublishChange(ctx context.Context, event *model.ChangeEvent) error {
	msg, err := changeMessage(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// PublishChangeBatch sends a batch of change events to Kafka
func (p *KafkaProducer) PublishChangeBatch(ctx context.Context, events []*model.ChangeEvent) error {
	msgSlice := make([]kafka.Message, len(events))
	for i, event := range events {
		msg, err := changeMessage(event)
		if err != nil {
			return err
		}
		msgSlice[i] = msg
	}
	return p.writer.WriteMessages(ctx, msgSlice...)
}

func changeMessage(event *model.ChangeEvent) (kafka.Message, error) {
	data, err := json.Marshal(dto.FromModel(event))
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(event.Table),
		Value: data,
		Time:  time.Now(),
	}, nil
}

// Close closes the producer
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// KafkaConsumer implements ChangeConsumer using Kafka
type KafkaConsumer struct {
	reader        *kafka.Reader
	topic         string
	log           *slog.Logger
	pendingMsgs   map[string]kafka.Message // event ID -> Kafka message
	pendingMsgsMu sync.RWMutex
	batchSize     int
	batchTimeout  time.Duration
}

// NewKafkaConsumer creates a new Kafka consumer
func NewKafkaConsumer(config KafkaConfig, log *slog.Logger) *KafkaConsumer {
	if log == nil {
		log = slog.Default()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		Topic:          config.Topic,
		GroupID:        config.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6,              // 10MB
		CommitInterval: 0,                 // Disable auto commit - we'll handle this manually
		StartOffset:    kafka.FirstOffset, // Start from oldest message if no offset is stored
	})

	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	batchTimeout := time.Duration(config.BatchTimeout) * time.Millisecond
	if batchTimeout <= 0 {
		batchTimeout = time.Second
	}

	return &KafkaConsumer{
		reader:       reader,
		topic:        config.Topic,
		log:          log.With(slog.String("component", "kafka_consumer"), slog.String("topic", config.Topic)),
		pendingMsgs:  make(map[string]kafka.Message),
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
	}
}

// Subscribe returns a channel of change events from Kafka
func (c *KafkaConsumer) Subscribe(ctx context.Context) (<-chan *model.ChangeEvent, error) {
	eventCh := make(chan *model.ChangeEvent, 1000) // Buffer to handle bursts

	go c.startBatchCommitter(ctx)

	go func() {
		defer close(eventCh)

		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() == nil {
					c.log.Error("error fetching message", slog.String("error", err.Error()))
				}
				return
			}

			changeDto, err := dto.Decode(msg.Value)
			if err != nil {
				c.log.Warn("dropping undecodable change event",
					slog.Int64("offset", msg.Offset),
					slog.String("error", err.Error()))
				// Commit bad messages to avoid getting stuck
				_ = c.reader.CommitMessages(ctx, msg)
				continue
			}

			event := changeDto.ToModel()
			if event.ID == "" {
				event.ID = fmt.Sprintf("%s-%d-%d", event.Table, msg.Partition, msg.Offset)
			}

			// Store before sending so the commit can never be missed
			c.pendingMsgsMu.Lock()
			c.pendingMsgs[event.ID] = msg
			pendingCount := len(c.pendingMsgs)
			c.pendingMsgsMu.Unlock()

			if pendingCount > c.batchSize*10 {
				c.log.Warn("large number of uncommitted messages",
					slog.Int("pending", pendingCount),
					slog.Int("batch_size", c.batchSize))
			}

			select {
			case <-ctx.Done():
				return
			case eventCh <- event:
			}
		}
	}()

	return eventCh, nil
}

// startBatchCommitter periodically commits pending messages in batches
func (c *KafkaConsumer) startBatchCommitter(ctx context.Context) {
	ticker := time.NewTicker(c.batchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final commit before shutting down
			c.commitAllPending(context.Background())
			return
		case <-ticker.C:
			c.commitAllPending(ctx)
		}
	}
}

func (c *KafkaConsumer) commitAllPending(ctx context.Context) {
	c.pendingMsgsMu.Lock()
	defer c.pendingMsgsMu.Unlock()

	if len(c.pendingMsgs) == 0 {
		return
	}

	msgs := make([]kafka.Message, 0, len(c.pendingMsgs))
	for _, msg := range c.pendingMsgs {
		msgs = append(msgs, msg)
	}

	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		c.log.Error("error committing batch",
			slog.Int("messages", len(msgs)),
			slog.String("error", err.Error()))
		return
	}

	c.log.Debug("committed batch", slog.Int("messages", len(msgs)))
	c.pendingMsgs = make(map[string]kafka.Message)
}

// Commit acknowledges that a change event has been applied
func (c *KafkaConsumer) Commit(ctx context.Context, event *model.ChangeEvent) error {
	if event == nil || event.ID == "" {
		return fmt.Errorf("cannot commit nil event or event with empty ID")
	}

	c.pendingMsgsMu.Lock()
	msg, exists := c.pendingMsgs[event.ID]
	if !exists {
		c.pendingMsgsMu.Unlock()
		return fmt.Errorf("message for event %s not found in pending messages", event.ID)
	}

	if len(c.pendingMsgs) < c.batchSize {
		delete(c.pendingMsgs, event.ID)
		c.pendingMsgsMu.Unlock()

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("failed to commit message for event %s: %w", event.ID, err)
		}
		return nil
	}

	c.pendingMsgsMu.Unlock()
	c.commitAllPending(ctx)
	return nil
}

// Close closes the consumer
func (c *KafkaConsumer) Close() error {
	c.commitAllPending(context.Background())
	return c.reader.Close()
}
