package useCases

import (
	"context"
	"isinFlow/internal/domain/model"
	"net/http"
	"time"
)

// RecordService is the local mutation and read API over the canonical store.
type RecordService interface {
	Records() []model.BondRecord
	Record(id string) (model.BondRecord, bool)
	AddRecord(ctx context.Context, input model.RawRecord) (model.BondRecord, *model.Confirmation, error)
	UpdateRecord(ctx context.Context, id string, patch model.RawRecord) (model.BondRecord, error)
	Transition(ctx context.Context, id string, action model.Action) (*model.Confirmation, error)
	Status() model.SyncStatus
	Summary() model.BoardSummary
}

// BookrunnerService serves the derived bookrunner roll-up.
type BookrunnerService interface {
	Aggregates(ctx context.Context, rng model.DateRange, currency string) ([]model.BookrunnerAggregate, error)
}

// RuleService manages auto-trigger rules.
type RuleService interface {
	Rules() []model.AutoTriggerRule
	AddRule(rule model.AutoTriggerRule) (model.AutoTriggerRule, error)
	RemoveRule(id string) bool
}

// TransitionHistory reads the transition journal.
type TransitionHistory interface {
	TransitionsSince(ctx context.Context, since time.Time) ([]model.TransitionEntry, error)
}

// Broadcaster defines an interface for pushing updates to WebSocket/API layers.
type Broadcaster interface {
	BroadcastChange(change model.StoreChange)
	BroadcastStatus(status model.SyncStatus)
	BroadcastAggregates(aggs []model.BookrunnerAggregate)
	Handler() func(http.ResponseWriter, *http.Request)
}

// Notifier delivers transition payloads to the external side channel.
type Notifier interface {
	Notify(ctx context.Context, payload model.SideChannelPayload) error
}
