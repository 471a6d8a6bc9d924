// Package repository defines the interfaces the domain uses to reach upstream
// sources and persistence. Infrastructure packages provide the implementations.
package repository

import (
	"context"
	"isinFlow/internal/domain/model"
	"time"
)

// RecordSource is a pull-based upstream returning its complete current data set.
type RecordSource interface {
	// Name identifies the source in logs and errors
	Name() string

	// FetchAll returns every row the source currently holds, untyped
	FetchAll(ctx context.Context) ([]model.RawRecord, error)
}

// RecordWriter is the authoritative backing source for locally initiated writes.
type RecordWriter interface {
	SaveRecord(ctx context.Context, rec model.BondRecord) error
}

// AssociationSource returns the deal-to-bookrunner associations.
type AssociationSource interface {
	FetchAssociations(ctx context.Context) ([]model.BookrunnerAssociation, error)
}

// SnapshotCache keeps the last known-good canonical collection for warm starts.
// Implementations should prioritize speed over durability
type SnapshotCache interface {
	SaveSnapshot(ctx context.Context, records []model.BondRecord) error
	LoadSnapshot(ctx context.Context) ([]model.BondRecord, error)
}

// TransitionJournal stores the outcome of every local lifecycle transition
// for audit purposes
type TransitionJournal interface {
	RecordTransition(ctx context.Context, entry model.TransitionEntry) error

	// TransitionsSince retrieves journal entries newer than since, oldest first
	TransitionsSince(ctx context.Context, since time.Time) ([]model.TransitionEntry, error)
}

// AggregateHistory persists computed bookrunner roll-ups.
type AggregateHistory interface {
	SaveAggregates(ctx context.Context, at time.Time, currency string, aggs []model.BookrunnerAggregate) error
}

// ChangePublisher emits change events onto the feed.
type ChangePublisher interface {
	PublishChange(ctx context.Context, event *model.ChangeEvent) error
}

// BatchChangePublisher emits several change events in one write.
type BatchChangePublisher interface {
	ChangePublisher
	PublishChangeBatch(ctx context.Context, events []*model.ChangeEvent) error
}
