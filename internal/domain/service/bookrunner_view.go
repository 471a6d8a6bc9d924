package service

import (
	"context"
	"fmt"
	"isinFlow/internal/domain/model"
	"isinFlow/internal/domain/repository"
	"isinFlow/internal/domain/useCases"
	"log/slog"
	"sync"
	"time"
)

// BookrunnerView is the derived bookrunner roll-up. It caches the latest
// associations pulled from the source and recomputes aggregates wholesale on
// every request; it is never patched incrementally.
type BookrunnerView struct {
	mu      sync.RWMutex
	assocs  []model.BookrunnerAssociation
	loaded  bool
	source  repository.AssociationSource // may be nil
	history repository.AggregateHistory  // may be nil
	agg     *Aggregator
	lookup  RecordLookup
	log     *slog.Logger
}

// NewBookrunnerView wires the view to its association source and optional history.
func NewBookrunnerView(source repository.AssociationSource, history repository.AggregateHistory, agg *Aggregator, lookup RecordLookup, log *slog.Logger) *BookrunnerView {
	if log == nil {
		log = slog.Default()
	}
	return &BookrunnerView{
		source:  source,
		history: history,
		agg:     agg,
		lookup:  lookup,
		log:     log.With(slog.String("component", "bookrunner_view")),
	}
}

// Refresh pulls the associations again. On failure the previous set is kept.
func (v *BookrunnerView) Refresh(ctx context.Context) error {
	if v.source == nil {
		return nil
	}
	assocs, err := v.source.FetchAssociations(ctx)
	if err != nil {
		return &model.SourceError{Source: "associations", Err: err}
	}
	v.SetAssociations(assocs)
	return nil
}

// SetAssociations replaces the cached associations.
func (v *BookrunnerView) SetAssociations(assocs []model.BookrunnerAssociation) {
	cp := make([]model.BookrunnerAssociation, len(assocs))
	copy(cp, assocs)

	v.mu.Lock()
	v.assocs = cp
	v.loaded = true
	v.mu.Unlock()
}

// Aggregates computes the roll-up for rng and currency, loading associations on first use.
func (v *BookrunnerView) Aggregates(ctx context.Context, rng model.DateRange, currency string) ([]model.BookrunnerAggregate, error) {
	v.mu.RLock()
	loaded := v.loaded
	v.mu.RUnlock()

	if !loaded {
		if err := v.Refresh(ctx); err != nil {
			return nil, fmt.Errorf("load associations: %w", err)
		}
	}

	v.mu.RLock()
	assocs := v.assocs
	v.mu.RUnlock()

	return v.agg.Aggregate(assocs, v.lookup, rng, currency), nil
}

// Invalidate refreshes the associations, recomputes the unfiltered roll-up and
// records it in the history store when one is configured.
func (v *BookrunnerView) Invalidate(ctx context.Context) ([]model.BookrunnerAggregate, error) {
	if err := v.Refresh(ctx); err != nil {
		return nil, err
	}
	aggs, err := v.Aggregates(ctx, model.DateRange{}, "all")
	if err != nil {
		return nil, err
	}
	if v.history != nil {
		if err := v.history.SaveAggregates(ctx, time.Now(), "all", aggs); err != nil {
			v.log.Warn("failed to persist aggregates", slog.String("error", err.Error()))
		}
	}
	return aggs, nil
}

// Ensure interface compliance
var _ useCases.BookrunnerService = (*BookrunnerView)(nil)
