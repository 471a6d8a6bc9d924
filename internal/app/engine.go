package app

import (
	"context"
	"errors"
	"fmt"
	"isinFlow/internal/domain/model"
	"isinFlow/internal/domain/normalize"
	"isinFlow/internal/domain/repository"
	"isinFlow/internal/domain/service"
	"isinFlow/internal/domain/useCases"
	"isinFlow/internal/infrastructure/storage"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
)

var (
	ErrEngineStopped      = errors.New("engine stopped")
	ErrJournalUnavailable = errors.New("transition journal not configured")
)

// DefaultAssociationTables are the change-feed tables that feed the bookrunner view.
var DefaultAssociationTables = []string{"bond_isins", "bond_bookrunners", "bookrunners"}

// recordNamespace seeds deterministic IDs for rows that arrive without one.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("isinflow.bond_record"))

// EngineOptions configures an Engine. Zero values select defaults.
type EngineOptions struct {
	Sources           []repository.RecordSource
	Writer            repository.RecordWriter
	Notifier          useCases.Notifier
	Snapshots         repository.SnapshotCache
	Journal           repository.TransitionJournal
	Bookrunners       *service.BookrunnerView
	Rules             *service.RuleSet
	Normalizer        *normalize.Normalizer
	PollInterval      time.Duration
	FailureThreshold  int
	AutoTrigger       bool
	RecordsTable      string
	AssociationTables []string
	WriteTimeout      time.Duration
	Logger            *slog.Logger
	Now               func() time.Time
}

// Engine keeps the canonical store consistent with the configured sources,
// the change feed and local optimistic writes. The most recently received
// write for a key wins.
type Engine struct {
	store *service.BondStore
	opts  EngineOptions
	norm  *normalize.Normalizer
	rules *service.RuleSet
	log   *slog.Logger
	now   func() time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	stopAfter func() bool
	lifeMu    sync.RWMutex
	stopped   bool
	wg        sync.WaitGroup

	refreshMu sync.Mutex

	statusMu sync.RWMutex
	status   model.SyncStatus

	autoMu    sync.Mutex
	autoFired map[string]struct{}

	statusSubs listeners[model.SyncStatus]
	aggSubs    listeners[[]model.BookrunnerAggregate]
}

// Ensure Engine implements the service interfaces
var _ useCases.RecordService = (*Engine)(nil)
var _ useCases.RuleService = (*Engine)(nil)
var _ useCases.TransitionHistory = (*Engine)(nil)
var _ useCases.BookrunnerService = (*Engine)(nil)

func NewEngine(store *service.BondStore, opts EngineOptions) *Engine {
	if store == nil {
		store = service.NewBondStore()
	}
	if opts.Normalizer == nil {
		opts.Normalizer = normalize.New(time.UTC)
	}
	if opts.Rules == nil {
		opts.Rules = service.NewRuleSet()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 3
	}
	if opts.RecordsTable == "" {
		opts.RecordsTable = storage.DefaultRecordsTable
	}
	if opts.AssociationTables == nil {
		opts.AssociationTables = DefaultAssociationTables
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:     store,
		opts:      opts,
		norm:      opts.Normalizer,
		rules:     opts.Rules,
		log:       opts.Logger.With(slog.String("component", "sync_engine")),
		now:       opts.Now,
		ctx:       ctx,
		cancel:    cancel,
		status:    model.SyncStatus{Connected: true},
		autoFired: make(map[string]struct{}),
	}
}

func (e *Engine) Store() *service.BondStore {
	return e.store
}

// Start launches the warm start and the poll loop. The engine stops when ctx
// ends or Stop is called. Calling Start again has no effect.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		e.stopAfter = context.AfterFunc(ctx, e.cancel)
		e.goTracked(func(ctx context.Context) {
			e.warmStart(ctx)
			e.pollLoop(ctx)
		})
	})
}

// Stop cancels the poll loop and every pending confirmation, then waits for them.
func (e *Engine) Stop() {
	e.lifeMu.Lock()
	if e.stopped {
		e.lifeMu.Unlock()
		return
	}
	e.stopped = true
	e.lifeMu.Unlock()

	e.cancel()
	e.wg.Wait()
	if e.stopAfter != nil {
		e.stopAfter()
	}
	e.log.Info("sync engine stopped")
}

func (e *Engine) isStopped() bool {
	e.lifeMu.RLock()
	defer e.lifeMu.RUnlock()
	return e.stopped
}

func (e *Engine) goTracked(fn func(ctx context.Context)) bool {
	e.lifeMu.RLock()
	defer e.lifeMu.RUnlock()
	if e.stopped {
		return false
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn(e.ctx)
	}()
	return true
}

func (e *Engine) pollLoop(ctx context.Context) {
	if len(e.opts.Sources) == 0 {
		return
	}
	e.runRefresh(ctx)

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runRefresh(ctx)
		}
	}
}

func (e *Engine) runRefresh(ctx context.Context) {
	if err := e.Refresh(ctx); err != nil && ctx.Err() == nil {
		e.log.Warn("full refresh failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) warmStart(ctx context.Context) {
	if e.opts.Snapshots == nil || e.store.Len() > 0 {
		return
	}
	records, err := e.opts.Snapshots.LoadSnapshot(ctx)
	if err != nil {
		e.log.Warn("failed to load snapshot", slog.String("error", err.Error()))
		return
	}
	if len(records) == 0 || e.store.Len() > 0 {
		return
	}
	e.store.ReplaceAll(records)
	e.log.Info("store warmed from snapshot", slog.Int("records", len(records)))
}

// Refresh pulls every source and replaces the store wholesale. When any source
// fails the store is left untouched and the failure counts toward the
// disconnect threshold.
func (e *Engine) Refresh(ctx context.Context) error {
	if len(e.opts.Sources) == 0 {
		return nil
	}
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	rows, err := e.fetchAll(ctx)
	if err != nil {
		e.recordFailure(err)
		return err
	}

	records := e.ingest(rows)
	e.store.ReplaceAll(records)
	e.recordSuccess()
	e.log.Debug("full refresh applied", slog.Int("rows", len(rows)), slog.Int("records", len(records)))

	if e.opts.Snapshots != nil {
		if err := e.opts.Snapshots.SaveSnapshot(ctx, e.store.Snapshot()); err != nil {
			e.log.Warn("failed to save snapshot", slog.String("error", err.Error()))
		}
	}
	e.autoTriggerAll(ctx)
	return nil
}

func (e *Engine) fetchAll(ctx context.Context) ([]model.RawRecord, error) {
	results := make([][]model.RawRecord, len(e.opts.Sources))

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for i, src := range e.opts.Sources {
		p.Go(func(ctx context.Context) error {
			rows, err := src.FetchAll(ctx)
			if err != nil {
				return &model.SourceError{Source: src.Name(), Err: err}
			}
			results[i] = rows
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	var all []model.RawRecord
	for _, rows := range results {
		all = append(all, rows...)
	}
	return all, nil
}

func (e *Engine) ingest(rows []model.RawRecord) []model.BondRecord {
	out := make([]model.BondRecord, 0, len(rows))
	for _, raw := range rows {
		rec := e.norm.Normalize(raw)
		if normalize.IsEmptyRow(rec) {
			continue
		}
		e.resolveID(&rec)
		out = append(out, rec)
	}
	return out
}

// resolveID fills a missing ID from a known record with the same ISIN, or
// derives a stable one from the ISIN.
func (e *Engine) resolveID(rec *model.BondRecord) {
	if rec.ID != "" {
		return
	}
	if !normalize.IsPlaceholderISIN(rec.ISIN) {
		if existing, ok := e.store.FindByISIN(rec.ISIN); ok {
			rec.ID = existing.ID
			return
		}
		rec.ID = uuid.NewSHA1(recordNamespace, []byte(strings.ToUpper(rec.ISIN))).String()
		return
	}
	key := fmt.Sprintf("%s|%v|%s|%s", rec.Issuer, rec.Amount, rec.Date, rec.Time)
	rec.ID = uuid.NewSHA1(recordNamespace, []byte(key)).String()
}

func (e *Engine) recordFailure(err error) {
	e.statusMu.Lock()
	e.status.ConsecutiveFailures++
	e.status.LastError = err.Error()
	flipped := e.status.Connected && e.status.ConsecutiveFailures >= e.opts.FailureThreshold
	if flipped {
		e.status.Connected = false
	}
	st := e.status
	e.statusMu.Unlock()

	if flipped {
		st.Records = e.store.Len()
		e.log.Warn("sources unavailable, reporting disconnected",
			slog.Int("failures", st.ConsecutiveFailures))
		e.statusSubs.emit(st)
	}
}

func (e *Engine) recordSuccess() {
	e.statusMu.Lock()
	reconnected := !e.status.Connected
	e.status.Connected = true
	e.status.ConsecutiveFailures = 0
	e.status.LastError = ""
	e.status.LastSuccess = e.now()
	st := e.status
	e.statusMu.Unlock()

	if reconnected {
		st.Records = e.store.Len()
		e.log.Info("sources reachable again, reporting connected")
		e.statusSubs.emit(st)
	}
}

func (e *Engine) Status() model.SyncStatus {
	e.statusMu.RLock()
	st := e.status
	e.statusMu.RUnlock()
	st.Records = e.store.Len()
	return st
}

// ApplyEvent applies one change-feed event. Events for unrelated tables are
// ignored; association tables recompute the bookrunner view.
func (e *Engine) ApplyEvent(ctx context.Context, ev *model.ChangeEvent) error {
	if ev == nil {
		return nil
	}
	if e.isStopped() {
		return ErrEngineStopped
	}
	table := tableName(ev)
	if e.isAssociationTable(table) {
		return e.invalidateBookrunners(ctx)
	}
	if table != "" && !strings.EqualFold(table, e.opts.RecordsTable) {
		e.log.Debug("ignoring event for unrelated table", slog.String("table", table))
		return nil
	}

	switch ev.Type {
	case model.EventInsert, model.EventUpdate:
		e.applyUpsert(ctx, ev)
		return nil
	case model.EventDelete:
		return e.applyDelete(ctx, ev)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}

func (e *Engine) applyUpsert(ctx context.Context, ev *model.ChangeEvent) {
	rec := e.norm.Normalize(ev.Record)
	if normalize.IsEmptyRow(rec) {
		e.log.Debug("dropping empty row from feed", slog.String("event", ev.ID))
		return
	}
	e.resolveID(&rec)

	if prev, ok := e.store.Get(rec.ID); ok && prev.Status != rec.Status && !service.CanTransition(prev.Status, rec.Status) {
		e.log.Warn("applying remote status outside the lifecycle graph",
			slog.String("id", rec.ID),
			slog.String("from", string(prev.Status)),
			slog.String("to", string(rec.Status)))
	}
	e.store.Upsert(rec)
	e.maybeAutoTrigger(ctx, rec)
}

func (e *Engine) applyDelete(ctx context.Context, ev *model.ChangeEvent) error {
	id := ""
	for _, raw := range []model.RawRecord{ev.OldRecord, ev.Record} {
		if len(raw) == 0 {
			continue
		}
		rec := e.norm.Normalize(raw)
		if rec.ID != "" {
			id = rec.ID
			break
		}
		if existing, ok := e.store.FindByISIN(rec.ISIN); ok && !normalize.IsPlaceholderISIN(rec.ISIN) {
			id = existing.ID
			break
		}
	}

	if id == "" {
		e.log.Info("delete event without key, running full refresh", slog.String("event", ev.ID))
		return e.Refresh(ctx)
	}
	e.store.Delete(id)
	return nil
}

func (e *Engine) isAssociationTable(table string) bool {
	for _, t := range e.opts.AssociationTables {
		if strings.EqualFold(t, table) {
			return true
		}
	}
	return false
}

func (e *Engine) invalidateBookrunners(ctx context.Context) error {
	if e.opts.Bookrunners == nil {
		return nil
	}
	aggs, err := e.opts.Bookrunners.Invalidate(ctx)
	if err != nil {
		return fmt.Errorf("recompute bookrunners: %w", err)
	}
	e.aggSubs.emit(aggs)
	return nil
}

// tableName strips a schema qualifier such as "public.".
func tableName(ev *model.ChangeEvent) string {
	table := strings.TrimSpace(ev.Table)
	if table == "" {
		table = strings.TrimSpace(ev.Schema)
	}
	if i := strings.LastIndexByte(table, '.'); i >= 0 {
		table = table[i+1:]
	}
	return table
}

// Transition applies action to the record immediately and confirms it in the
// background: side-channel notification first, then the backing-source write.
// A failed write leaves the optimistic state in place and resolves the
// confirmation with a *model.TransitionError.
func (e *Engine) Transition(ctx context.Context, id string, action model.Action) (*model.Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.isStopped() {
		return nil, ErrEngineStopped
	}

	at := e.now().In(e.norm.Location())
	var from model.Status
	rec, err := e.store.Modify(id, func(r *model.BondRecord) error {
		if err := service.ValidateAction(r.Status, action); err != nil {
			return err
		}
		from = r.Status
		r.Status = action.Target()
		r.ListingTrigger = action.ListingTrigger()
		if action != model.ActionPass {
			r.TriggeredDate = at.Format(normalize.DisplayDateLayout)
			r.TriggeredTime = at.Format(normalize.DisplayTimeLayout)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("transition applied",
		slog.String("id", id),
		slog.String("action", string(action)),
		slog.String("from", string(from)))

	conf := model.NewConfirmation()
	if !e.goTracked(func(ctx context.Context) {
		conf.Resolve(e.confirm(ctx, from, rec, action, at))
	}) {
		conf.Resolve(ErrEngineStopped)
	}
	return conf, nil
}

func (e *Engine) confirm(ctx context.Context, from model.Status, rec model.BondRecord, action model.Action, at time.Time) error {
	if e.opts.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.WriteTimeout)
		defer cancel()
	}

	if e.opts.Notifier != nil {
		payload := model.SideChannelPayload{
			Action:    action.Code(),
			ISIN:      rec.ISIN,
			ID:        rec.ID,
			Timestamp: at.UTC().Format(time.RFC3339),
		}
		if err := e.opts.Notifier.Notify(ctx, payload); err != nil {
			e.log.Warn("side channel delivery failed",
				slog.String("id", rec.ID),
				slog.String("action", payload.Action),
				slog.String("error", err.Error()))
		}
	}

	var result error
	if e.opts.Writer != nil {
		if err := e.opts.Writer.SaveRecord(ctx, rec); err != nil {
			result = &model.TransitionError{ID: rec.ID, Action: action, Err: err}
			e.log.Error("transition rejected by backing source",
				slog.String("id", rec.ID),
				slog.String("error", err.Error()))
		}
	}

	if e.opts.Journal != nil {
		entry := model.TransitionEntry{
			RecordID:   rec.ID,
			ISIN:       rec.ISIN,
			Action:     action.Code(),
			FromStatus: from,
			ToStatus:   rec.Status,
			Outcome:    model.OutcomeConfirmed,
			At:         at,
		}
		if result != nil {
			entry.Outcome = model.OutcomeRejected
			entry.Error = result.Error()
		}
		if err := e.opts.Journal.RecordTransition(ctx, entry); err != nil {
			e.log.Warn("failed to journal transition", slog.String("error", err.Error()))
		}
	}
	return result
}

// AddRecord inserts a locally created record at the front of the store and
// writes it through in the background.
func (e *Engine) AddRecord(ctx context.Context, input model.RawRecord) (model.BondRecord, *model.Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return model.BondRecord{}, nil, err
	}
	if e.isStopped() {
		return model.BondRecord{}, nil, ErrEngineStopped
	}

	rec := e.norm.Normalize(input)
	now := e.now().In(e.norm.Location())
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Date == "" {
		rec.Date = now.Format(normalize.DisplayDateLayout)
	}
	if rec.Time == "" {
		rec.Time = now.Format(normalize.DisplayTimeLayout)
	}
	e.store.Upsert(rec)

	conf := model.NewConfirmation()
	if !e.goTracked(func(ctx context.Context) {
		err := e.write(ctx, rec)
		conf.Resolve(err)
		if err != nil {
			e.log.Warn("failed to write new record", slog.String("id", rec.ID), slog.String("error", err.Error()))
			return
		}
		if current, ok := e.store.Get(rec.ID); ok {
			e.maybeAutoTrigger(ctx, current)
		}
	}) {
		conf.Resolve(ErrEngineStopped)
	}
	return rec, conf, nil
}

// UpdateRecord merges patch into the record and normalizes the result. A
// status change must follow the lifecycle graph.
func (e *Engine) UpdateRecord(ctx context.Context, id string, patch model.RawRecord) (model.BondRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.BondRecord{}, err
	}
	if e.isStopped() {
		return model.BondRecord{}, ErrEngineStopped
	}

	rec, err := e.store.Modify(id, func(r *model.BondRecord) error {
		next := e.norm.Normalize(normalize.MergePatch(r.Raw(), patch))
		next.ID = id
		if next.Status != r.Status && !service.CanTransition(r.Status, next.Status) {
			return fmt.Errorf("%w: %s to %s", model.ErrInvalidTransition, r.Status, next.Status)
		}
		*r = next
		return nil
	})
	if err != nil {
		return model.BondRecord{}, err
	}

	e.goTracked(func(ctx context.Context) {
		if err := e.write(ctx, rec); err != nil {
			e.log.Warn("failed to write record update", slog.String("id", id), slog.String("error", err.Error()))
		}
	})
	return rec, nil
}

func (e *Engine) write(ctx context.Context, rec model.BondRecord) error {
	if e.opts.Writer == nil {
		return nil
	}
	if e.opts.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.WriteTimeout)
		defer cancel()
	}
	return e.opts.Writer.SaveRecord(ctx, rec)
}

// maybeAutoTrigger fires an AUTO transition for a scraped record matching a
// rule. Each record is auto-triggered at most once per process.
func (e *Engine) maybeAutoTrigger(ctx context.Context, rec model.BondRecord) {
	if !e.opts.AutoTrigger || rec.Status != model.StatusScraped {
		return
	}
	rule, ok := e.rules.Match(rec)
	if !ok {
		return
	}

	e.autoMu.Lock()
	if _, fired := e.autoFired[rec.ID]; fired {
		e.autoMu.Unlock()
		return
	}
	e.autoFired[rec.ID] = struct{}{}
	e.autoMu.Unlock()

	if _, err := e.Transition(ctx, rec.ID, model.ActionAuto); err != nil {
		e.log.Debug("auto trigger skipped", slog.String("id", rec.ID), slog.String("error", err.Error()))
		return
	}
	e.log.Info("auto trigger fired", slog.String("id", rec.ID), slog.String("rule", rule.ID))
}

func (e *Engine) autoTriggerAll(ctx context.Context) {
	if !e.opts.AutoTrigger {
		return
	}
	for _, rec := range e.store.Snapshot() {
		e.maybeAutoTrigger(ctx, rec)
	}
}

func (e *Engine) Records() []model.BondRecord {
	return e.store.Snapshot()
}

func (e *Engine) Record(id string) (model.BondRecord, bool) {
	return e.store.Get(id)
}

func (e *Engine) Summary() model.BoardSummary {
	return service.Summarize(e.store.Snapshot())
}

func (e *Engine) Rules() []model.AutoTriggerRule {
	return e.rules.List()
}

// AddRule stores the rule and evaluates it against the current scraped records.
func (e *Engine) AddRule(rule model.AutoTriggerRule) (model.AutoTriggerRule, error) {
	added, err := e.rules.Add(rule)
	if err != nil {
		return model.AutoTriggerRule{}, err
	}
	e.autoTriggerAll(e.ctx)
	return added, nil
}

func (e *Engine) RemoveRule(id string) bool {
	return e.rules.Remove(id)
}

func (e *Engine) Aggregates(ctx context.Context, rng model.DateRange, currency string) ([]model.BookrunnerAggregate, error) {
	if e.opts.Bookrunners == nil {
		return []model.BookrunnerAggregate{}, nil
	}
	return e.opts.Bookrunners.Aggregates(ctx, rng, currency)
}

func (e *Engine) TransitionsSince(ctx context.Context, since time.Time) ([]model.TransitionEntry, error) {
	if e.opts.Journal == nil {
		return nil, ErrJournalUnavailable
	}
	return e.opts.Journal.TransitionsSince(ctx, since)
}

// Subscribe registers fn for every store change.
func (e *Engine) Subscribe(fn func(model.StoreChange)) (unsubscribe func()) {
	return e.store.Subscribe(fn)
}

// SubscribeStatus registers fn for connected/disconnected flips.
func (e *Engine) SubscribeStatus(fn func(model.SyncStatus)) (unsubscribe func()) {
	return e.statusSubs.add(fn)
}

// SubscribeAggregates registers fn for bookrunner recomputations triggered by the feed.
func (e *Engine) SubscribeAggregates(fn func([]model.BookrunnerAggregate)) (unsubscribe func()) {
	return e.aggSubs.add(fn)
}

type listeners[T any] struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(T)
}

func (l *listeners[T]) add(fn func(T)) func() {
	l.mu.Lock()
	if l.fns == nil {
		l.fns = make(map[int]func(T))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

func (l *listeners[T]) emit(v T) {
	l.mu.Lock()
	fns := make([]func(T), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
