package app_test

import (
	"context"
	"errors"
	"isinFlow/internal/app"
	"isinFlow/internal/domain/model"
	"isinFlow/internal/domain/normalize"
	"isinFlow/internal/domain/repository"
	"isinFlow/internal/domain/service"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu    sync.Mutex
	name  string
	rows  []model.RawRecord
	err   error
	calls int
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) FetchAll(ctx context.Context) ([]model.RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]model.RawRecord, len(s.rows))
	copy(out, s.rows)
	return out, nil
}

func (s *fakeSource) set(rows []model.RawRecord, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = rows
	s.err = err
}

func (s *fakeSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeWriter struct {
	mu    sync.Mutex
	err   error
	block bool
	saved []model.BondRecord
}

func (w *fakeWriter) SaveRecord(ctx context.Context, rec model.BondRecord) error {
	if w.block {
		<-ctx.Done()
		return ctx.Err()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.saved = append(w.saved, rec)
	return w.err
}

func (w *fakeWriter) Saved() []model.BondRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]model.BondRecord(nil), w.saved...)
}

type fakeNotifier struct {
	mu       sync.Mutex
	err      error
	payloads []model.SideChannelPayload
}

func (n *fakeNotifier) Notify(ctx context.Context, payload model.SideChannelPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, payload)
	return n.err
}

func (n *fakeNotifier) Payloads() []model.SideChannelPayload {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.SideChannelPayload(nil), n.payloads...)
}

type fakeSnapshots struct {
	mu      sync.Mutex
	records []model.BondRecord
	saves   int
}

func (c *fakeSnapshots) SaveSnapshot(ctx context.Context, records []model.BondRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = records
	c.saves++
	return nil
}

func (c *fakeSnapshots) LoadSnapshot(ctx context.Context) ([]model.BondRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records, nil
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []model.TransitionEntry
}

func (j *fakeJournal) RecordTransition(ctx context.Context, entry model.TransitionEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return nil
}

func (j *fakeJournal) TransitionsSince(ctx context.Context, since time.Time) ([]model.TransitionEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []model.TransitionEntry
	for _, e := range j.entries {
		if e.At.After(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeAssociations struct {
	assocs []model.BookrunnerAssociation
}

func (f *fakeAssociations) FetchAssociations(ctx context.Context) ([]model.BookrunnerAssociation, error) {
	return f.assocs, nil
}

func newTestEngine(t *testing.T, opts app.EngineOptions) *app.Engine {
	t.Helper()
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	e := app.NewEngine(service.NewBondStore(), opts)
	t.Cleanup(e.Stop)
	return e
}

func insertEvent(record model.RawRecord) *model.ChangeEvent {
	return &model.ChangeEvent{Type: model.EventInsert, Table: "scraped_bond_isins", Record: record}
}

func ids(records []model.BondRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestEngine_EndToEndManualTrigger(t *testing.T) {
	ctx := context.Background()
	notifier := &fakeNotifier{}
	writer := &fakeWriter{}
	e := newTestEngine(t, app.EngineOptions{Notifier: notifier, Writer: writer})

	require.NoError(t, e.ApplyEvent(ctx, insertEvent(model.RawRecord{"isin": "XS0001", "status": "scraped"})))

	rec, ok := e.Store().FindByISIN("XS0001")
	require.True(t, ok)
	require.NotEmpty(t, rec.ID)

	conf, err := e.Transition(ctx, rec.ID, model.ActionTrigger)
	require.NoError(t, err)
	require.NoError(t, conf.Wait(ctx))

	got, _ := e.Record(rec.ID)
	assert.Equal(t, model.StatusTriggered, got.Status)
	assert.Equal(t, model.TriggerManual, got.ListingTrigger)
	assert.Equal(t, "20.11.2025", got.TriggeredDate)
	assert.Equal(t, "10:00:00", got.TriggeredTime)

	payloads := notifier.Payloads()
	require.Len(t, payloads, 1)
	assert.Equal(t, "TRIGGER_MANUAL", payloads[0].Action)
	assert.Equal(t, "XS0001", payloads[0].ISIN)
	assert.Equal(t, rec.ID, payloads[0].ID)

	require.Len(t, writer.Saved(), 1)
	assert.Equal(t, model.StatusTriggered, writer.Saved()[0].Status)
}

func TestEngine_FailedWriteKeepsOptimisticState(t *testing.T) {
	ctx := context.Background()
	journal := &fakeJournal{}
	e := newTestEngine(t, app.EngineOptions{
		Writer:  &fakeWriter{err: errors.New("connection reset")},
		Journal: journal,
	})
	e.Store().Upsert(model.BondRecord{ID: "a", ISIN: "XS0000000001", Status: model.StatusScraped})

	conf, err := e.Transition(ctx, "a", model.ActionTrigger)
	require.NoError(t, err)

	// visible before confirmation
	rec, _ := e.Record("a")
	assert.Equal(t, model.StatusTriggered, rec.Status)

	err = conf.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTransitionRejected)

	var terr *model.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "a", terr.ID)

	rec, _ = e.Record("a")
	assert.Equal(t, model.StatusTriggered, rec.Status)

	entries, err := e.TransitionsSince(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.OutcomeRejected, entries[0].Outcome)
	assert.Equal(t, model.StatusScraped, entries[0].FromStatus)
	assert.Equal(t, model.StatusTriggered, entries[0].ToStatus)
}

func TestEngine_SideChannelFailureDoesNotFailTransition(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, app.EngineOptions{Notifier: &fakeNotifier{err: errors.New("webhook down")}})
	e.Store().Upsert(model.BondRecord{ID: "a", Status: model.StatusScraped})

	conf, err := e.Transition(ctx, "a", model.ActionPass)
	require.NoError(t, err)
	assert.NoError(t, conf.Wait(ctx))

	rec, _ := e.Record("a")
	assert.Equal(t, model.StatusPassed, rec.Status)
	assert.Equal(t, model.TriggerPassed, rec.ListingTrigger)
	assert.Empty(t, rec.TriggeredDate)
}

func TestEngine_TransitionValidation(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, app.EngineOptions{})
	e.Store().Upsert(model.BondRecord{ID: "t", Status: model.StatusTriggered})
	e.Store().Upsert(model.BondRecord{ID: "p", Status: model.StatusPassed})

	_, err := e.Transition(ctx, "t", model.ActionPass)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = e.Transition(ctx, "missing", model.ActionTrigger)
	assert.ErrorIs(t, err, model.ErrRecordNotFound)

	// re-trigger from passed
	conf, err := e.Transition(ctx, "p", model.ActionTrigger)
	require.NoError(t, err)
	require.NoError(t, conf.Wait(ctx))
	rec, _ := e.Record("p")
	assert.Equal(t, model.StatusTriggered, rec.Status)
}

func TestEngine_UpdateAfterRefreshIsNotDropped(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{name: "primary", rows: []model.RawRecord{
		{"id": "a", "isin": "XS0000000001", "amount": 1000},
	}}
	e := newTestEngine(t, app.EngineOptions{Sources: []repository.RecordSource{src}})

	require.NoError(t, e.Refresh(ctx))
	require.NoError(t, e.ApplyEvent(ctx, &model.ChangeEvent{
		Type:   model.EventUpdate,
		Table:  "scraped_bond_isins",
		Record: model.RawRecord{"id": "b", "isin": "XS0000000002", "amount": 2000},
	}))

	_, ok := e.Record("b")
	assert.True(t, ok)
	assert.Equal(t, []string{"b", "a"}, ids(e.Records()))
}

func TestEngine_RefreshDropsEmptyRowsAndResolvesIdentity(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{name: "primary", rows: []model.RawRecord{
		{"isin": "Unknown"},
		{"isin": "xs0000000001", "size": "200k x 1k"},
		{"id": "b", "isin": "XS0000000002", "amount": 5000},
	}}
	e := newTestEngine(t, app.EngineOptions{Sources: []repository.RecordSource{src}})

	require.NoError(t, e.Refresh(ctx))
	require.Equal(t, 2, e.Store().Len())

	first, ok := e.Store().FindByISIN("XS0000000001")
	require.True(t, ok)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, 200000.0, first.Amount)

	// the derived ID is stable across refreshes
	require.NoError(t, e.Refresh(ctx))
	again, _ := e.Store().FindByISIN("XS0000000001")
	assert.Equal(t, first.ID, again.ID)
}

func TestEngine_LaterSourceWinsOnDuplicateID(t *testing.T) {
	ctx := context.Background()
	primary := &fakeSource{name: "primary", rows: []model.RawRecord{
		{"id": "a", "isin": "XS0000000001", "issuer": "Old"},
		{"id": "b", "isin": "XS0000000002"},
	}}
	sheet := &fakeSource{name: "sheet", rows: []model.RawRecord{
		{"id": "a", "isin": "XS0000000001", "issuer": "New"},
	}}
	e := newTestEngine(t, app.EngineOptions{Sources: []repository.RecordSource{primary, sheet}})

	require.NoError(t, e.Refresh(ctx))
	assert.Equal(t, []string{"a", "b"}, ids(e.Records()))
	rec, _ := e.Record("a")
	assert.Equal(t, "New", rec.Issuer)
}

func TestEngine_FailedRefreshKeepsStoreAndReportsDisconnected(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{name: "primary", rows: []model.RawRecord{{"id": "a", "isin": "XS0000000001"}}}
	e := newTestEngine(t, app.EngineOptions{Sources: []repository.RecordSource{src}, FailureThreshold: 2})

	var mu sync.Mutex
	var seen []model.SyncStatus
	unsubscribe := e.SubscribeStatus(func(st model.SyncStatus) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})
	defer unsubscribe()

	require.NoError(t, e.Refresh(ctx))
	src.set(nil, errors.New("timeout"))

	err := e.Refresh(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrSourceUnavailable)
	assert.True(t, e.Status().Connected)
	assert.Equal(t, 1, e.Store().Len())

	require.Error(t, e.Refresh(ctx))
	st := e.Status()
	assert.False(t, st.Connected)
	assert.Equal(t, 2, st.ConsecutiveFailures)
	assert.Equal(t, 1, st.Records)

	src.set([]model.RawRecord{{"id": "a", "isin": "XS0000000001"}}, nil)
	require.NoError(t, e.Refresh(ctx))
	assert.True(t, e.Status().Connected)
	assert.Zero(t, e.Status().ConsecutiveFailures)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.False(t, seen[0].Connected)
	assert.True(t, seen[1].Connected)
}

func TestEngine_InsertPrependsUpdateKeepsPosition(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, app.EngineOptions{})

	require.NoError(t, e.ApplyEvent(ctx, insertEvent(model.RawRecord{"id": "a", "isin": "XS0000000001"})))
	require.NoError(t, e.ApplyEvent(ctx, insertEvent(model.RawRecord{"id": "b", "isin": "XS0000000002"})))
	require.NoError(t, e.ApplyEvent(ctx, insertEvent(model.RawRecord{"id": "c", "isin": "XS0000000003"})))
	assert.Equal(t, []string{"c", "b", "a"}, ids(e.Records()))

	require.NoError(t, e.ApplyEvent(ctx, &model.ChangeEvent{
		Type:   model.EventUpdate,
		Table:  "scraped_bond_isins",
		Record: model.RawRecord{"id": "a", "isin": "XS0000000001", "status": "trigger"},
	}))
	assert.Equal(t, []string{"c", "b", "a"}, ids(e.Records()))

	// insert of a known key behaves as an update
	require.NoError(t, e.ApplyEvent(ctx, insertEvent(model.RawRecord{"id": "b", "isin": "XS0000000002", "issuer": "Acme"})))
	assert.Equal(t, []string{"c", "b", "a"}, ids(e.Records()))
	rec, _ := e.Record("b")
	assert.Equal(t, "Acme", rec.Issuer)

	// remote writes are authoritative even when they move status backwards
	require.NoError(t, e.ApplyEvent(ctx, &model.ChangeEvent{
		Type:   model.EventUpdate,
		Table:  "scraped_bond_isins",
		Record: model.RawRecord{"id": "a", "isin": "XS0000000001", "status": "scraped"},
	}))
	rec, _ = e.Record("a")
	assert.Equal(t, model.StatusScraped, rec.Status)
}

func TestEngine_DeleteEvents(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{name: "primary", rows: []model.RawRecord{
		{"id": "a", "isin": "XS0000000001"},
		{"id": "b", "isin": "XS0000000002"},
	}}
	e := newTestEngine(t, app.EngineOptions{Sources: []repository.RecordSource{src}})
	require.NoError(t, e.Refresh(ctx))

	// keyed delete
	require.NoError(t, e.ApplyEvent(ctx, &model.ChangeEvent{
		Type:      model.EventDelete,
		Table:     "scraped_bond_isins",
		OldRecord: model.RawRecord{"id": "a"},
	}))
	_, ok := e.Record("a")
	assert.False(t, ok)

	// delete by ISIN only
	require.NoError(t, e.ApplyEvent(ctx, &model.ChangeEvent{
		Type:      model.EventDelete,
		Table:     "scraped_bond_isins",
		OldRecord: model.RawRecord{"isin": "XS0000000002"},
	}))
	assert.Zero(t, e.Store().Len())

	// no key at all falls back to a full refresh
	calls := src.Calls()
	src.set([]model.RawRecord{{"id": "b", "isin": "XS0000000002"}}, nil)
	require.NoError(t, e.ApplyEvent(ctx, &model.ChangeEvent{Type: model.EventDelete, Table: "scraped_bond_isins"}))
	assert.Equal(t, calls+1, src.Calls())
	assert.Equal(t, []string{"b"}, ids(e.Records()))
}

func TestEngine_IgnoresUnrelatedTables(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, app.EngineOptions{})

	require.NoError(t, e.ApplyEvent(ctx, &model.ChangeEvent{
		Type:   model.EventInsert,
		Table:  "audit_log",
		Record: model.RawRecord{"id": "x", "isin": "XS0000000009"},
	}))
	assert.Zero(t, e.Store().Len())

	require.NoError(t, e.ApplyEvent(ctx, &model.ChangeEvent{
		Type:   model.EventInsert,
		Table:  "public.scraped_bond_isins",
		Record: model.RawRecord{"id": "x", "isin": "XS0000000009"},
	}))
	assert.Equal(t, 1, e.Store().Len())

	assert.Error(t, e.ApplyEvent(ctx, &model.ChangeEvent{Type: "truncate", Table: "scraped_bond_isins"}))
}

func TestEngine_FeedDropsEmptyRows(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, app.EngineOptions{})

	require.NoError(t, e.ApplyEvent(ctx, insertEvent(model.RawRecord{"isin": "Unknown", "issuer": "Acme"})))
	assert.Zero(t, e.Store().Len())
}

func TestEngine_AssociationEventsRecomputeBookrunners(t *testing.T) {
	ctx := context.Background()
	store := service.NewBondStore()
	day := time.Date(2025, 11, 20, 9, 0, 0, 0, time.UTC)
	assocs := &fakeAssociations{assocs: []model.BookrunnerAssociation{
		{Bookrunner: "JPM", ISIN: "XS0000000001", Currency: "EUR", CreatedAt: day},
		{Bookrunner: "J.P. Morgan", ISIN: "XS0000000002", Currency: "EUR", CreatedAt: day},
		{Bookrunner: "Deutsche Bank", ISIN: "XS0000000003", Currency: "USD", CreatedAt: day},
	}}
	view := service.NewBookrunnerView(assocs, nil, service.NewAggregator(nil, time.UTC), store.FindByISIN, nil)
	e := app.NewEngine(store, app.EngineOptions{Bookrunners: view})
	t.Cleanup(e.Stop)

	var got []model.BookrunnerAggregate
	unsubscribe := e.SubscribeAggregates(func(aggs []model.BookrunnerAggregate) { got = aggs })
	defer unsubscribe()

	require.NoError(t, e.ApplyEvent(ctx, &model.ChangeEvent{Type: model.EventInsert, Table: "bond_bookrunners"}))
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].DealCount)
	assert.InDelta(t, 66.67, got[0].MarketSharePercent, 0.01)

	eur, err := e.Aggregates(ctx, model.DateRange{}, "EUR")
	require.NoError(t, err)
	require.Len(t, eur, 1)
	assert.Equal(t, 100.0, eur[0].MarketSharePercent)

	// records never change on association events
	assert.Zero(t, store.Len())
}

func TestEngine_AutoTrigger(t *testing.T) {
	ctx := context.Background()
	notifier := &fakeNotifier{}
	rules := service.NewRuleSet(model.AutoTriggerRule{ID: "eur", Currency: "€ (EUR)", MaxSize: 99000})
	e := newTestEngine(t, app.EngineOptions{Notifier: notifier, Rules: rules, AutoTrigger: true})

	small := model.RawRecord{"id": "s", "isin": "XS0000000001", "currency": "€", "minSize": "50k x 1k"}
	large := model.RawRecord{"id": "l", "isin": "XS0000000002", "currency": "EUR", "amount": 250000}
	usd := model.RawRecord{"id": "u", "isin": "XS0000000003", "currency": "USD", "amount": 1000}

	for _, raw := range []model.RawRecord{small, large, usd} {
		require.NoError(t, e.ApplyEvent(ctx, insertEvent(raw)))
	}

	rec, _ := e.Record("s")
	assert.Equal(t, model.StatusTriggered, rec.Status)
	assert.Equal(t, model.TriggerAuto, rec.ListingTrigger)
	for _, id := range []string{"l", "u"} {
		rec, _ := e.Record(id)
		assert.Equal(t, model.StatusScraped, rec.Status, id)
	}

	// the remote echo of the old state does not fire a second time
	require.NoError(t, e.ApplyEvent(ctx, insertEvent(small)))

	// a new rule is evaluated against current records
	_, err := e.AddRule(model.AutoTriggerRule{Currency: "USD", MaxSize: 49000})
	require.NoError(t, err)
	rec, _ = e.Record("u")
	assert.Equal(t, model.StatusTriggered, rec.Status)

	e.Stop()
	var codes []string
	for _, p := range notifier.Payloads() {
		codes = append(codes, p.Action+":"+p.ID)
	}
	assert.ElementsMatch(t, []string{"TRIGGER_AUTO:s", "TRIGGER_AUTO:u"}, codes)
}

func TestEngine_AddRecord(t *testing.T) {
	ctx := context.Background()
	writer := &fakeWriter{}
	e := newTestEngine(t, app.EngineOptions{Writer: writer})
	e.Store().Upsert(model.BondRecord{ID: "old", ISIN: "XS0000000001"})

	rec, conf, err := e.AddRecord(ctx, model.RawRecord{"isin": "XS0000000002", "issuer": "Acme", "size": "100000"})
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	assert.Equal(t, "20.11.2025", rec.Date)
	assert.Equal(t, "10:00:00", rec.Time)
	assert.Equal(t, model.StatusScraped, rec.Status)
	assert.Equal(t, 100000.0, rec.Amount)
	assert.Equal(t, []string{rec.ID, "old"}, ids(e.Records()))

	require.NoError(t, conf.Wait(ctx))
	require.Len(t, writer.Saved(), 1)
	assert.Equal(t, rec.ID, writer.Saved()[0].ID)
}

func TestEngine_UpdateRecord(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, app.EngineOptions{Normalizer: normalize.New(time.UTC)})
	e.Store().Upsert(model.BondRecord{
		ID: "a", ISIN: "XS0000000001", Issuer: "Acme", Currency: "EUR",
		MinimumSize: "1.000", Amount: 1000, Status: model.StatusTriggered,
	})

	rec, err := e.UpdateRecord(ctx, "a", model.RawRecord{
		"Issuer":       " Acme Corp ",
		"submitted_at": "2025-11-20T12:30:00Z",
		"status":       "submit",
		"place":        "Euronext",
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", rec.Issuer)
	assert.Equal(t, model.StatusSubmitted, rec.Status)
	assert.Equal(t, "20.11.2025", rec.SubmittedDate)
	assert.Equal(t, "12:30:00", rec.SubmittedTime)
	assert.Equal(t, "Euronext", rec.SubmissionPlace)
	assert.Equal(t, 1000.0, rec.Amount)

	stored, _ := e.Record("a")
	assert.Equal(t, rec, stored)

	_, err = e.UpdateRecord(ctx, "a", model.RawRecord{"status": "scraped"})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = e.UpdateRecord(ctx, "missing", model.RawRecord{"issuer": "x"})
	assert.ErrorIs(t, err, model.ErrRecordNotFound)

	rec, err = e.UpdateRecord(ctx, "a", model.RawRecord{"minSize": "500k"})
	require.NoError(t, err)
	assert.Equal(t, 500000.0, rec.Amount)
}

func TestEngine_StopReleasesPendingConfirmations(t *testing.T) {
	ctx := context.Background()
	e := app.NewEngine(service.NewBondStore(), app.EngineOptions{Writer: &fakeWriter{block: true}})
	e.Store().Upsert(model.BondRecord{ID: "a", Status: model.StatusScraped})
	e.Store().Upsert(model.BondRecord{ID: "b", Status: model.StatusScraped})

	conf, err := e.Transition(ctx, "a", model.ActionTrigger)
	require.NoError(t, err)
	assert.NoError(t, conf.Err())

	e.Stop()
	select {
	case <-conf.Done():
	default:
		t.Fatal("confirmation still pending after Stop")
	}
	assert.ErrorIs(t, conf.Err(), model.ErrTransitionRejected)

	_, err = e.Transition(ctx, "b", model.ActionTrigger)
	assert.ErrorIs(t, err, app.ErrEngineStopped)
	b, _ := e.Record("b")
	assert.Equal(t, model.StatusScraped, b.Status)
}

func TestEngine_RejectsMutationsAfterStop(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, app.EngineOptions{})
	e.Store().Upsert(model.BondRecord{ID: "a", ISIN: "XS0000000001", Status: model.StatusScraped})
	e.Stop()

	err := e.ApplyEvent(ctx, insertEvent(model.RawRecord{"id": "ghost", "isin": "XS0000000009"}))
	assert.ErrorIs(t, err, app.ErrEngineStopped)

	_, conf, err := e.AddRecord(ctx, model.RawRecord{"isin": "XS0000000008"})
	assert.ErrorIs(t, err, app.ErrEngineStopped)
	assert.Nil(t, conf)

	_, err = e.UpdateRecord(ctx, "a", model.RawRecord{"issuer": "Acme"})
	assert.ErrorIs(t, err, app.ErrEngineStopped)

	assert.Equal(t, []string{"a"}, ids(e.Records()))
	a, _ := e.Record("a")
	assert.Empty(t, a.Issuer)
}

func TestEngine_StartWarmsFromSnapshotAndPolls(t *testing.T) {
	snapshots := &fakeSnapshots{records: []model.BondRecord{{ID: "cached", ISIN: "XS0000000001"}}}
	src := &fakeSource{name: "primary", err: errors.New("down")}
	e := newTestEngine(t, app.EngineOptions{
		Sources:      []repository.RecordSource{src},
		Snapshots:    snapshots,
		PollInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	require.Eventually(t, func() bool { return src.Calls() >= 2 }, time.Second, 5*time.Millisecond)
	_, ok := e.Record("cached")
	assert.True(t, ok)

	src.set([]model.RawRecord{{"id": "fresh", "isin": "XS0000000002"}}, nil)
	require.Eventually(t, func() bool {
		_, ok := e.Record("fresh")
		return ok
	}, time.Second, 5*time.Millisecond)

	snapshots.mu.Lock()
	assert.Positive(t, snapshots.saves)
	snapshots.mu.Unlock()

	// cancelling the parent context stops the poll loop
	cancel()
	e.Stop()
	calls := src.Calls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, src.Calls())
}

func TestEngine_JournalNotConfigured(t *testing.T) {
	e := newTestEngine(t, app.EngineOptions{})
	_, err := e.TransitionsSince(context.Background(), time.Time{})
	assert.ErrorIs(t, err, app.ErrJournalUnavailable)
}

func TestEngine_Summary(t *testing.T) {
	e := newTestEngine(t, app.EngineOptions{})
	e.Store().Upsert(model.BondRecord{ID: "a", Currency: "EUR", Amount: 1000, Status: model.StatusScraped})
	e.Store().Upsert(model.BondRecord{ID: "b", Currency: "€", Amount: 500, Status: model.StatusTriggered})

	sum := e.Summary()
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.ByStatus[model.StatusTriggered])
}

func TestEngine_SlowSubscriberDoesNotDelayTransition(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, app.EngineOptions{})
	e.Store().Upsert(model.BondRecord{ID: "a", ISIN: "XS0000000001", Status: model.StatusScraped})

	delivered := make(chan model.StoreChange, 1)
	unsubscribe := e.Subscribe(func(c model.StoreChange) {
		time.Sleep(time.Second)
		delivered <- c
	})
	defer unsubscribe()

	start := time.Now()
	conf, err := e.Transition(ctx, "a", model.ActionTrigger)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
	require.NoError(t, conf.Wait(ctx))

	select {
	case c := <-delivered:
		assert.Equal(t, model.StatusTriggered, c.Record.Status)
	case <-time.After(3 * time.Second):
		t.Fatal("change never delivered")
	}
}
