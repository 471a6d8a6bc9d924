// Package service holds the domain services: the canonical store, the lifecycle
// rules and the bookrunner roll-up. It depends only on domain models and
// repository interfaces.
package service

import (
	"isinFlow/internal/domain/model"
	"strings"
	"sync"
)

// BondStore is the canonical in-memory collection of bond records keyed by ID.
// Readers never observe a half-applied ReplaceAll. Each subscriber has its own
// queue and goroutine: writers only enqueue, so a slow subscriber delays nobody
// but itself, and every subscriber sees changes in commit order.
type BondStore struct {
	mu      sync.RWMutex
	records map[string]model.BondRecord
	order   []string

	notifyMu sync.Mutex // serializes mutation + enqueue so queues keep commit order
	subMu    sync.Mutex
	subs     map[int]*subscriber
	nextSub  int
}

func NewBondStore() *BondStore {
	return &BondStore{
		records: make(map[string]model.BondRecord),
		subs:    make(map[int]*subscriber),
	}
}

// ReplaceAll swaps the whole collection. Duplicate IDs keep their first
// position and the later record's contents; records without an ID are skipped.
func (s *BondStore) ReplaceAll(records []model.BondRecord) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	next := make(map[string]model.BondRecord, len(records))
	order := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		if _, seen := next[rec.ID]; !seen {
			order = append(order, rec.ID)
		}
		next[rec.ID] = rec
	}

	s.mu.Lock()
	s.records = next
	s.order = order
	s.mu.Unlock()

	s.publish(model.StoreChange{Kind: model.ChangeReplace, Records: s.Snapshot()})
}

// Upsert replaces the record in place when its ID is known, otherwise prepends it.
// It reports whether the record was inserted.
func (s *BondStore) Upsert(rec model.BondRecord) bool {
	if rec.ID == "" {
		return false
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	_, exists := s.records[rec.ID]
	s.records[rec.ID] = rec
	if !exists {
		s.order = append([]string{rec.ID}, s.order...)
	}
	s.mu.Unlock()

	s.publish(model.StoreChange{Kind: model.ChangeUpsert, ID: rec.ID, Record: &rec, Inserted: !exists})
	return !exists
}

// Modify applies fn to the stored record under the write lock. When fn returns an
// error the record is left untouched and the error is returned.
func (s *BondStore) Modify(id string, fn func(rec *model.BondRecord) error) (model.BondRecord, error) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return model.BondRecord{}, model.ErrRecordNotFound
	}
	if err := fn(&rec); err != nil {
		s.mu.Unlock()
		return model.BondRecord{}, err
	}
	rec.ID = id
	s.records[id] = rec
	s.mu.Unlock()

	s.publish(model.StoreChange{Kind: model.ChangeUpsert, ID: id, Record: &rec})
	return rec, nil
}

// Delete removes the record and reports whether it existed.
func (s *BondStore) Delete(id string) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if _, ok := s.records[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.records, id)
	for i, key := range s.order {
		if key == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.publish(model.StoreChange{Kind: model.ChangeDelete, ID: id})
	return true
}

func (s *BondStore) Get(id string) (model.BondRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// FindByISIN returns the first record in store order carrying isin.
func (s *BondStore) FindByISIN(isin string) (model.BondRecord, bool) {
	isin = strings.TrimSpace(isin)
	if isin == "" {
		return model.BondRecord{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if rec := s.records[id]; strings.EqualFold(rec.ISIN, isin) {
			return rec, true
		}
	}
	return model.BondRecord{}, false
}

// Snapshot returns an ordered copy of the collection.
func (s *BondStore) Snapshot() []model.BondRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.BondRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}

func (s *BondStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Subscribe registers fn for every subsequent change and returns its unsubscribe handle.
// fn runs on a dedicated goroutine. Changes queued before unsubscribe are still delivered.
func (s *BondStore) Subscribe(fn func(model.StoreChange)) (unsubscribe func()) {
	sub := &subscriber{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go sub.run()

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(sub.done)
		})
	}
}

func (s *BondStore) publish(change model.StoreChange) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, sub := range s.subs {
		sub.push(change)
	}
}

// subscriber is an unbounded FIFO drained by a single goroutine.
type subscriber struct {
	fn    func(model.StoreChange)
	mu    sync.Mutex
	queue []model.StoreChange
	wake  chan struct{}
	done  chan struct{}
}

func (sub *subscriber) push(change model.StoreChange) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, change)
	sub.mu.Unlock()

	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *subscriber) run() {
	for {
		select {
		case <-sub.wake:
			sub.drain()
		case <-sub.done:
			sub.drain()
			return
		}
	}
}

func (sub *subscriber) drain() {
	for {
		sub.mu.Lock()
		if len(sub.queue) == 0 {
			sub.queue = nil
			sub.mu.Unlock()
			return
		}
		change := sub.queue[0]
		sub.queue[0] = model.StoreChange{}
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()

		sub.fn(change)
	}
}
