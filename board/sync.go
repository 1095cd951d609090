package board

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
	"taskboard/feed"
)

// Reconcile selects what a burst of realtime changes triggers once it has
// settled.
type Reconcile string

const (
	// ReconcileReload reloads every column and its total.
	ReconcileReload Reconcile = "reload"
	// ReconcileCounts only refreshes the totals.
	ReconcileCounts Reconcile = "counts"
)

// ParseReconcile accepts "reload" or "counts"; empty means reload.
func ParseReconcile(raw string) (Reconcile, error) {
	switch Reconcile(raw) {
	case "", ReconcileReload:
		return ReconcileReload, nil
	case ReconcileCounts:
		return ReconcileCounts, nil
	}
	return "", fmt.Errorf("unknown reconcile mode %q", raw)
}

// Syncer applies change events to a store as they arrive and reconciles
// after each burst.
type Syncer struct {
	store     *Store
	src       feed.Subscriber
	mode      Reconcile
	debouncer *Debouncer
	logger    log.FieldLogger

	mu     sync.Mutex
	ctx    context.Context
	unsub  feed.Unsubscribe
	events uint64
}

func NewSyncer(store *Store, src feed.Subscriber, delay time.Duration, mode Reconcile, logger log.FieldLogger) *Syncer {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if mode == "" {
		mode = ReconcileReload
	}
	return &Syncer{store: store, src: src, mode: mode, debouncer: NewDebouncer(delay), logger: logger}
}

// Start subscribes to the feed. Reconciliation runs under ctx.
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsub != nil {
		return nil
	}
	unsub, err := s.src.Subscribe(ctx, s.handle)
	if err != nil {
		return fmt.Errorf("subscribe to changes: %w", err)
	}
	s.ctx, s.unsub = ctx, unsub
	return nil
}

func (s *Syncer) handle(ev domain.ChangeEvent) {
	s.mu.Lock()
	s.events++
	ctx := s.ctx
	s.mu.Unlock()

	if s.store.ApplyRealtimeEvent(ev) {
		s.logger.WithFields(log.Fields{"kind": ev.Kind, "task": ev.TaskID()}).Debug("applied change")
	}
	s.debouncer.Trigger(func() {
		if ctx == nil || ctx.Err() != nil {
			return
		}
		if s.mode == ReconcileCounts {
			s.store.RefreshCounts(ctx)
			return
		}
		s.store.Reload(ctx)
	})
}

// Events is the number of changes received so far.
func (s *Syncer) Events() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

// Stop unsubscribes and drops any pending reconciliation. Safe to call
// more than once.
func (s *Syncer) Stop() {
	s.debouncer.Stop()
	s.mu.Lock()
	unsub := s.unsub
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}
