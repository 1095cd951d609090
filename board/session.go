package board

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
	"taskboard/feed"
	"taskboard/gateway"
)

// SessionConfig tunes one board session.
type SessionConfig struct {
	PageSize         int
	Cursor           CursorStrategy
	SearchDebounce   time.Duration
	RealtimeDebounce time.Duration
	Reconcile        Reconcile
	Initial          domain.FilterSet
}

// Notice is a transient message for the person looking at the board.
type Notice struct {
	Message string    `json:"message"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

const noticeBuffer = 16

// Session is one open board: its store, filters, search box, drag
// gestures and realtime subscription.
type Session struct {
	ID      string
	Owner   string
	Created time.Time

	Store   *Store
	Filters *FilterState
	Search  *SearchPipeline
	Drag    *DragReconciler

	syncer  *Syncer
	notices chan Notice
	logger  log.FieldLogger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewSession wires a session. Nothing is fetched until Start.
func NewSession(parent context.Context, id, owner string, gw gateway.Gateway, src feed.Subscriber, cfg SessionConfig, logger log.FieldLogger) *Session {
	if logger == nil {
		logger = log.StandardLogger()
	}
	logger = logger.WithField("session", id)
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		ID:      id,
		Owner:   owner,
		Created: time.Now().UTC(),
		notices: make(chan Notice, noticeBuffer),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.Store = NewStore(gw, WithPageSize(cfg.PageSize), WithCursorStrategy(cfg.Cursor), WithLogger(logger))
	s.Filters = NewFilterState(cfg.Initial, s.Store.PageSize(), func(version uint64, f domain.FilterSet) {
		s.Store.ApplyFilters(s.ctx, version, f)
	})
	s.Search = NewSearchPipeline(cfg.SearchDebounce, func(q string) {
		if _, err := s.Filters.Apply(SetSearch(q)); err != nil {
			s.logger.WithError(err).Warn("search commit rejected")
		}
	})
	s.Drag = NewDragReconciler(s.Store, gw, NotifierFunc(s.notify), logger)
	s.syncer = NewSyncer(s.Store, src, cfg.RealtimeDebounce, cfg.Reconcile, logger)
	return s
}

// Start subscribes to realtime changes and loads the first pages.
func (s *Session) Start() error {
	if err := s.syncer.Start(s.ctx); err != nil {
		return err
	}
	version, filters := s.Filters.Versioned()
	s.Store.ApplyFilters(s.ctx, version, filters)
	if s.Store.Snapshot().Generation == 0 {
		s.Store.Reload(s.ctx)
	}
	return nil
}

// Context is cancelled when the session closes.
func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) notify(message string, err error) {
	n := Notice{Message: message, At: time.Now().UTC()}
	if err != nil {
		n.Error = err.Error()
	}
	select {
	case s.notices <- n:
	default:
		s.logger.WithField("message", message).Warn("notice dropped, buffer full")
	}
}

// Notices delivers user-visible messages such as failed saves.
func (s *Session) Notices() <-chan Notice {
	return s.notices
}

// Close tears the session down. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.Search.Close()
		s.syncer.Stop()
		s.cancel()
	})
}
