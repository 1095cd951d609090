package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskboard/board"
	"taskboard/domain"
	"taskboard/feed"
	"taskboard/gateway"
)

type entry struct {
	session  *board.Session
	lastSeen time.Time
	streams  int
}

// Registry holds the open board sessions, one per browser tab. Sessions
// outlive the request that opened them and are bound to the registry's
// context instead.
type Registry struct {
	ctx    context.Context
	gw     gateway.Gateway
	src    feed.Subscriber
	cfg    board.SessionConfig
	idle   time.Duration
	logger *log.Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

func NewRegistry(ctx context.Context, gw gateway.Gateway, src feed.Subscriber, cfg board.SessionConfig, idle time.Duration, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Registry{
		ctx:      ctx,
		gw:       gw,
		src:      src,
		cfg:      cfg,
		idle:     idle,
		logger:   logger,
		sessions: make(map[string]*entry),
	}
}

// Open starts a new session for owner, optionally with initial filters.
func (r *Registry) Open(owner string, initial *domain.FilterSet) (*board.Session, error) {
	cfg := r.cfg
	if initial != nil {
		if err := initial.Validate(); err != nil {
			return nil, err
		}
		cfg.Initial = initial.Clone()
	}
	s := board.NewSession(r.ctx, uuid.NewString(), owner, r.gw, r.src, cfg, r.logger)
	if err := s.Start(); err != nil {
		s.Close()
		return nil, fmt.Errorf("start board session: %w", err)
	}
	r.mu.Lock()
	r.sessions[s.ID] = &entry{session: s, lastSeen: time.Now()}
	r.mu.Unlock()
	r.logger.WithFields(log.Fields{"session": s.ID, "owner": owner}).Info("board session opened")
	return s, nil
}

// Get returns owner's session id and marks it as used.
func (r *Registry) Get(id, owner string) (*board.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok || e.session.Owner != owner {
		return nil, ErrSessionNotFound
	}
	e.lastSeen = time.Now()
	return e.session, nil
}

// Attach marks a stream as reading from the session; the returned func
// detaches it. Sessions with attached streams are never reaped.
func (r *Registry) Attach(id string) func() {
	r.mu.Lock()
	if e, ok := r.sessions[id]; ok {
		e.streams++
	}
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		if e, ok := r.sessions[id]; ok {
			e.streams--
			e.lastSeen = time.Now()
		}
		r.mu.Unlock()
	}
}

func (r *Registry) Close(id, owner string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok || e.session.Owner != owner {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	r.mu.Unlock()
	e.session.Close()
	return nil
}

// CloseOwner closes every session of owner and returns how many there were.
func (r *Registry) CloseOwner(owner string) int {
	var closing []*board.Session
	r.mu.Lock()
	for id, e := range r.sessions {
		if e.session.Owner == owner {
			closing = append(closing, e.session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()
	for _, s := range closing {
		s.Close()
	}
	return len(closing)
}

// Sweep closes sessions that have been idle longer than the idle timeout.
func (r *Registry) Sweep(now time.Time) int {
	if r.idle <= 0 {
		return 0
	}
	var closing []*board.Session
	r.mu.Lock()
	for id, e := range r.sessions {
		if e.streams == 0 && now.Sub(e.lastSeen) > r.idle {
			closing = append(closing, e.session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()
	for _, s := range closing {
		r.logger.WithField("session", s.ID).Info("idle board session closed")
		s.Close()
	}
	return len(closing)
}

// Run sweeps idle sessions until ctx is done, then closes the rest.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			r.Sweep(now)
		case <-ctx.Done():
			r.CloseAll()
			return
		}
	}
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range all {
		e.session.Close()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
