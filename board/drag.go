package board

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

var (
	ErrNotDragging     = errors.New("no drag in progress")
	ErrAlreadyDragging = errors.New("a drag is already in progress")
	ErrUnknownTask     = errors.New("task is not on the board")
)

// StatusUpdater persists a status change.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, taskID string, status domain.Status) error
}

// Notifier surfaces a transient, user-visible message.
type Notifier interface {
	Notify(message string, err error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string, err error)

func (f NotifierFunc) Notify(message string, err error) { f(message, err) }

// DragPhase is where a gesture stands.
type DragPhase int

const (
	DragIdle DragPhase = iota
	DragDragging
)

// DropResult describes what a drop did.
type DropResult struct {
	Moved  bool             `json:"moved"`
	Task   domain.Task      `json:"task"`
	Column domain.StatusKey `json:"column"`
	Index  int              `json:"index"`
	// PersistErr is set when the status update failed. The local move stays.
	PersistErr error `json:"-"`
}

// DragReconciler turns a drag gesture into one optimistic move and one
// status update.
type DragReconciler struct {
	store    *Store
	updater  StatusUpdater
	notifier Notifier
	logger   log.FieldLogger

	mu       sync.Mutex
	phase    DragPhase
	activeID string
	source   domain.StatusKey
}

func NewDragReconciler(store *Store, updater StatusUpdater, notifier Notifier, logger log.FieldLogger) *DragReconciler {
	if notifier == nil {
		notifier = NotifierFunc(func(string, error) {})
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &DragReconciler{store: store, updater: updater, notifier: notifier, logger: logger}
}

// Begin enters Dragging for a task currently on the board.
func (d *DragReconciler) Begin(activeID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase == DragDragging {
		return ErrAlreadyDragging
	}
	src, ok := d.store.FindColumn(activeID)
	if !ok {
		return ErrUnknownTask
	}
	d.phase, d.activeID, d.source = DragDragging, activeID, src
	return nil
}

// Cancel abandons the gesture without touching the board.
func (d *DragReconciler) Cancel() {
	d.mu.Lock()
	d.phase, d.activeID, d.source = DragIdle, "", ""
	d.mu.Unlock()
}

// Phase reports the current gesture phase.
func (d *DragReconciler) Phase() DragPhase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

// Drop ends the gesture over overID, which is either a task id or a column
// key. Dropping on nothing or on the dragged card itself changes nothing.
func (d *DragReconciler) Drop(ctx context.Context, overID string) (DropResult, error) {
	d.mu.Lock()
	if d.phase != DragDragging {
		d.mu.Unlock()
		return DropResult{}, ErrNotDragging
	}
	activeID, source := d.activeID, d.source
	d.phase, d.activeID, d.source = DragIdle, "", ""
	d.mu.Unlock()

	if overID == "" || overID == activeID {
		return DropResult{}, nil
	}
	// A realtime update may have moved the card while it was held.
	if cur, ok := d.store.FindColumn(activeID); ok {
		source = cur
	} else {
		return DropResult{}, nil
	}

	dest, destIndex, ok := d.target(overID)
	if !ok {
		return DropResult{}, nil
	}
	if source == dest {
		if _, srcIndex, found := d.store.Position(activeID); found && srcIndex < destIndex {
			destIndex--
		}
	}

	moved, landed, ok := d.store.moveTask(activeID, source, dest, destIndex)
	if !ok {
		return DropResult{}, nil
	}
	res := DropResult{Moved: true, Task: moved, Column: dest, Index: landed}

	if err := d.updater.UpdateStatus(ctx, activeID, moved.Status); err != nil {
		d.logger.WithError(err).WithFields(log.Fields{
			"task":   activeID,
			"status": moved.Status,
		}).Error("status update failed after move")
		d.notifier.Notify("Could not save the new status of \""+moved.Title+"\"", err)
		res.PersistErr = err
	}
	d.store.RefreshCounts(ctx)
	return res, nil
}

// target resolves the drop column and insertion index for overID.
func (d *DragReconciler) target(overID string) (domain.StatusKey, int, bool) {
	if k, i, ok := d.store.Position(overID); ok {
		return k, i, true
	}
	k, err := domain.ParseStatusKey(overID)
	if err != nil {
		return "", 0, false
	}
	return k, d.store.ColumnLen(k), true
}
