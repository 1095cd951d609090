// Package feed delivers row changes on the task table to subscribers.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"

	"taskboard/domain"
)

// Handler receives one change. Handlers run on the subscriber's delivery
// goroutine and must not block for long.
type Handler func(domain.ChangeEvent)

// Unsubscribe stops delivery. It is safe to call more than once.
type Unsubscribe func()

// Subscriber is a source of change events for one table.
type Subscriber interface {
	Subscribe(ctx context.Context, h Handler) (Unsubscribe, error)
}

var (
	// ErrOtherTable marks payloads for tables the subscriber does not watch.
	ErrOtherTable = errors.New("change for another table")
	ErrBadKind    = errors.New("unknown change kind")
)

// Decode parses a change payload. Payloads naming a table other than table
// yield ErrOtherTable; an empty table name is accepted.
func Decode(payload []byte, table string) (domain.ChangeEvent, error) {
	var ev domain.ChangeEvent
	if err := sonic.Unmarshal(payload, &ev); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("decode change: %w", err)
	}
	if ev.Table != "" && table != "" && ev.Table != table {
		return domain.ChangeEvent{}, ErrOtherTable
	}
	switch ev.Kind {
	case domain.ChangeInsert, domain.ChangeUpdate:
		if ev.After == nil {
			return domain.ChangeEvent{}, fmt.Errorf("%s without record", ev.Kind)
		}
	case domain.ChangeDelete:
		if ev.Before == nil {
			return domain.ChangeEvent{}, fmt.Errorf("%s without old_record", ev.Kind)
		}
	default:
		return domain.ChangeEvent{}, fmt.Errorf("%w: %q", ErrBadKind, ev.Kind)
	}
	if ev.TaskID() == "" {
		return domain.ChangeEvent{}, errors.New("change without task id")
	}
	return ev, nil
}

// Encode is the inverse of Decode, used by publishers.
func Encode(ev domain.ChangeEvent) ([]byte, error) {
	return sonic.Marshal(ev)
}

// run starts loop on its own goroutine and returns a handle that cancels it.
func run(parent context.Context, loop func(ctx context.Context)) Unsubscribe {
	ctx, cancel := context.WithCancel(parent)
	go loop(ctx)
	var once sync.Once
	return func() { once.Do(cancel) }
}
