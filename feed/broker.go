package feed

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

const subscriberBuffer = 64

// Broker fans one upstream feed out to many in-process subscribers. Each
// subscriber gets its own delivery goroutine so a slow board never holds
// up the others; events for a full subscriber are dropped and the drop is
// logged and the board's debounced reload repairs the gap.
type Broker struct {
	logger log.FieldLogger

	mu   sync.Mutex
	subs map[*brokerSub]struct{}
}

type brokerSub struct {
	ch chan domain.ChangeEvent
}

func NewBroker(logger log.FieldLogger) *Broker {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Broker{logger: logger, subs: make(map[*brokerSub]struct{})}
}

// Subscribe registers h until the returned handle is called or ctx ends.
func (b *Broker) Subscribe(ctx context.Context, h Handler) (Unsubscribe, error) {
	sub := &brokerSub{ch: make(chan domain.ChangeEvent, subscriberBuffer)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	stop := run(ctx, func(ctx context.Context) {
		defer b.remove(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-sub.ch:
				if ctx.Err() != nil {
					return
				}
				h(ev)
			}
		}
	})
	return stop, nil
}

func (b *Broker) remove(sub *brokerSub) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// Publish hands ev to every subscriber without blocking.
func (b *Broker) Publish(ev domain.ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			b.logger.WithField("task", ev.TaskID()).Warn("feed subscriber buffer full, dropping change")
		}
	}
}

// Subscribers reports how many subscribers are registered.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Pipe forwards every change from src into the broker until ctx ends.
func (b *Broker) Pipe(ctx context.Context, src Subscriber) (Unsubscribe, error) {
	return src.Subscribe(ctx, b.Publish)
}
