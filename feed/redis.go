package feed

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// Redis subscribes to a pub/sub channel carrying encoded changes and
// resubscribes whenever the channel closes.
type Redis struct {
	client  *redis.Client
	channel string
	table   string
	logger  log.FieldLogger
	retry   time.Duration
}

func NewRedis(client *redis.Client, channel, table string, logger log.FieldLogger) *Redis {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Redis{client: client, channel: channel, table: table, logger: logger, retry: time.Second}
}

func (r *Redis) Subscribe(ctx context.Context, h Handler) (Unsubscribe, error) {
	// Confirm the first subscription so configuration errors surface here.
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	stop := run(ctx, func(ctx context.Context) {
		for {
			r.consume(ctx, sub, h)
			_ = sub.Close()
			if ctx.Err() != nil {
				return
			}
			r.logger.WithField("channel", r.channel).Error("pubsub channel closed, reconnecting")
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.retry):
			}
			sub = r.client.Subscribe(ctx, r.channel)
		}
	})
	return stop, nil
}

func (r *Redis) consume(ctx context.Context, sub *redis.PubSub, h Handler) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			ev, err := Decode([]byte(msg.Payload), r.table)
			if err != nil {
				if !errors.Is(err, ErrOtherTable) {
					r.logger.WithError(err).Error("unable to parse change")
				}
				continue
			}
			h(ev)
		}
	}
}

// Publish encodes ev onto the channel.
func (r *Redis) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}
