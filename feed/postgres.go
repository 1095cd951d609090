package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// Postgres listens on a NOTIFY channel fed by the table's change trigger.
// A dedicated pool connection is held while subscribed.
type Postgres struct {
	pool    *pgxpool.Pool
	channel string
	table   string
	logger  log.FieldLogger
	retry   time.Duration
}

func NewPostgres(pool *pgxpool.Pool, channel, table string, logger log.FieldLogger) *Postgres {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Postgres{pool: pool, channel: channel, table: table, logger: logger, retry: time.Second}
}

func (p *Postgres) Subscribe(ctx context.Context, h Handler) (Unsubscribe, error) {
	conn, err := p.listen(ctx)
	if err != nil {
		return nil, err
	}
	stop := run(ctx, func(ctx context.Context) {
		for {
			err := p.consume(ctx, conn, h)
			conn.Release()
			if ctx.Err() != nil {
				return
			}
			p.logger.WithError(err).WithField("channel", p.channel).Error("listen connection lost, reconnecting")
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.retry):
				}
				if conn, err = p.listen(ctx); err == nil {
					break
				}
				p.logger.WithError(err).Error("relisten failed")
			}
		}
	})
	return stop, nil
}

func (p *Postgres) listen(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{p.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", p.channel, err)
	}
	return conn, nil
}

func (p *Postgres) consume(ctx context.Context, conn *pgxpool.Conn, h Handler) error {
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		ev, err := Decode([]byte(n.Payload), p.table)
		if err != nil {
			if !errors.Is(err, ErrOtherTable) {
				p.logger.WithError(err).Error("unable to parse change")
			}
			continue
		}
		h(ev)
	}
}
