package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"

	"github.com/notifhub/notify-delivery-service/internal/domain/model"
)

// Interface guard
var _ Store = (*Postgres)(nil)

// querier is the subset of pgxpool.Pool the store reads through, so the
// fallback logic can treat both pools uniformly.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres keeps separate read and write pools. Reads go through the read
// pool behind a circuit breaker; on failure (or an open breaker) they fall
// back to the write pool once. Writes always use the write pool.
type Postgres struct {
	read    *pgxpool.Pool
	write   *pgxpool.Pool
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

type PoolConfig struct {
	DSN           string
	ReadPoolSize  int32
	WritePoolSize int32
}

func newPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	poolCfg.MaxConns = maxConns
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	return pool, nil
}

func NewPostgres(ctx context.Context, cfg PoolConfig, logger *slog.Logger) (*Postgres, error) {
	if cfg.ReadPoolSize <= 0 {
		cfg.ReadPoolSize = 15
	}
	if cfg.WritePoolSize <= 0 {
		cfg.WritePoolSize = 5
	}

	read, err := newPool(ctx, cfg.DSN, cfg.ReadPoolSize)
	if err != nil {
		return nil, err
	}
	write, err := newPool(ctx, cfg.DSN, cfg.WritePoolSize)
	if err != nil {
		read.Close()
		return nil, err
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "notifications-read-pool",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Postgres{
		read:    read,
		write:   write,
		breaker: breaker,
		logger:  logger.With(slog.String("component", "store")),
	}, nil
}

func (p *Postgres) Close() {
	p.read.Close()
	p.write.Close()
}

// readQuery runs fn against the read pool behind the breaker and falls back
// to the write pool exactly once when the read side fails.
func (p *Postgres) readQuery(ctx context.Context, fn func(q querier) (any, error)) (any, error) {
	v, err := p.breaker.Execute(func() (any, error) { return fn(p.read) })
	if err == nil {
		return v, nil
	}
	p.logger.Warn("read pool query failed, retrying on write pool", slog.Any("err", err))
	return fn(p.write)
}

func (p *Postgres) ListPending(ctx context.Context) ([]model.PendingRow, error) {
	v, err := p.readQuery(ctx, func(q querier) (any, error) {
		rows, err := q.Query(ctx, `
			SELECT id, user_id, COALESCE(event, 'notification'), message,
			       COALESCE(transport, 'websocket'), created_at
			FROM notifications
			WHERE status = 'pending'
			ORDER BY id`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []model.PendingRow
		for rows.Next() {
			var r model.PendingRow
			var transport string
			if err := rows.Scan(&r.ID, &r.UserID, &r.Event, &r.Message, &transport, &r.CreatedAt); err != nil {
				return nil, err
			}
			r.Transport = model.Transport(transport)
			out = append(out, r)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.PendingRow), nil
}

func (p *Postgres) MarkSent(ctx context.Context, id int64) error {
	_, err := p.write.Exec(ctx,
		`UPDATE notifications SET status = 'sent' WHERE id = $1`, id)
	return err
}

func (p *Postgres) MarkRead(ctx context.Context, userID string, notificationID int64) error {
	_, err := p.write.Exec(ctx, `
		UPDATE notifications
		SET read_status = 'read', read_at = now()
		WHERE id = $1 AND user_id = $2`,
		notificationID, userID)
	return err
}

func (p *Postgres) UnreadNotificationCounts(ctx context.Context, userID string) (int64, int64, error) {
	type counts struct{ system, personal int64 }
	v, err := p.readQuery(ctx, func(q querier) (any, error) {
		rows, err := q.Query(ctx, `
			SELECT COALESCE(category, 'personal'), COUNT(*)
			FROM notifications
			WHERE user_id = $1 AND read_status = 'unread'
			GROUP BY 1`, userID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var c counts
		for rows.Next() {
			var category string
			var n int64
			if err := rows.Scan(&category, &n); err != nil {
				return nil, err
			}
			if category == "system" {
				c.system += n
			} else {
				c.personal += n
			}
		}
		return c, rows.Err()
	})
	if err != nil {
		return 0, 0, err
	}
	c := v.(counts)
	return c.system, c.personal, nil
}

func (p *Postgres) CountUnreadNotices(ctx context.Context, userID string) (int64, error) {
	v, err := p.readQuery(ctx, func(q querier) (any, error) {
		var n int64
		err := q.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM notices
			WHERE status = 'published'
			  AND id NOT IN (SELECT notice_id FROM notice_reads WHERE user_id = $1)`,
			userID).Scan(&n)
		return n, err
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (p *Postgres) CountAnnouncements(ctx context.Context) (int64, error) {
	v, err := p.readQuery(ctx, func(q querier) (any, error) {
		var n int64
		err := q.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM announcements
			WHERE active AND (expires_at IS NULL OR expires_at > now())`).Scan(&n)
		return n, err
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}
