package lock

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a Locker backed by a session-level advisory lock. The lock is
// held on one pooled connection for the duration of the post.
type Postgres struct {
	pool    *pgxpool.Pool
	key     int64
	timeout time.Duration
}

func NewPostgres(pool *pgxpool.Pool, name string, timeout time.Duration) *Postgres {
	if name == "" {
		name = DefaultKey
	}
	return &Postgres{pool: pool, key: AdvisoryKey(name), timeout: timeout}
}

// AdvisoryKey maps a lock name to a stable advisory lock id.
func AdvisoryKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}

func (p *Postgres) Acquire(ctx context.Context) (func(), error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("advisory lock: acquire connection: %w", err)
	}

	err = poll(ctx, p.timeout, func(ctx context.Context) (bool, error) {
		var ok bool
		err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, p.key).Scan(&ok)
		return ok, err
	})
	if err != nil {
		conn.Release()
		return nil, fmt.Errorf("advisory lock %d: %w", p.key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, p.key); err != nil {
				// The session still holds the lock; drop the connection instead.
				conn.Conn().Close(ctx)
			}
			conn.Release()
		})
	}, nil
}
