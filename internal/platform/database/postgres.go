package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Pool sizes the connection pool. Booking requests hold a connection only for
// one conditional car update plus an insert, so a small pool suffices.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// DefaultPool is used by NewPostgres.
var DefaultPool = Pool{
	MaxOpen:     20,
	MaxIdle:     5,
	MaxLifetime: 30 * time.Minute,
	MaxIdleTime: 5 * time.Minute,
}

const connectTimeout = 10 * time.Second

// NewPostgres connects with DefaultPool.
func NewPostgres(ctx context.Context, url string) (*sqlx.DB, error) {
	return Open(ctx, url, DefaultPool)
}

// Open connects to url and verifies the connection within connectTimeout.
func Open(ctx context.Context, url string, pool Pool) (*sqlx.DB, error) {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(connectCtx, "postgres", url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetConnMaxLifetime(pool.MaxLifetime)
	db.SetConnMaxIdleTime(pool.MaxIdleTime)

	return db, nil
}
