package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	openAttempts   = 5
	openRetryDelay = 2 * time.Second
)

// Open connects through the pgx stdlib driver and retries the first ping
// until the server answers.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(25)

	for attempt := 1; ; attempt++ {
		err = db.PingContext(ctx)
		if err == nil {
			return db, nil
		}
		if attempt == openAttempts {
			break
		}
		log.Printf("store: database not ready (attempt %d/%d): %v", attempt, openAttempts, err)
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("ping db: %w", ctx.Err())
		case <-time.After(openRetryDelay):
		}
	}
	_ = db.Close()
	return nil, fmt.Errorf("ping db: %w", err)
}
