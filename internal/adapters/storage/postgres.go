package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// NewPostgresStorage connects to PostgreSQL through the pgx database/sql
// driver and applies the schema. Row locks on the portfolio serialize
// concurrent writers, so the pool can be wider than SQLite's.
func NewPostgresStorage(dsn string) (*SQLStorage, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage.NewPostgresStorage: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewPostgresStorage: ping: %w", err)
	}

	s := &SQLStorage{db: db, d: postgresDialect}
	if err := s.applySchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewPostgresStorage: %w", err)
	}
	return s, nil
}
