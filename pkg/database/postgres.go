package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Abraxas-365/chatflow/pkg/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const connectTimeout = 5 * time.Second

// Open connects to the flow store selected by DB_DRIVER.
func Open(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := NewSQLiteDB(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if cfg.SQLitePath != ":memory:" {
			applyPool(db, cfg)
		}
		return db, nil
	case "postgres", "":
		return NewPostgresDB(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewPostgresDB opens the flows database and checks it answers a ping.
func NewPostgresDB(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres %s/%s: %w", cfg.Host, cfg.DBName, err)
	}

	applyPool(db, cfg)
	return db, nil
}

func applyPool(db *sqlx.DB, cfg config.DatabaseConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

func CloseDB(db *sqlx.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}
