package repository

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

// dataSource returns the database/sql driver name and DSN for cfg.
func dataSource(cfg domain.RepositoryConfig) (driver, dsn string, err error) {
	switch cfg.Driver {
	case driverSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = "./chainflow.db"
		}
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", "", fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return driverSQLite, "file:" + path +
			"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", nil

	case driverPostgres:
		host := cmp.Or(cfg.PostgresHost, "localhost")
		port := cfg.PostgresPort
		if port == 0 {
			port = 5432
		}
		return driverPostgres, fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			host, port, cfg.PostgresUser, cfg.PostgresPassword,
			cmp.Or(cfg.PostgresDB, "chainflow"),
			cmp.Or(cfg.PostgresSSLMode, "disable"),
		), nil

	default:
		return "", "", fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
}

func openDB(cfg domain.RepositoryConfig) (*sql.DB, string, error) {
	driver, dsn, err := dataSource(cfg)
	if err != nil {
		return nil, "", err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, driver, nil
}
