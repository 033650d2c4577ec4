package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// DatabaseHealth summarizes the database for diagnostics.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	Migrations       []string
	IntegrityCheck   bool
	Sessions         map[SessionStatus]int
	Products         map[Platform]int
	Error            string
}

// CheckHealth returns diagnostic information about the database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path != ":memory:" {
		info, err := os.Stat(s.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return health, nil
			}
			return health, fmt.Errorf("stat database: %w", err)
		}
		if info.IsDir() {
			return health, fmt.Errorf("database path %q is a directory", s.path)
		}
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.Ping(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping database: %w", err)
	}
	health.DatabaseReadable = true

	var err error
	if health.Migrations, err = s.AppliedMigrations(connCtx); err != nil {
		health.Error = err.Error()
		return health, err
	}
	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	if health.Sessions, err = s.SessionStats(connCtx); err != nil {
		health.Error = err.Error()
		return health, err
	}
	if health.Products, err = s.CountProducts(connCtx); err != nil {
		health.Error = err.Error()
		return health, err
	}
	return health, nil
}
