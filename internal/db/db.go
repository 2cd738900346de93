// Package db opens the sqlite database backing the run journal. The file
// lives in the workspace's .badgeforge directory next to config.yml.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const journalFile = "journal.db"

type Config struct {
	Workspace string
}

func journalPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".badgeforge", journalFile)
}

// EnsureWorkspace creates the workspace dot-dir if missing.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(workspace, ".badgeforge")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Open opens the journal database, creating the workspace directory and the
// database file as needed. Foreign keys are enforced so artifact rows cannot
// outlive their run; the busy timeout covers a CLI invocation racing a
// running serve process.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		journalPath(cfg.Workspace))
	return sql.Open("sqlite", dsn)
}
