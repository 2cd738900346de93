// Package migrate brings the journal database up to the current schema.
// Migrations are embedded SQL files named NNNN_description.sql, applied in
// version order; the applied version is tracked in sqlite's user_version
// pragma.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var journalSchema embed.FS

type migration struct {
	version int
	name    string
	ddl     string
}

func loadJournalMigrations() ([]migration, error) {
	names, err := fs.Glob(journalSchema, "sql/*.sql")
	if err != nil {
		return nil, err
	}
	out := make([]migration, 0, len(names))
	for _, name := range names {
		base := strings.TrimPrefix(name, "sql/")
		num, _, ok := strings.Cut(base, "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: want NNNN_description.sql", base)
		}
		v, err := strconv.Atoi(num)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("migration %s: bad version %q", base, num)
		}
		ddl, err := fs.ReadFile(journalSchema, name)
		if err != nil {
			return nil, err
		}
		out = append(out, migration{version: v, name: base, ddl: string(ddl)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// Version reports the journal schema version of an open database. A fresh
// database reports 0.
func Version(db *sql.DB) (int, error) {
	var v int
	err := db.QueryRow(`PRAGMA user_version`).Scan(&v)
	return v, err
}

// Migrate applies every pending journal migration in one transaction. Calling
// it on an up-to-date database is a no-op.
func Migrate(db *sql.DB) error {
	migrations, err := loadJournalMigrations()
	if err != nil {
		return err
	}
	current, err := Version(db)
	if err != nil {
		return fmt.Errorf("read journal schema version: %w", err)
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := tx.Exec(m.ddl); err != nil {
			return fmt.Errorf("apply %s: %w", m.name, err)
		}
		// user_version takes no bind parameters
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			return fmt.Errorf("record version for %s: %w", m.name, err)
		}
		current = m.version
		slog.Info("journal schema migrated", "version", m.version, "migration", m.name)
	}
	return tx.Commit()
}
