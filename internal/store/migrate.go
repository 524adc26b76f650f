package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// migrate brings the database up to SchemaVersion. Missing collections and
// index columns are created and index columns are backfilled from stored
// documents; existing data is kept.
func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.db.GetContext(ctx, &version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, SchemaVersion)
	}
	if version == SchemaVersion {
		return nil
	}

	s.logger.Info("Migrating local store",
		zap.Int("from_version", version),
		zap.Int("to_version", SchemaVersion),
	)

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, c := range Schema {
			if err := migrateCollection(ctx, tx, c); err != nil {
				return fmt.Errorf("migrate %s: %w", c.Name, err)
			}
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion))
		return err
	})
}

func migrateCollection(ctx context.Context, tx *sqlx.Tx, c Collection) error {
	pk := "pk NOT NULL PRIMARY KEY"
	if c.AutoIncrement {
		pk = "pk INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s, doc TEXT NOT NULL)", quote(c.Name), pk)
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return err
	}

	var existing []string
	if err := tx.SelectContext(ctx, &existing, "SELECT name FROM pragma_table_info(?)", c.Name); err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}

	for _, ix := range c.Indexes {
		col := "ix_" + ix.Name
		if !have[col] {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quote(c.Name), quote(col))); err != nil {
				return err
			}
		}
		backfill := fmt.Sprintf("UPDATE %s SET %s = json_extract(doc, '$.%s') WHERE %s IS NULL",
			quote(c.Name), quote(col), ix.Field, quote(col))
		if _, err := tx.ExecContext(ctx, backfill); err != nil {
			return err
		}

		unique := ""
		if ix.Unique {
			unique = "UNIQUE "
		}
		createIdx := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
			unique, quote(c.Name+"_"+ix.Name), quote(c.Name), quote(col))
		if _, err := tx.ExecContext(ctx, createIdx); err != nil {
			return err
		}
	}
	return nil
}
