package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/docsift/internal/logging"
)

//go:embed scripts/initdb.sql
var bootstrapFS embed.FS

const schemaVersion = 1

// EnsureBootstrapped runs initdb.sql unless docsift_meta already records the
// current schema version.
func EnsureBootstrapped(ctx context.Context, db *sql.DB, embedDim int) error {
	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	var exists bool
	err := db.QueryRowContext(ctxBoot, `
		SELECT EXISTS (
		  SELECT 1 FROM information_schema.tables
		  WHERE table_name = 'docsift_meta'
		)`).
		Scan(&exists)
	if err != nil {
		return fmt.Errorf("meta table check failed: %w", err)
	}
	if !exists {
		return runBootstrap(ctxBoot, db, embedDim)
	}

	var hasVersion bool
	if err := db.QueryRowContext(ctxBoot, `SELECT EXISTS (SELECT 1 FROM docsift_meta WHERE version = $1)`, schemaVersion).Scan(&hasVersion); err != nil {
		return fmt.Errorf("meta version check failed: %w", err)
	}
	if !hasVersion {
		return runBootstrap(ctxBoot, db, embedDim)
	}

	logging.FromContext(ctx).Debug("schema already bootstrapped", zap.Int("version", schemaVersion))
	return nil
}

// bootstrapSQL renders initdb.sql for the given embedding dimension.
func bootstrapSQL(embedDim int) (string, error) {
	if embedDim <= 0 {
		return "", fmt.Errorf("invalid embedding dimension %d", embedDim)
	}
	sqlBytes, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return "", fmt.Errorf("read initdb.sql: %w", err)
	}
	return strings.ReplaceAll(string(sqlBytes), "{{EMBED_DIM}}", strconv.Itoa(embedDim)), nil
}

func runBootstrap(ctx context.Context, db *sql.DB, embedDim int) error {
	script, err := bootstrapSQL(embedDim)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, script); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	logging.FromContext(ctx).Info("schema bootstrapped", zap.Int("version", schemaVersion), zap.Int("embed_dim", embedDim))
	return nil
}
