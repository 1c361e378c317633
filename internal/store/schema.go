package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ErrSchemaIncomplete is returned by VerifySchema when required tables are absent.
var ErrSchemaIncomplete = errors.New("database schema incomplete")

// RowQuerier represents the subset of pgxpool.Pool used by the schema check.
//
// This allows tests to supply a lightweight mock implementation.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// VerifySchema checks that every named table exists. The schema is owned by the CMS, so a missing
// table is reported and never created.
func VerifySchema(ctx context.Context, db RowQuerier, tables []string) error {
	var missing []string
	for _, name := range tables {
		exists, err := tableExists(ctx, db, name)
		if err != nil {
			return err
		}
		if !exists {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrSchemaIncomplete, strings.Join(missing, ", "))
	}
	return nil
}

func tableExists(ctx context.Context, db RowQuerier, name string) (bool, error) {
	const q = `SELECT EXISTS (
        SELECT 1 FROM information_schema.tables
        WHERE table_schema = current_schema() AND table_name = $1
)`
	var exists bool
	if err := db.QueryRow(ctx, q, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return exists, nil
}
