package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// languageRepo implements LanguageRepository.
type languageRepo struct {
	db     Querier
	tables siteTables
}

func (r *languageRepo) ListActive(ctx context.Context) ([]Language, error) {
	defer observeDB(ctx, "languages.list_active")()

	q := fmt.Sprintf(`SELECT id, code, native_name, flag FROM %s WHERE active ORDER BY id`, r.tables.languages)
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list languages: %w", err)
	}
	langs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Language, error) {
		var l Language
		err := row.Scan(&l.ID, &l.Code, &l.NativeName, &l.Flag)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan languages: %w", err)
	}
	return langs, nil
}
