package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// translationRepo implements TranslationRepository.
type translationRepo struct {
	db     Querier
	tables siteTables
}

func (r *translationRepo) Links(ctx context.Context, elementType string, ids []int64) ([]LanguageLink, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	defer observeDB(ctx, "translations.links")()

	q := fmt.Sprintf(`SELECT t.element_id, t.trid, t.language_code
FROM %[1]s t
WHERE t.element_type = $1
  AND t.trid IN (SELECT s.trid FROM %[1]s s WHERE s.element_type = $1 AND s.element_id = ANY($2))
ORDER BY t.trid, t.language_code`, r.tables.translations)
	rows, err := r.db.Query(ctx, q, elementType, ids)
	if err != nil {
		return nil, fmt.Errorf("load translation links: %w", err)
	}
	links, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (LanguageLink, error) {
		var l LanguageLink
		err := row.Scan(&l.ElementID, &l.TRID, &l.Language)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan translation links: %w", err)
	}
	return links, nil
}
