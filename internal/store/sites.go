package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const siteColumns = `blog_id, domain, path, name, public, archived, deleted, spam`

// siteRepo implements SiteRepository.
type siteRepo struct {
	db    Querier
	table string
}

func (r *siteRepo) GetByPath(ctx context.Context, path string) (*Site, error) {
	defer observeDB(ctx, "sites.get_by_path")()

	q := fmt.Sprintf(`SELECT %s FROM %s WHERE path = $1`, siteColumns, r.table)
	var s Site
	err := r.db.QueryRow(ctx, q, path).Scan(&s.ID, &s.Domain, &s.Path, &s.Name, &s.Public, &s.Archived, &s.Deleted, &s.Spam)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get site %s: %w", path, err)
	}
	return &s, nil
}

func (r *siteRepo) GetByID(ctx context.Context, id int64) (*Site, error) {
	defer observeDB(ctx, "sites.get_by_id")()

	q := fmt.Sprintf(`SELECT %s FROM %s WHERE blog_id = $1`, siteColumns, r.table)
	var s Site
	err := r.db.QueryRow(ctx, q, id).Scan(&s.ID, &s.Domain, &s.Path, &s.Name, &s.Public, &s.Archived, &s.Deleted, &s.Spam)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get site %d: %w", id, err)
	}
	return &s, nil
}

func (r *siteRepo) List(ctx context.Context) ([]Site, error) {
	defer observeDB(ctx, "sites.list")()

	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s ORDER BY blog_id`, siteColumns, r.table))
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	sites, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Site, error) {
		var s Site
		err := row.Scan(&s.ID, &s.Domain, &s.Path, &s.Name, &s.Public, &s.Archived, &s.Deleted, &s.Spam)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan sites: %w", err)
	}
	return sites, nil
}
