package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

var contentColumns = []string{
	"posts.id",
	"posts.post_title",
	"posts.post_name",
	"posts.post_type",
	"posts.post_status",
	"posts.post_modified_gmt",
	"posts.post_excerpt",
	"posts.post_content",
	"posts.post_parent",
	"posts.menu_order",
	"posts.guid",
	"em_events.event_id",
	"em_events.recurrence_id",
	"em_events.event_start_date",
	"em_events.event_end_date",
	"to_char(em_events.event_start_time, 'HH24:MI')",
	"to_char(em_events.event_end_time, 'HH24:MI')",
	"em_events.event_all_day",
}

// postRepo implements PostRepository.
type postRepo struct {
	db     Querier
	tables siteTables
}

func (r *postRepo) selectContent() sq.SelectBuilder {
	return sq.Select(contentColumns...).
		From(r.tables.posts + " posts").
		LeftJoin(r.tables.events + " em_events ON em_events.post_id = posts.id").
		PlaceholderFormat(sq.Dollar)
}

func (r *postRepo) listQuery(q ContentQuery) sq.SelectBuilder {
	b := r.selectContent()
	if q.TranslationElement != 0 {
		b = b.Join(r.tables.translations+" translations ON translations.element_type = ? AND translations.element_id = ? AND translations.language_code = ?",
			q.TranslationType, q.TranslationElement, q.Language)
	} else {
		b = b.Join(r.tables.translations+" translations ON translations.element_id = posts.id AND translations.element_type = ? AND translations.language_code = ?",
			q.TranslationType, q.Language)
	}
	for _, pred := range q.Where {
		b = b.Where(pred)
	}
	if len(q.OrderBy) > 0 {
		b = b.OrderBy(q.OrderBy...)
	}
	return b
}

func (r *postRepo) List(ctx context.Context, q ContentQuery) ([]ContentRow, error) {
	defer observeDB(ctx, "posts.list")()

	sql, args, err := r.listQuery(q).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build content query: %w", err)
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanContentRow)
	if err != nil {
		return nil, fmt.Errorf("scan content: %w", err)
	}
	return items, nil
}

func (r *postRepo) GetByID(ctx context.Context, id int64) (*ContentRow, error) {
	defer observeDB(ctx, "posts.get_by_id")()

	sql, args, err := r.selectContent().Where(sq.Eq{"posts.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build post query: %w", err)
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("get post %d: %w", id, err)
	}
	item, err := pgx.CollectOneRow(rows, scanContentRow)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan post %d: %w", id, err)
	}
	return &item, nil
}

func (r *postRepo) Tree(ctx context.Context, postTypes ...string) ([]TreeNode, error) {
	defer observeDB(ctx, "posts.tree")()

	q := fmt.Sprintf(`SELECT posts.id, posts.post_parent, posts.post_status, posts.post_name, posts.post_type,
	COALESCE(translations.language_code, '')
FROM %s posts
LEFT JOIN %s translations ON translations.element_id = posts.id AND translations.element_type = 'post_' || posts.post_type
WHERE posts.post_type = ANY($1)`, r.tables.posts, r.tables.translations)
	rows, err := r.db.Query(ctx, q, postTypes)
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}
	nodes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TreeNode, error) {
		var n TreeNode
		err := row.Scan(&n.ID, &n.Parent, &n.Status, &n.Slug, &n.Type, &n.Language)
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan tree: %w", err)
	}
	return nodes, nil
}

// Meta returns the first value of each requested key per post. Posts without any of the keys are absent.
func (r *postRepo) Meta(ctx context.Context, ids []int64, keys ...string) (map[int64]map[string]string, error) {
	out := make(map[int64]map[string]string)
	if len(ids) == 0 || len(keys) == 0 {
		return out, nil
	}
	defer observeDB(ctx, "posts.meta")()

	q := fmt.Sprintf(`SELECT post_id, meta_key, COALESCE(meta_value, '') FROM %s
WHERE post_id = ANY($1) AND meta_key = ANY($2)
ORDER BY meta_id`, r.tables.postmeta)
	rows, err := r.db.Query(ctx, q, ids, keys)
	if err != nil {
		return nil, fmt.Errorf("load post meta: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			postID     int64
			key, value string
		)
		if err := rows.Scan(&postID, &key, &value); err != nil {
			return nil, fmt.Errorf("scan post meta: %w", err)
		}
		if out[postID] == nil {
			out[postID] = make(map[string]string)
		}
		if _, seen := out[postID][key]; !seen {
			out[postID][key] = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load post meta: %w", err)
	}
	return out, nil
}

func (r *postRepo) Thumbnails(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string)
	if len(ids) == 0 {
		return out, nil
	}
	defer observeDB(ctx, "posts.thumbnails")()

	q := fmt.Sprintf(`SELECT meta.post_id, media.guid
FROM %s meta
JOIN %s media ON media.id = CASE WHEN meta.meta_value ~ '^[0-9]+$' THEN meta.meta_value::bigint END
WHERE meta.meta_key = '_thumbnail_id' AND meta.post_id = ANY($1)`, r.tables.postmeta, r.tables.posts)
	rows, err := r.db.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("load thumbnails: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			postID int64
			url    string
		)
		if err := rows.Scan(&postID, &url); err != nil {
			return nil, fmt.Errorf("scan thumbnail: %w", err)
		}
		out[postID] = url
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load thumbnails: %w", err)
	}
	return out, nil
}

func scanContentRow(row pgx.CollectableRow) (ContentRow, error) {
	var (
		c                  ContentRow
		eventID            *int64
		recurrenceID       *int64
		startDate, endDate *time.Time
		startTime, endTime *string
		allDay             *bool
	)
	err := row.Scan(&c.ID, &c.Title, &c.Slug, &c.Type, &c.Status, &c.ModifiedGMT, &c.Excerpt, &c.Content,
		&c.Parent, &c.MenuOrder, &c.GUID,
		&eventID, &recurrenceID, &startDate, &endDate, &startTime, &endTime, &allDay)
	if err != nil {
		return c, err
	}
	c.ModifiedGMT = c.ModifiedGMT.UTC()
	if eventID != nil {
		c.Event = &EventRecord{
			EventID:      *eventID,
			RecurrenceID: recurrenceID,
			StartDate:    startDate,
			EndDate:      endDate,
			StartTime:    deref(startTime),
			EndTime:      deref(endTime),
			AllDay:       allDay != nil && *allDay,
		}
	}
	return c, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
