package content

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/integreat/contentapi/internal/store"
)

// fakeStore serves every site repository from in-memory fixtures and evaluates composed queries
// the way the database would.
type fakeStore struct {
	posts      []store.ContentRow
	language   map[int64]string
	trid       map[int64]int64
	rules      map[int64]store.RecurrenceRuleRecord
	thumbnails map[int64]string
	meta       map[int64]map[string]string
	languages  []store.Language

	queries []store.ContentQuery
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		language:   map[int64]string{},
		trid:       map[int64]int64{},
		rules:      map[int64]store.RecurrenceRuleRecord{},
		thumbnails: map[int64]string{},
		meta:       map[int64]map[string]string{},
		languages: []store.Language{
			{ID: 1, Code: "de", NativeName: "Deutsch", Flag: "de.png"},
			{ID: 2, Code: "en", NativeName: "English", Flag: "en.png"},
			{ID: 3, Code: "ar", NativeName: "العربية", Flag: "ar.png"},
		},
	}
}

func (f *fakeStore) handle() *store.SiteHandle {
	return &store.SiteHandle{
		Site:         store.Site{ID: 2, Path: "/augsburg/", Public: true},
		Prefix:       "wp_2_",
		Posts:        f,
		Translations: f,
		Events:       f,
		Languages:    f,
	}
}

// put adds a post linked into translation group trid in language lang.
func (f *fakeStore) put(row store.ContentRow, lang string, trid int64) {
	f.posts = append(f.posts, row)
	if lang != "" {
		f.language[row.ID] = lang
		f.trid[row.ID] = trid
	}
}

func (f *fakeStore) List(ctx context.Context, q store.ContentQuery) ([]store.ContentRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.queries = append(f.queries, q)

	var (
		postType     string
		since        time.Time
		statuses     []string
		recurrenceID *int64
	)
	for _, pred := range q.Where {
		switch p := pred.(type) {
		case sq.Eq:
			if v, ok := p["posts.post_type"]; ok {
				postType = v.(string)
			}
			if v, ok := p["posts.post_status"]; ok {
				statuses = v.([]string)
			}
			if v, ok := p["em_events.recurrence_id"]; ok {
				id := v.(int64)
				recurrenceID = &id
			}
		case sq.GtOrEq:
			since = p["posts.post_modified_gmt"].(time.Time)
		}
	}

	var out []store.ContentRow
	for _, row := range f.posts {
		if row.Type != postType || row.ModifiedGMT.Before(since) || !slices.Contains(statuses, row.Status) {
			continue
		}
		if q.TranslationElement != 0 {
			if f.language[q.TranslationElement] != q.Language || q.TranslationType != TranslationType(store.TypeEventRecurring) {
				continue
			}
		} else if f.language[row.ID] != q.Language {
			continue
		}
		if recurrenceID != nil && (row.Event == nil || row.Event.RecurrenceID == nil || *row.Event.RecurrenceID != *recurrenceID) {
			continue
		}
		out = append(out, row)
	}
	slices.SortStableFunc(out, func(a, b store.ContentRow) int {
		if a.MenuOrder != b.MenuOrder {
			return a.MenuOrder - b.MenuOrder
		}
		return strings.Compare(a.Title, b.Title)
	})
	return out, nil
}

func (f *fakeStore) Tree(ctx context.Context, postTypes ...string) ([]store.TreeNode, error) {
	if f.err != nil {
		return nil, f.err
	}
	var nodes []store.TreeNode
	for _, row := range f.posts {
		if slices.Contains(postTypes, row.Type) {
			nodes = append(nodes, store.TreeNode{
				ID: row.ID, Parent: row.Parent, Status: row.Status, Slug: row.Slug, Type: row.Type, Language: f.language[row.ID],
			})
		}
	}
	return nodes, nil
}

func (f *fakeStore) GetByID(ctx context.Context, id int64) (*store.ContentRow, error) {
	for _, row := range f.posts {
		if row.ID == id {
			return &row, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) Meta(ctx context.Context, ids []int64, keys ...string) (map[int64]map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[int64]map[string]string{}
	for _, id := range ids {
		for _, key := range keys {
			if v, ok := f.meta[id][key]; ok {
				if out[id] == nil {
					out[id] = map[string]string{}
				}
				out[id][key] = v
			}
		}
	}
	return out, nil
}

func (f *fakeStore) Thumbnails(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := map[int64]string{}
	for _, id := range ids {
		if url, ok := f.thumbnails[id]; ok {
			out[id] = url
		}
	}
	return out, nil
}

func (f *fakeStore) Links(ctx context.Context, elementType string, ids []int64) ([]store.LanguageLink, error) {
	groups := map[int64]bool{}
	for _, id := range ids {
		if trid, ok := f.trid[id]; ok {
			groups[trid] = true
		}
	}
	var links []store.LanguageLink
	for _, row := range f.posts {
		trid, ok := f.trid[row.ID]
		if !ok || !groups[trid] || TranslationType(row.Type) != elementType {
			continue
		}
		links = append(links, store.LanguageLink{ElementID: row.ID, TRID: trid, Language: f.language[row.ID]})
	}
	return links, nil
}

func (f *fakeStore) CountOccurrences(ctx context.Context, recurrenceID int64) (int, error) {
	n := 0
	for _, row := range f.posts {
		if row.Event != nil && row.Event.RecurrenceID != nil && *row.Event.RecurrenceID == recurrenceID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) Rules(ctx context.Context, eventIDs []int64) (map[int64]store.RecurrenceRuleRecord, error) {
	out := map[int64]store.RecurrenceRuleRecord{}
	for _, id := range eventIDs {
		if rec, ok := f.rules[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

func (f *fakeStore) ListActive(ctx context.Context) ([]store.Language, error) {
	return f.languages, nil
}

// fakeSites opens in-memory sites by blog id and counts released handles.
type fakeSites struct {
	sites    map[int64]*fakeStore
	acquired int
	released int
	err      error
}

func (s *fakeSites) AcquireSiteByID(ctx context.Context, id int64) (*store.SiteHandle, error) {
	if s.err != nil {
		return nil, s.err
	}
	f, ok := s.sites[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	s.acquired++
	site := store.Site{ID: id, Path: fmt.Sprintf("/site-%d/", id), Public: true}
	h := store.NewSiteHandle(site, fmt.Sprintf("wp_%d_", id), nil, func() { s.released++ })
	h.Posts = f
	h.Translations = f
	h.Events = f
	h.Languages = f
	return h, nil
}

var errStoreDown = errors.New("dial tcp: connection refused")

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T {
	return &v
}
