package store

import (
	"context"

	sq "github.com/Masterminds/squirrel"
)

// SiteRepository reads the network's site registry.
type SiteRepository interface {
	GetByPath(ctx context.Context, path string) (*Site, error)
	GetByID(ctx context.Context, id int64) (*Site, error)
	List(ctx context.Context) ([]Site, error)
}

// ContentQuery is a composed selection over a site's posts.
type ContentQuery struct {
	Language string
	// TranslationType and TranslationElement select the translation row items are joined on.
	// A zero TranslationElement joins every post on its own translation row.
	TranslationType    string
	TranslationElement int64
	Where              []sq.Sqlizer
	OrderBy            []string
}

// PostRepository reads posts of a single site.
type PostRepository interface {
	List(ctx context.Context, q ContentQuery) ([]ContentRow, error)
	Tree(ctx context.Context, postTypes ...string) ([]TreeNode, error)
	GetByID(ctx context.Context, id int64) (*ContentRow, error)
	Thumbnails(ctx context.Context, ids []int64) (map[int64]string, error)
	Meta(ctx context.Context, ids []int64, keys ...string) (map[int64]map[string]string, error)
}

// TranslationRepository resolves translation groups.
type TranslationRepository interface {
	// Links returns every link of every translation group containing one of ids.
	Links(ctx context.Context, elementType string, ids []int64) ([]LanguageLink, error)
}

// EventRepository reads recurrence data of a site's events.
type EventRepository interface {
	CountOccurrences(ctx context.Context, recurrenceID int64) (int, error)
	Rules(ctx context.Context, eventIDs []int64) (map[int64]RecurrenceRuleRecord, error)
}

// LanguageRepository lists a site's languages.
type LanguageRepository interface {
	ListActive(ctx context.Context) ([]Language, error)
}
