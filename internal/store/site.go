package store

// SiteHandle scopes repositories to the tables of one site for the duration of a request.
type SiteHandle struct {
	Site   Site
	Prefix string

	Posts        PostRepository
	Translations TranslationRepository
	Events       EventRepository
	Languages    LanguageRepository

	release func()
}

// NewSiteHandle binds the site repositories to db. release is called once by Release.
func NewSiteHandle(site Site, prefix string, db Querier, release func()) *SiteHandle {
	t := tablesFor(prefix)
	return &SiteHandle{
		Site:         site,
		Prefix:       prefix,
		Posts:        &postRepo{db: db, tables: t},
		Translations: &translationRepo{db: db, tables: t},
		Events:       &eventRepo{db: db, tables: t},
		Languages:    &languageRepo{db: db, tables: t},
		release:      release,
	}
}

// Release returns the handle's connection to the pool. It is safe to call more than once.
func (h *SiteHandle) Release() {
	if h == nil || h.release == nil {
		return
	}
	h.release()
	h.release = nil
}

type siteTables struct {
	posts                string
	postmeta             string
	translations         string
	languages            string
	events               string
	recurrenceDays       string
	recurrenceExceptions string
}

func tablesFor(prefix string) siteTables {
	return siteTables{
		posts:                prefix + "posts",
		postmeta:             prefix + "postmeta",
		translations:         prefix + "icl_translations",
		languages:            prefix + "icl_languages",
		events:               prefix + "em_events",
		recurrenceDays:       prefix + "em_recurrence_days",
		recurrenceExceptions: prefix + "em_recurrence_exceptions",
	}
}

// SiteTables lists the tables every site needs.
func SiteTables(prefix string) []string {
	t := tablesFor(prefix)
	return []string{t.posts, t.postmeta, t.translations, t.languages, t.events, t.recurrenceDays, t.recurrenceExceptions}
}

// NetworkTables lists the tables shared by the whole network.
func NetworkTables(prefix string) []string {
	return []string{prefix + "blogs"}
}
