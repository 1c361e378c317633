package content

import (
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/integreat/contentapi/internal/store"
)

var contentOrder = []string{
	"posts.menu_order ASC",
	`posts.post_title COLLATE "C" ASC`,
}

// TranslationType is the element type under which posts of postType are linked.
func TranslationType(postType string) string {
	return "post_" + postType
}

// ComposeModified selects published or trashed posts of postType in language modified at or after since.
func ComposeModified(postType, language string, since time.Time) store.ContentQuery {
	return store.ContentQuery{
		Language:        language,
		TranslationType: TranslationType(postType),
		Where: []sq.Sqlizer{
			sq.Eq{"posts.post_type": postType},
			sq.GtOrEq{"posts.post_modified_gmt": since.UTC()},
			sq.Eq{"posts.post_status": []string{store.StatusPublish, store.StatusTrash}},
		},
		OrderBy: contentOrder,
	}
}

// ComposeOccurrences selects the materialized occurrences of a recurring template. Occurrences have no
// translation rows of their own, so they are joined on the template's entry.
func ComposeOccurrences(templateID, templateEventID int64, language string, since time.Time) store.ContentQuery {
	q := ComposeModified(store.TypeEvent, language, since)
	q.TranslationType = TranslationType(store.TypeEventRecurring)
	q.TranslationElement = templateID
	q.Where = append(q.Where, sq.Eq{"em_events.recurrence_id": templateEventID})
	return q
}
