package content

import (
	"strings"
	"time"

	"github.com/integreat/contentapi/internal/store"
)

// Item is the public representation of one content item.
type Item struct {
	ID                    int64             `json:"id"`
	Permalink             Permalink         `json:"permalink"`
	Title                 string            `json:"title"`
	Type                  string            `json:"type"`
	Status                string            `json:"status"`
	ModifiedGMT           string            `json:"modified_gmt"`
	Excerpt               string            `json:"excerpt"`
	Content               string            `json:"content"`
	Parent                int64             `json:"parent"`
	Order                 int               `json:"order"`
	AvailableLanguageURLs map[string]string `json:"available_language_urls"`
	AvailableLanguages    map[string]int64  `json:"available_languages"`
	Thumbnail             *string           `json:"thumbnail"`
	Event                 *EventInfo        `json:"event,omitempty"`
}

type Permalink struct {
	URL          string `json:"url"`
	URLSite      string `json:"url_site"`
	URLPage      string `json:"url_page"`
	URLPageID    string `json:"url_page_id"`
	URLDate1Name string `json:"url_date_1_name"`
	URLDate2Name string `json:"url_date_2_name"`
}

type EventInfo struct {
	ID           int64  `json:"id"`
	RecurrenceID *int64 `json:"recurrence_id"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	AllDay       bool   `json:"all_day"`
}

const modifiedLayout = "2006-01-02 15:04:05"

// URLBuilder derives public URLs from the network base URL.
type URLBuilder struct {
	BaseURL  string
	Location *time.Location
}

// SiteURL is the base URL followed by the site path without a trailing slash.
func (u URLBuilder) SiteURL(site store.Site) string {
	return strings.TrimRight(u.BaseURL, "/") + strings.TrimRight(site.Path, "/")
}

// ItemURL is the language-prefixed URL of a node. Events live below /events/.
func (u URLBuilder) ItemURL(siteURL, language string, node store.TreeNode, path string) string {
	if node.Type == store.TypeEvent || node.Type == store.TypeEventRecurring {
		return siteURL + "/" + language + "/events/" + node.Slug + "/"
	}
	return siteURL + "/" + language + "/" + path + "/"
}

// Permalink builds the URL variants of row. Dates are rendered in the site time zone.
func (u URLBuilder) Permalink(siteURL, language string, row store.ContentRow, path string) Permalink {
	loc := u.Location
	if loc == nil {
		loc = time.UTC
	}
	local := row.ModifiedGMT.In(loc)
	node := store.TreeNode{ID: row.ID, Parent: row.Parent, Status: row.Status, Slug: row.Slug, Type: row.Type}
	return Permalink{
		URL:          u.ItemURL(siteURL, language, node, path),
		URLSite:      siteURL,
		URLPage:      path,
		URLPageID:    row.GUID,
		URLDate1Name: siteURL + "/" + local.Format("2006/01/02") + "/" + path,
		URLDate2Name: siteURL + "/" + local.Format("2006/01") + "/" + path,
	}
}

// languageIndex maps translation entries to their translation groups.
type languageIndex struct {
	trids  map[linkKey]int64
	groups map[int64][]store.LanguageLink
}

type linkKey struct {
	elementType string
	elementID   int64
}

func newLanguageIndex() *languageIndex {
	return &languageIndex{trids: make(map[linkKey]int64), groups: make(map[int64][]store.LanguageLink)}
}

func (idx *languageIndex) add(elementType string, links []store.LanguageLink) {
	for _, l := range links {
		key := linkKey{elementType: elementType, elementID: l.ElementID}
		if _, dup := idx.trids[key]; dup {
			continue
		}
		idx.trids[key] = l.TRID
		idx.groups[l.TRID] = append(idx.groups[l.TRID], l)
	}
}

func (idx *languageIndex) group(elementType string, elementID int64) []store.LanguageLink {
	trid, ok := idx.trids[linkKey{elementType: elementType, elementID: elementID}]
	if !ok {
		return nil
	}
	return idx.groups[trid]
}

// projector holds everything needed to render the entries of one batch.
type projector struct {
	urls       URLBuilder
	siteURL    string
	language   string
	tree       *Tree
	links      *languageIndex
	active     map[string]bool
	thumbnails map[int64]string
}

func (p *projector) project(e Entry) Item {
	row := e.Row
	content := ProjectContent(row, p.tree.PublishedChildren(row.ID))
	path := p.tree.Path(row.ID)
	if path == "" {
		path = row.Slug
	}

	item := Item{
		ID:                    row.ID,
		Permalink:             p.urls.Permalink(p.siteURL, p.language, row, path),
		Type:                  row.Type,
		Status:                row.Status,
		ModifiedGMT:           row.ModifiedGMT.UTC().Format(modifiedLayout),
		Excerpt:               ProjectExcerpt(row, content),
		Content:               content,
		Parent:                row.Parent,
		Order:                 row.MenuOrder,
		AvailableLanguageURLs: map[string]string{},
		AvailableLanguages:    map[string]int64{},
	}
	if row.Status != store.StatusTrash {
		item.Title = row.Title
	}
	if row.Type == store.TypeEventRecurring {
		item.Type = store.TypeEvent
	}
	if url, ok := p.thumbnails[row.ID]; ok {
		item.Thumbnail = &url
	}
	if row.Event != nil {
		item.Event = eventInfo(*row.Event)
	}

	for _, link := range p.links.group(e.LinkType, e.LinkID) {
		if link.Language == p.language || !p.active[link.Language] {
			continue
		}
		node, ok := p.tree.Node(link.ElementID)
		if !ok {
			continue
		}
		item.AvailableLanguages[link.Language] = link.ElementID
		item.AvailableLanguageURLs[link.Language] = p.urls.ItemURL(p.siteURL, link.Language, node, p.tree.Path(link.ElementID))
	}
	return item
}

func eventInfo(ev store.EventRecord) *EventInfo {
	info := &EventInfo{
		ID:           ev.EventID,
		RecurrenceID: ev.RecurrenceID,
		StartTime:    ev.StartTime,
		EndTime:      ev.EndTime,
		AllDay:       ev.AllDay,
	}
	if ev.StartDate != nil {
		info.StartDate = ev.StartDate.Format(time.DateOnly)
	}
	if ev.EndDate != nil {
		info.EndDate = ev.EndDate.Format(time.DateOnly)
	}
	return info
}
