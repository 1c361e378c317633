package content

import (
	"context"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/integreat/contentapi/internal/metrics"
	"github.com/integreat/contentapi/internal/store"
)

type Options struct {
	BaseURL  string
	Location *time.Location
	// Sites opens other sites of the network for attached content. Without it only
	// attachments from the requested site resolve.
	Sites SiteOpener
}

// Result is the output of a modified-content request.
type Result struct {
	Items       []Item
	Diagnostics []*DataIntegrityError
}

// PostRequest looks up a single post by id or by URL.
type PostRequest struct {
	Language string
	ID       int64
	URL      string
}

// Service runs the content pipelines against a site handle.
type Service struct {
	log      *zap.Logger
	urls     URLBuilder
	loc      *time.Location
	sites    SiteOpener
	modified *Pipeline
	single   *Pipeline
}

func NewService(logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{
		log:   logger,
		urls:  URLBuilder{BaseURL: opts.BaseURL, Location: loc},
		loc:   loc,
		sites: opts.Sites,
	}
	s.modified = new(Pipeline).
		Register("compose", s.compose).
		Register("visibility", s.filterVisible).
		Register("recurrence", s.expandRecurring).
		Register("trash", s.dropTrash).
		Register("attach", s.attachContent).
		Register("project", s.project)
	s.single = new(Pipeline).
		Register("lookup", s.lookup).
		Register("visibility", s.filterVisible).
		Register("attach", s.attachContent).
		Register("project", s.project)
	return s
}

// Stages lists the stage names of the modified-content pipeline.
func (s *Service) Stages() []string {
	return s.modified.Names()
}

// Modified returns the items of req.PostType modified since the request watermark.
func (s *Service) Modified(ctx context.Context, h *store.SiteHandle, req Request) (*Result, error) {
	if req.PostType != store.TypePage && req.PostType != store.TypeEvent {
		return nil, &ValidationError{Field: "type", Message: "expected pages or events"}
	}
	if req.Language == "" {
		return nil, &ValidationError{Field: "language", Message: "language code is required"}
	}

	b := newBatch(h, req)
	if err := s.modified.Run(ctx, b); err != nil {
		return nil, err
	}
	s.report(h, b.Diagnostics)
	metrics.ObserveItemsServed(req.PostType, len(b.Items))
	return &Result{Items: b.Items, Diagnostics: b.Diagnostics}, nil
}

// Post returns one published, visible post. Unknown or hidden posts yield store.ErrNotFound.
func (s *Service) Post(ctx context.Context, h *store.SiteHandle, req PostRequest) (*Item, []*DataIntegrityError, error) {
	if req.ID == 0 && req.URL == "" {
		return nil, nil, &ValidationError{Field: "id", Message: "either the id or the url parameter is required"}
	}
	if req.Language == "" {
		return nil, nil, &ValidationError{Field: "language", Message: "language code is required"}
	}

	b := newBatch(h, Request{Language: req.Language})
	b.lookup = req
	if err := s.single.Run(ctx, b); err != nil {
		return nil, nil, err
	}
	s.report(h, b.Diagnostics)
	if len(b.Items) == 0 {
		return nil, b.Diagnostics, store.ErrNotFound
	}
	return &b.Items[0], b.Diagnostics, nil
}

func (s *Service) report(h *store.SiteHandle, issues []*DataIntegrityError) {
	for _, issue := range issues {
		s.log.Warn("content data integrity issue",
			zap.String("site", h.Site.Path),
			zap.Int64("item_id", issue.ItemID),
			zap.String("kind", issue.Kind),
			zap.String("reason", issue.Reason),
		)
		metrics.RecordDataIntegrityIssue(issue.Kind)
	}
}

func (s *Service) compose(ctx context.Context, b *Batch) error {
	posts := b.Handle.Posts
	rows, err := posts.List(ctx, ComposeModified(b.Request.PostType, b.Request.Language, b.Since))
	if err != nil {
		return err
	}
	for _, row := range rows {
		b.add(ownEntry(row))
	}
	if b.Request.PostType != store.TypeEvent {
		return nil
	}
	if err := s.loadTree(ctx, b); err != nil {
		return err
	}
	if hasRecurrenceID(rows, b.visible) {
		return nil
	}

	templates, err := posts.List(ctx, ComposeModified(store.TypeEventRecurring, b.Request.Language, b.Since))
	if err != nil {
		return err
	}
	for _, tpl := range templates {
		if tpl.Event == nil {
			b.diagnose(&DataIntegrityError{ItemID: tpl.ID, Kind: KindMissingEventRecord, Reason: "recurring template has no event record"})
			continue
		}
		occurrences, err := posts.List(ctx, ComposeOccurrences(tpl.ID, tpl.Event.EventID, b.Request.Language, b.Since))
		if err != nil {
			return err
		}
		if len(occurrences) > 0 {
			for _, occ := range occurrences {
				b.add(Entry{Row: occ, LinkType: TranslationType(store.TypeEventRecurring), LinkID: tpl.ID})
			}
			continue
		}
		n, err := b.Handle.Events.CountOccurrences(ctx, tpl.Event.EventID)
		if err != nil {
			return err
		}
		if n == 0 {
			b.Templates = append(b.Templates, tpl)
		}
	}
	return nil
}

// hasRecurrenceID reports whether a row that survives the visibility filter is a materialised occurrence.
func hasRecurrenceID(rows []store.ContentRow, visible func(store.ContentRow) bool) bool {
	for _, row := range rows {
		if row.Event != nil && row.Event.RecurrenceID != nil && visible(row) {
			return true
		}
	}
	return false
}

func treeTypes(postType string) []string {
	if postType == store.TypeEvent || postType == store.TypeEventRecurring {
		return []string{store.TypeEvent, store.TypeEventRecurring}
	}
	return []string{postType}
}

func (s *Service) loadTree(ctx context.Context, b *Batch) error {
	if b.Tree != nil {
		return nil
	}
	nodes, err := b.Handle.Posts.Tree(ctx, treeTypes(b.Request.PostType)...)
	if err != nil {
		return err
	}
	b.Tree = NewTree(nodes)
	return nil
}

func (s *Service) filterVisible(ctx context.Context, b *Batch) error {
	if err := s.loadTree(ctx, b); err != nil {
		return err
	}
	b.Entries = slices.DeleteFunc(b.Entries, func(e Entry) bool { return !b.visible(e.Row) })
	b.Templates = slices.DeleteFunc(b.Templates, func(row store.ContentRow) bool { return !b.visible(row) })
	for _, issue := range b.Tree.Issues() {
		b.diagnose(issue)
	}
	return nil
}

func (s *Service) expandRecurring(ctx context.Context, b *Batch) error {
	defer func() { sortEntries(b.Entries) }()
	if len(b.Templates) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(b.Templates))
	for _, tpl := range b.Templates {
		ids = append(ids, tpl.Event.EventID)
	}
	rules, err := b.Handle.Events.Rules(ctx, ids)
	if err != nil {
		return err
	}

	synthesized := 0
	for _, tpl := range b.Templates {
		if tpl.Status == store.StatusTrash {
			// Clients only need the id to drop the whole series.
			b.add(Entry{Row: tpl, LinkType: TranslationType(store.TypeEventRecurring), LinkID: tpl.ID})
			continue
		}
		rec, ok := rules[tpl.Event.EventID]
		if !ok {
			b.diagnose(&DataIntegrityError{ItemID: tpl.ID, Kind: KindMissingEventRecord, Reason: "recurrence rule not found"})
			continue
		}
		rule, err := RuleFromRecord(tpl.ID, rec, s.loc)
		if err != nil {
			b.diagnose(err)
			continue
		}
		occurrences, err := Expand(rule)
		if err != nil {
			b.diagnose(err)
			continue
		}
		for occ := range occurrences {
			entry := Entry{Row: occurrenceRow(tpl, occ), LinkType: TranslationType(store.TypeEventRecurring), LinkID: tpl.ID}
			if b.add(entry) {
				synthesized++
			}
		}
	}
	metrics.RecordSynthesizedOccurrences(synthesized)
	return nil
}

func occurrenceRow(tpl store.ContentRow, occ Occurrence) store.ContentRow {
	row := tpl
	recurrenceID := occ.RecurrenceID
	startDate := occ.Date
	endDate := calendarDay(occ.End)
	row.Event = &store.EventRecord{
		EventID:      tpl.Event.EventID,
		RecurrenceID: &recurrenceID,
		StartDate:    &startDate,
		EndDate:      &endDate,
		StartTime:    occ.Start.Format("15:04"),
		EndTime:      occ.End.Format("15:04"),
		AllDay:       occ.AllDay,
	}
	return row
}

func (s *Service) dropTrash(_ context.Context, b *Batch) error {
	if b.Request.NoTrash {
		b.Entries = slices.DeleteFunc(b.Entries, func(e Entry) bool { return e.Row.Status == store.StatusTrash })
	}
	return nil
}

func (s *Service) project(ctx context.Context, b *Batch) error {
	b.Items = make([]Item, 0, len(b.Entries))
	if len(b.Entries) == 0 {
		return nil
	}
	h := b.Handle

	langs, err := h.Languages.ListActive(ctx)
	if err != nil {
		return err
	}
	active := make(map[string]bool, len(langs))
	for _, l := range langs {
		active[l.Code] = true
	}

	byType := make(map[string][]int64)
	var postIDs []int64
	for _, e := range b.Entries {
		if !slices.Contains(byType[e.LinkType], e.LinkID) {
			byType[e.LinkType] = append(byType[e.LinkType], e.LinkID)
		}
		if !slices.Contains(postIDs, e.Row.ID) {
			postIDs = append(postIDs, e.Row.ID)
		}
	}
	index := newLanguageIndex()
	for elementType, ids := range byType {
		links, err := h.Translations.Links(ctx, elementType, ids)
		if err != nil {
			return err
		}
		index.add(elementType, links)
	}
	thumbnails, err := h.Posts.Thumbnails(ctx, postIDs)
	if err != nil {
		return err
	}

	p := &projector{
		urls:       s.urls,
		siteURL:    s.urls.SiteURL(h.Site),
		language:   b.Request.Language,
		tree:       b.Tree,
		links:      index,
		active:     active,
		thumbnails: thumbnails,
	}
	for _, e := range b.Entries {
		b.Items = append(b.Items, p.project(e))
	}
	return nil
}

// lookup loads the single post named by the batch's PostRequest. The post must be a published
// page or event written in the requested language.
func (s *Service) lookup(ctx context.Context, b *Batch) error {
	h := b.Handle
	lang := b.lookup.Language
	nodes, err := h.Posts.Tree(ctx, store.TypePage, store.TypeEvent, store.TypeEventRecurring)
	if err != nil {
		return err
	}
	b.Tree = NewTree(nodes)

	id := b.lookup.ID
	if id == 0 {
		resolved, ok := resolvePostURL(b.lookup.URL, s.urls.SiteURL(h.Site), lang, b.Tree)
		if !ok {
			return store.ErrNotFound
		}
		id = resolved
	}
	if node, ok := b.Tree.Node(id); !ok || node.Language != lang {
		return store.ErrNotFound
	}

	row, err := h.Posts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if row.Status != store.StatusPublish {
		return store.ErrNotFound
	}
	switch row.Type {
	case store.TypePage, store.TypeEvent, store.TypeEventRecurring:
	default:
		return store.ErrNotFound
	}
	b.Request.PostType = row.Type
	b.add(ownEntry(*row))
	return nil
}

// resolvePostURL maps a public URL to a post id. It understands ?p= and ?page_id= links,
// /<lang>/events/<slug>/ and /<lang>/<page path>/. Path links only match published posts
// of language lang; the lowest id wins when several share a path.
func resolvePostURL(raw, siteURL, lang string, tree *Tree) (int64, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return 0, false
	}
	for _, key := range []string{"p", "page_id"} {
		if v := u.Query().Get(key); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			return id, err == nil && id > 0
		}
	}

	path := u.Path
	if site, err := url.Parse(siteURL); err == nil {
		path = strings.TrimPrefix(path, strings.TrimRight(site.Path, "/"))
	}
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	if len(segments) < 2 || segments[0] != lang {
		return 0, false
	}
	segments = segments[1:]

	var match int64
	consider := func(id int64) {
		if match == 0 || id < match {
			match = id
		}
	}
	for id, node := range tree.nodes {
		if node.Status != store.StatusPublish || node.Language != lang {
			continue
		}
		switch node.Type {
		case store.TypeEvent, store.TypeEventRecurring:
			if len(segments) == 2 && segments[0] == "events" && segments[1] == node.Slug {
				consider(id)
			}
		default:
			if tree.Path(id) == strings.Join(segments, "/") {
				consider(id)
			}
		}
	}
	return match, match != 0
}
