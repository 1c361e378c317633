package content

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/integreat/contentapi/internal/store"
)

// Request selects the modified content of one post type in one language.
type Request struct {
	PostType string
	Language string
	Since    time.Time
	NoTrash  bool
}

// Entry is a row travelling through the pipeline. LinkType and LinkID name the translation entry
// that carries the row's language links; occurrences borrow the entry of their template.
type Entry struct {
	Row      store.ContentRow
	LinkType string
	LinkID   int64
}

func ownEntry(row store.ContentRow) Entry {
	return Entry{Row: row, LinkType: TranslationType(row.Type), LinkID: row.ID}
}

type entryKey struct {
	id    int64
	start int64
}

func (e Entry) key() entryKey {
	k := entryKey{id: e.Row.ID}
	if ev := e.Row.Event; ev != nil && ev.StartDate != nil {
		k.start = ev.StartDate.Unix()
		if m, err := parseClock(ev.StartTime); err == nil {
			k.start += int64(m) * 60
		}
	}
	return k
}

// Batch is the per-request state shared by the stages of a pipeline.
type Batch struct {
	Handle  *store.SiteHandle
	Request Request
	// Since is the effective watermark after clamping.
	Since time.Time

	Entries []Entry
	// Templates are recurring templates whose occurrences were never materialized.
	Templates   []store.ContentRow
	Tree        *Tree
	Items       []Item
	Diagnostics []*DataIntegrityError

	lookup   PostRequest
	seen     map[entryKey]struct{}
	attached map[int64]bool
}

func newBatch(h *store.SiteHandle, req Request) *Batch {
	return &Batch{
		Handle:   h,
		Request:  req,
		Since:    EffectiveWatermark(req.Since),
		seen:     make(map[entryKey]struct{}),
		attached: make(map[int64]bool),
	}
}

// add appends e unless an entry with the same id and start is already present.
func (b *Batch) add(e Entry) bool {
	k := e.key()
	if _, dup := b.seen[k]; dup {
		return false
	}
	b.seen[k] = struct{}{}
	b.Entries = append(b.Entries, e)
	return true
}

// visible reports whether row survives the visibility filter. Trashed rows always do so that
// clients learn about deletions.
func (b *Batch) visible(row store.ContentRow) bool {
	b.Tree.Ensure(store.TreeNode{ID: row.ID, Parent: row.Parent, Status: row.Status, Slug: row.Slug, Type: row.Type})
	return row.Status == store.StatusTrash || b.Tree.Visible(row.ID)
}

func (b *Batch) diagnose(err error) {
	var issue *DataIntegrityError
	if errors.As(err, &issue) {
		b.Diagnostics = append(b.Diagnostics, issue)
	}
}

// sortEntries orders by menu order, then byte-wise title, then id and occurrence start.
func sortEntries(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(a.Row.MenuOrder, b.Row.MenuOrder); c != 0 {
			return c
		}
		if c := strings.Compare(a.Row.Title, b.Row.Title); c != 0 {
			return c
		}
		ka, kb := a.key(), b.key()
		if c := cmp.Compare(ka.id, kb.id); c != 0 {
			return c
		}
		return cmp.Compare(ka.start, kb.start)
	})
}

// StageFunc transforms a batch in place.
type StageFunc func(ctx context.Context, b *Batch) error

type Stage struct {
	Name string
	Run  StageFunc
}

// Pipeline runs named stages in registration order.
type Pipeline struct {
	stages []Stage
}

func (p *Pipeline) Register(name string, run StageFunc) *Pipeline {
	p.stages = append(p.stages, Stage{Name: name, Run: run})
	return p
}

func (p *Pipeline) Names() []string {
	names := make([]string, len(p.stages))
	for i, st := range p.stages {
		names[i] = st.Name
	}
	return names
}

// Run stops at the first failing stage. Store failures are reported as UpstreamUnavailableError.
func (p *Pipeline) Run(ctx context.Context, b *Batch) error {
	for _, st := range p.stages {
		if err := st.Run(ctx, b); err != nil {
			return stageError(st.Name, err)
		}
	}
	return nil
}

func stageError(stage string, err error) error {
	if IsValidationError(err) || IsUpstreamUnavailable(err) || errors.Is(err, store.ErrNotFound) {
		return err
	}
	return &UpstreamUnavailableError{Op: stage, Err: err}
}
