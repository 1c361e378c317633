package content

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/integreat/contentapi/internal/store"
)

// Post meta keys naming the page whose body is attached to a page.
const (
	MetaAttachPosition = "ig-attach-content-position"
	MetaAttachBlog     = "ig-attach-content-blog"
	MetaAttachPage     = "ig-attach-content-page"
)

// Attachment positions.
const (
	AttachBeginning = "beginning"
	AttachEnd       = "end"
)

// SiteOpener opens handles on other sites of the network.
type SiteOpener interface {
	AcquireSiteByID(ctx context.Context, id int64) (*store.SiteHandle, error)
}

type attachment struct {
	position string
	blog     int64
	page     int64
}

// parseAttachment reads the attachment meta of one page. ok is false when the page has none.
func parseAttachment(meta map[string]string) (a attachment, ok bool, err error) {
	a.position = meta[MetaAttachPosition]
	if a.position == "" {
		return a, false, nil
	}
	if a.position != AttachBeginning && a.position != AttachEnd {
		return a, false, fmt.Errorf("unknown position %q", a.position)
	}
	if a.blog, err = strconv.ParseInt(meta[MetaAttachBlog], 10, 64); err != nil || a.blog <= 0 {
		return a, false, fmt.Errorf("invalid blog id %q", meta[MetaAttachBlog])
	}
	if a.page, err = strconv.ParseInt(meta[MetaAttachPage], 10, 64); err != nil || a.page <= 0 {
		return a, false, fmt.Errorf("invalid page id %q", meta[MetaAttachPage])
	}
	return a, true, nil
}

func (a attachment) apply(body, attached string) string {
	if a.position == AttachBeginning {
		return attached + body
	}
	return body + attached
}

// attachedBodies fetches page bodies from any site of the network, keeping one handle per site
// for the duration of a stage.
type attachedBodies struct {
	opener  SiteOpener
	local   *store.SiteHandle
	handles map[int64]*store.SiteHandle
	bodies  map[[2]int64]string
}

func (c *attachedBodies) site(ctx context.Context, blog int64) (*store.SiteHandle, error) {
	if blog == c.local.Site.ID {
		return c.local, nil
	}
	if h, ok := c.handles[blog]; ok {
		return h, nil
	}
	if c.opener == nil {
		return nil, store.ErrNotFound
	}
	h, err := c.opener.AcquireSiteByID(ctx, blog)
	if err != nil {
		return nil, err
	}
	c.handles[blog] = h
	return h, nil
}

// body returns the content of a published page. Unknown sites, unknown pages and
// unpublished pages yield store.ErrNotFound.
func (c *attachedBodies) body(ctx context.Context, blog, page int64) (string, error) {
	key := [2]int64{blog, page}
	if body, ok := c.bodies[key]; ok {
		return body, nil
	}
	h, err := c.site(ctx, blog)
	if err != nil {
		return "", err
	}
	row, err := h.Posts.GetByID(ctx, page)
	if err != nil {
		return "", err
	}
	if row.Status != store.StatusPublish {
		return "", store.ErrNotFound
	}
	c.bodies[key] = row.Content
	return row.Content, nil
}

func (c *attachedBodies) release() {
	for _, h := range c.handles {
		h.Release()
	}
}

// attachContent adds the body of the configured page to the beginning or end of published pages.
// Each page is extended at most once per request.
func (s *Service) attachContent(ctx context.Context, b *Batch) error {
	var ids []int64
	for _, e := range b.Entries {
		if e.Row.Type == store.TypePage && e.Row.Status == store.StatusPublish && !slices.Contains(ids, e.Row.ID) {
			ids = append(ids, e.Row.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	meta, err := b.Handle.Posts.Meta(ctx, ids, MetaAttachPosition, MetaAttachBlog, MetaAttachPage)
	if err != nil {
		return err
	}
	if len(meta) == 0 {
		return nil
	}

	bodies := &attachedBodies{
		opener:  s.sites,
		local:   b.Handle,
		handles: make(map[int64]*store.SiteHandle),
		bodies:  make(map[[2]int64]string),
	}
	defer bodies.release()

	for i := range b.Entries {
		row := &b.Entries[i].Row
		m, ok := meta[row.ID]
		if !ok || b.attached[row.ID] {
			continue
		}
		a, ok, err := parseAttachment(m)
		if err != nil {
			b.diagnose(&DataIntegrityError{ItemID: row.ID, Kind: KindMalformedAttachment, Reason: err.Error()})
			continue
		}
		if !ok {
			continue
		}
		body, err := bodies.body(ctx, a.blog, a.page)
		if errors.Is(err, store.ErrNotFound) {
			b.diagnose(&DataIntegrityError{
				ItemID: row.ID,
				Kind:   KindMissingAttachment,
				Reason: fmt.Sprintf("page %d of site %d is not available", a.page, a.blog),
			})
			continue
		}
		if err != nil {
			return err
		}
		row.Content = a.apply(row.Content, body)
		b.attached[row.ID] = true
	}
	return nil
}
