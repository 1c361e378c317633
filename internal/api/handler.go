package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/integreat/contentapi/internal/config"
	"github.com/integreat/contentapi/internal/content"
	httperrors "github.com/integreat/contentapi/internal/http/errors"
	"github.com/integreat/contentapi/internal/store"
)

// DiagnosticsHeader carries the number of data integrity issues found while serving a response.
const DiagnosticsHeader = "X-Content-Diagnostics"

// Sites hands out per-request site handles.
type Sites interface {
	AcquireSite(ctx context.Context, path string) (*store.SiteHandle, error)
	HiddenSites(ctx context.Context) ([]store.Site, error)
}

// Content runs the content pipelines.
type Content interface {
	Modified(ctx context.Context, h *store.SiteHandle, req content.Request) (*content.Result, error)
	Post(ctx context.Context, h *store.SiteHandle, req content.PostRequest) (*content.Item, []*content.DataIntegrityError, error)
}

// Handler serves the public JSON API.
type Handler struct {
	cfg     *config.Config
	sites   Sites
	content Content
	cache   *cache.Cache
	log     *zap.Logger
}

func NewHandler(cfg *config.Config, sites Sites, svc Content, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Handler{
		cfg:     cfg,
		sites:   sites,
		content: svc,
		cache:   cache.New(ttl, 2*ttl),
		log:     logger,
	}
}

// Routes registers the API endpoints below the router's mount point.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/sites/hidden", h.HiddenSites)
	r.Get("/{site}/languages", h.Languages)
	r.Get("/{site}/{language}/modified-content", h.ModifiedContent)
	r.Get("/{site}/{language}/modified-content/{type}", h.ModifiedContent)
	r.Get("/{site}/{language}/post", h.Post)
}

var contentTypes = map[string]string{
	"pages":  store.TypePage,
	"events": store.TypeEvent,
}

func (h *Handler) ModifiedContent(w http.ResponseWriter, r *http.Request) {
	req, err := parseModifiedRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	site, err := h.acquire(r, chi.URLParam(r, "site"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer site.Release()

	result, err := h.content.Modified(r.Context(), site, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set(DiagnosticsHeader, strconv.Itoa(len(result.Diagnostics)))
	httperrors.WriteJSON(w, http.StatusOK, result.Items)
}

func parseModifiedRequest(r *http.Request) (content.Request, error) {
	typ := chi.URLParam(r, "type")
	if typ == "" {
		typ = "pages"
	}
	postType, ok := contentTypes[typ]
	if !ok {
		return content.Request{}, &content.ValidationError{Field: "type", Message: "expected pages or events"}
	}

	q := r.URL.Query()
	since, err := content.ParseSince(q.Get("since"))
	if err != nil {
		return content.Request{}, err
	}

	var noTrash bool
	switch q.Get("no_trash") {
	case "", "0":
	case "1":
		noTrash = true
	default:
		return content.Request{}, &content.ValidationError{Field: "no_trash", Message: "expected 0 or 1"}
	}

	return content.Request{
		PostType: postType,
		Language: chi.URLParam(r, "language"),
		Since:    since,
		NoTrash:  noTrash,
	}, nil
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	req := content.PostRequest{
		Language: chi.URLParam(r, "language"),
		URL:      strings.TrimSpace(r.URL.Query().Get("url")),
	}
	if raw := r.URL.Query().Get("id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.writeError(w, r, &content.ValidationError{Field: "id", Message: "expected a positive integer"})
			return
		}
		req.ID = id
	}
	if req.ID == 0 && req.URL == "" {
		h.writeError(w, r, &content.ValidationError{Field: "id", Message: "either the id or the url parameter is required"})
		return
	}

	site, err := h.acquire(r, chi.URLParam(r, "site"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer site.Release()

	item, diagnostics, err := h.content.Post(r.Context(), site, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set(DiagnosticsHeader, strconv.Itoa(len(diagnostics)))
	httperrors.WriteJSON(w, http.StatusOK, item)
}

type languageView struct {
	ID             int64  `json:"id"`
	Code           string `json:"code"`
	NativeName     string `json:"native_name"`
	CountryFlagURL string `json:"country_flag_url"`
}

func (h *Handler) Languages(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(chi.URLParam(r, "site"), "/")
	key := "languages:" + path
	if cached, ok := h.cache.Get(key); ok {
		httperrors.WriteJSON(w, http.StatusOK, cached)
		return
	}
	h.log.Debug("languages cache miss", zap.String("site", path))

	site, err := h.acquire(r, path)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer site.Release()

	langs, err := site.Languages.ListActive(r.Context())
	if err != nil {
		h.writeError(w, r, &content.UpstreamUnavailableError{Op: "languages", Err: err})
		return
	}
	view := make([]languageView, 0, len(langs))
	for _, l := range langs {
		view = append(view, languageView{
			ID:             l.ID,
			Code:           l.Code,
			NativeName:     l.NativeName,
			CountryFlagURL: h.cfg.FlagBaseURL + l.Flag,
		})
	}
	h.cache.SetDefault(key, view)
	httperrors.WriteJSON(w, http.StatusOK, view)
}

type siteView struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Path   string `json:"path"`
	Domain string `json:"domain"`
}

const hiddenSitesKey = "sites:hidden"

func (h *Handler) HiddenSites(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.cache.Get(hiddenSitesKey); ok {
		httperrors.WriteJSON(w, http.StatusOK, cached)
		return
	}
	h.log.Debug("hidden sites cache miss")

	sites, err := h.sites.HiddenSites(r.Context())
	if err != nil {
		h.writeError(w, r, &content.UpstreamUnavailableError{Op: "sites", Err: err})
		return
	}
	view := make([]siteView, 0, len(sites))
	for _, s := range sites {
		view = append(view, siteView{ID: s.ID, Name: s.Name, Path: s.Path, Domain: s.Domain})
	}
	h.cache.SetDefault(hiddenSitesKey, view)
	httperrors.WriteJSON(w, http.StatusOK, view)
}

// acquire resolves the site of the request. Store failures other than an unknown site are
// reported as upstream errors.
func (h *Handler) acquire(r *http.Request, path string) (*store.SiteHandle, error) {
	site, err := h.sites.AcquireSite(r.Context(), path)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, &content.UpstreamUnavailableError{Op: "acquire", Err: err}
	}
	return site, err
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *content.ValidationError
	switch {
	case errors.As(err, &validation):
		httperrors.BadRequestError(w, r, err, validation.Field, validation.Error())
	case errors.Is(err, store.ErrNotFound):
		httperrors.NotFound(w, r, "not found")
	case content.IsUpstreamUnavailable(err), isTimeout(err):
		httperrors.UnavailableError(w, r, err)
	default:
		httperrors.InternalError(w, r, err, "serve "+r.URL.Path)
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
