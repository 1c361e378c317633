package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx used by the repositories. Both *pgxpool.Pool and *pgxpool.Conn satisfy it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type connPool interface {
	Querier
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
	Ping(ctx context.Context) error
}

var prefixPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store gives access to the network registry and hands out per-site handles.
type Store struct {
	pool   connPool
	prefix string

	Sites SiteRepository
}

// New wires the network repositories on top of the shared pool. prefix is the network table prefix.
func New(pool *pgxpool.Pool, prefix string) (*Store, error) {
	if !prefixPattern.MatchString(prefix) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
	}
	return &Store{
		pool:   pool,
		prefix: prefix,
		Sites:  &siteRepo{db: pool, table: prefix + "blogs"},
	}, nil
}

// SitePrefix returns the table prefix of a site. The main site uses the network prefix unchanged.
func SitePrefix(network string, siteID int64) string {
	if siteID <= 1 {
		return network
	}
	return network + strconv.FormatInt(siteID, 10) + "_"
}

// AcquireSite resolves a site by its path segment and reserves a connection for it.
// The caller must Release the handle.
func (s *Store) AcquireSite(ctx context.Context, path string) (*SiteHandle, error) {
	site, err := s.Sites.GetByPath(ctx, normalizeSitePath(path))
	if err != nil {
		return nil, err
	}
	return s.acquire(ctx, site)
}

// AcquireSiteByID is AcquireSite for a known blog id.
func (s *Store) AcquireSiteByID(ctx context.Context, id int64) (*SiteHandle, error) {
	site, err := s.Sites.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.acquire(ctx, site)
}

func (s *Store) acquire(ctx context.Context, site *Site) (*SiteHandle, error) {
	if site.Disabled() {
		return nil, ErrNotFound
	}

	done := observeDB(ctx, "db.acquire")
	conn, err := s.pool.Acquire(ctx)
	done()
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return NewSiteHandle(*site, SitePrefix(s.prefix, site.ID), conn, conn.Release), nil
}

// HiddenSites lists sites that are reachable but not public.
func (s *Store) HiddenSites(ctx context.Context) ([]Site, error) {
	sites, err := s.Sites.List(ctx)
	if err != nil {
		return nil, err
	}
	hidden := make([]Site, 0, len(sites))
	for _, site := range sites {
		if site.Hidden() {
			hidden = append(hidden, site)
		}
	}
	return hidden, nil
}

// HealthCheck verifies that the underlying database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	defer observeDB(ctx, "db.healthcheck")()
	return s.pool.Ping(ctx)
}

func normalizeSitePath(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "/"
	}
	return "/" + trimmed + "/"
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
