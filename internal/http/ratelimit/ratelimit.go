package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	httperrors "github.com/integreat/contentapi/internal/http/errors"
	"github.com/integreat/contentapi/internal/metrics"
)

const defaultMaxClients = 10000

// ClientLimiter keeps one token bucket per client address.
type ClientLimiter struct {
	mu         sync.Mutex
	clients    map[string]*client
	rate       rate.Limit
	burst      int
	idle       time.Duration
	maxClients int
	trusted    []*net.IPNet
	now        func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a limiter allowing rps requests per second with the given burst per client.
// Clients idle for longer than idle are forgotten. trustedProxies lists IPs or CIDRs whose
// forwarding headers are honoured; when empty every peer is trusted.
func New(rps float64, burst int, idle time.Duration, trustedProxies []string) *ClientLimiter {
	return &ClientLimiter{
		clients:    make(map[string]*client),
		rate:       rate.Limit(rps),
		burst:      burst,
		idle:       idle,
		maxClients: defaultMaxClients,
		trusted:    parseNetworks(trustedProxies),
		now:        time.Now,
	}
}

func parseNetworks(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				continue
			}
			bits := 128
			if ip.To4() != nil {
				bits = 32
			}
			entry += "/" + strconv.Itoa(bits)
		}
		if _, ipnet, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, ipnet)
		}
	}
	return nets
}

// Run evicts idle clients until ctx is done.
func (l *ClientLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *ClientLimiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idle)
	for addr, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, addr)
		}
	}
}

func (l *ClientLimiter) limiter(addr string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[addr]
	if !ok {
		if len(l.clients) >= l.maxClients {
			l.evictOldest()
		}
		c = &client{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[addr] = c
	}
	c.lastSeen = now
	return c.limiter
}

// evictOldest must be called with mu held.
func (l *ClientLimiter) evictOldest() {
	var (
		oldest string
		seen   time.Time
	)
	for addr, c := range l.clients {
		if oldest == "" || c.lastSeen.Before(seen) {
			oldest, seen = addr, c.lastSeen
		}
	}
	delete(l.clients, oldest)
}

// Middleware rejects requests over the client's budget with 429.
func (l *ClientLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.limiter(l.clientAddr(r)).Allow() {
				metrics.RecordRateLimited(r)
				w.Header().Set("Retry-After", "1")
				httperrors.Write(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *ClientLimiter) clientAddr(r *http.Request) string {
	peer := parseIP(r.RemoteAddr)
	if peer == nil {
		return r.RemoteAddr
	}
	if !l.trustsPeer(peer) {
		return peer.String()
	}

	// Leftmost entry is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	return peer.String()
}

func (l *ClientLimiter) trustsPeer(ip net.IP) bool {
	if len(l.trusted) == 0 {
		return true
	}
	for _, n := range l.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func parseIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(addr)
}
