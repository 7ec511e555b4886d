// Package auth decides whether Jira/Tempo will serve authenticated pages
// before any tab is spent on a check.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Gate probes the Tempo entry page with the configured session cookie and
// caches the verdict. It deliberately runs without retries: an auth check
// is a precondition, and a slow gate would delay every scheduled check.
type Gate struct {
	client   *http.Client
	logger   *slog.Logger
	probeURL string
	cookie   string
	ttl      time.Duration

	mu        sync.Mutex
	cached    bool
	checkedAt time.Time
}

// New creates a gate probing probeURL. cookie is the raw Cookie header
// value for the Jira session; it may be empty, in which case only
// anonymous access can pass. ttl bounds how long a verdict is trusted.
func New(probeURL, cookie string, ttl time.Duration, logger *slog.Logger) *Gate {
	return &Gate{
		client: &http.Client{
			Timeout: 15 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				// A login redirect is itself the signal; don't follow it.
				return http.ErrUseLastResponse
			},
		},
		logger:   logger,
		probeURL: probeURL,
		cookie:   cookie,
		ttl:      ttl,
	}
}

// EnsureAuthenticated reports whether the session currently passes. The
// result never carries an error: probe failures read as "not
// authenticated", and the caller's check is skipped rather than failed.
func (g *Gate) EnsureAuthenticated(ctx context.Context) bool {
	g.mu.Lock()
	if g.cached && time.Since(g.checkedAt) < g.ttl {
		g.mu.Unlock()
		return true
	}
	g.mu.Unlock()

	ok := g.probe(ctx)

	g.mu.Lock()
	g.cached = ok
	g.checkedAt = time.Now()
	g.mu.Unlock()

	return ok
}

func (g *Gate) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, g.probeURL, http.NoBody)
	if err != nil {
		g.logger.Error("Failed to build auth probe request", "url", g.probeURL, "error", err)
		return false
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if g.cookie != "" {
		req.Header.Set("Cookie", g.cookie)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("Auth probe failed", "url", g.probeURL, "error", err)
		return false
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			g.logger.Warn("Failed to close auth probe body", "error", err)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
		g.logger.Info("Auth probe passed", "url", g.probeURL)
		return true
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		g.logger.Warn("Auth probe rejected", "url", g.probeURL, "status", resp.StatusCode)
		return false
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		// Jira bounces unauthenticated sessions to the login page.
		g.logger.Warn("Auth probe redirected to login", "url", g.probeURL, "status", resp.StatusCode,
			"location", resp.Header.Get("Location"))
		return false
	default:
		g.logger.Warn("Auth probe got unexpected status", "url", g.probeURL, "status", resp.StatusCode)
		return false
	}
}

// Invalidate drops the cached verdict so the next call probes again. Called
// after a check that smells like an auth failure despite the gate passing.
func (g *Gate) Invalidate() {
	g.mu.Lock()
	g.cached = false
	g.mu.Unlock()
}

// Set records a verdict directly. Used at startup when the operator has
// just confirmed the session out of band.
func (g *Gate) Set(ok bool) {
	g.mu.Lock()
	g.cached = ok
	g.checkedAt = time.Now()
	g.mu.Unlock()
}
