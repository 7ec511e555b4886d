package teams

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"tempo-notifier/pkg/approval"
	"tempo-notifier/tab"
)

// Gate answers whether the session can reach authenticated Tempo pages.
type Gate interface {
	EnsureAuthenticated(ctx context.Context) bool
}

// Tabs is the ephemeral tab surface discovery drives.
type Tabs interface {
	Open(ctx context.Context, url string) (*tab.Tab, error)
	AwaitLoadComplete(ctx context.Context, t *tab.Tab, timeout time.Duration) error
	DetectErrorPage(ctx context.Context, t *tab.Tab) bool
	HTML(ctx context.Context, t *tab.Tab) (string, error)
	Close(ctx context.Context, t *tab.Tab)
}

// Cache persists the discovered team list between refreshes.
type Cache interface {
	LoadTeams(ctx context.Context, maxAge time.Duration) ([]approval.Team, bool, error)
	SaveTeams(ctx context.Context, list []approval.Team) error
}

// ErrBusy is returned when a refresh is needed but a check currently owns
// the parsing tab and no cached list exists to fall back on.
var ErrBusy = errors.New("teams: a check is in flight, try again shortly")

// Directory serves the team list, refreshing the stored cache by scraping
// the Tempo teams page when it goes stale. Discovery drives the same
// single parsing-tab slot as approval checks, so it acquires the shared
// in-flight guard first: a refresh must never close a running check's tab
// out from under it.
type Directory struct {
	gate     Gate
	tabs     Tabs
	cache    Cache
	logger   *slog.Logger
	inFlight *atomic.Bool

	teamsURL    string
	teamURL     func(id int) string
	loadTimeout time.Duration
	settleDelay time.Duration
	cacheTTL    time.Duration
}

// DirectoryConfig holds the directory's collaborators and settings.
type DirectoryConfig struct {
	Gate     Gate
	Tabs     Tabs
	Cache    Cache
	Logger   *slog.Logger
	InFlight *atomic.Bool

	TeamsURL    string
	TeamURL     func(id int) string
	LoadTimeout time.Duration
	SettleDelay time.Duration
	CacheTTL    time.Duration
}

// NewDirectory creates a team directory.
func NewDirectory(cfg *DirectoryConfig) *Directory {
	return &Directory{
		gate:        cfg.Gate,
		tabs:        cfg.Tabs,
		cache:       cfg.Cache,
		logger:      cfg.Logger,
		inFlight:    cfg.InFlight,
		teamsURL:    cfg.TeamsURL,
		teamURL:     cfg.TeamURL,
		loadTimeout: cfg.LoadTimeout,
		settleDelay: cfg.SettleDelay,
		cacheTTL:    cfg.CacheTTL,
	}
}

// Teams returns the team list: the cache when fresh, otherwise a scrape of
// the teams page. While a check holds the parsing tab, a stale cache is
// served as-is and an empty one yields ErrBusy; the tab is never contended.
func (d *Directory) Teams(ctx context.Context) ([]approval.Team, error) {
	cached, fresh, err := d.cache.LoadTeams(ctx, d.cacheTTL)
	if err != nil {
		d.logger.Warn("Failed to read teams cache", "error", err)
	}
	if fresh {
		return cached, nil
	}

	if !d.inFlight.CompareAndSwap(false, true) {
		if len(cached) > 0 {
			d.logger.Warn("Check in flight; serving stale teams cache")
			return cached, nil
		}
		return nil, ErrBusy
	}
	defer d.inFlight.Store(false)

	list, err := d.discover(ctx)
	if err != nil {
		// A stale cache beats no answer at all.
		if len(cached) > 0 {
			d.logger.Warn("Team discovery failed, serving stale cache", "error", err)
			return cached, nil
		}
		return nil, err
	}

	if err := d.cache.SaveTeams(ctx, list); err != nil {
		d.logger.Warn("Failed to save teams cache", "error", err)
	}
	return list, nil
}

func (d *Directory) discover(ctx context.Context) ([]approval.Team, error) {
	if !d.gate.EnsureAuthenticated(ctx) {
		return nil, errors.New("not authenticated to Jira/Tempo")
	}

	t, err := d.tabs.Open(ctx, d.teamsURL)
	if err != nil {
		return nil, fmt.Errorf("open teams page: %w", err)
	}
	defer d.tabs.Close(ctx, t)

	if err := d.tabs.AwaitLoadComplete(ctx, t, d.loadTimeout); err != nil {
		return nil, fmt.Errorf("load teams page: %w", err)
	}
	if d.tabs.DetectErrorPage(ctx, t) {
		return nil, errors.New("teams page unreachable")
	}

	select {
	case <-time.After(d.settleDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	html, err := d.tabs.HTML(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("read teams page: %w", err)
	}

	list := Parse(html)
	for i := range list {
		list[i].URL = d.teamURL(list[i].ID)
	}
	d.logger.Info("Discovered teams", "count", len(list))
	return list, nil
}
