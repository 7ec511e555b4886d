// Package tab manages the ephemeral background browser tab used to render
// the Tempo approvals page for scraping.
package tab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Info is a snapshot of a tab's navigation state.
type Info struct {
	URL   string
	Title string
}

// Driver is the host-provided set of tab lifecycle primitives. The
// production implementation drives headless Chrome; tests substitute fakes.
type Driver interface {
	// Create opens a new background tab and starts navigating it to url.
	Create(ctx context.Context, url string) (string, error)
	// AwaitLoad blocks until the tab's navigation reaches load-complete,
	// the tab is closed, or ctx is done.
	AwaitLoad(ctx context.Context, id string) error
	// Info returns the tab's current URL and title.
	Info(ctx context.Context, id string) (Info, error)
	// HTML returns the rendered document of the tab.
	HTML(ctx context.Context, id string) (string, error)
	// Close destroys the tab. Closing an unknown tab is not an error.
	Close(ctx context.Context, id string) error
}

// CreationError indicates the host environment refused to open a tab.
type CreationError struct {
	URL string
	Err error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("create tab for %s: %v", e.URL, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

// IsCreationError checks if an error is a tab creation failure.
func IsCreationError(err error) bool {
	var ce *CreationError
	return errors.As(err, &ce)
}

// TimeoutError indicates a tab never reached load-complete within budget.
type TimeoutError struct {
	ID      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tab %s did not finish loading within %s", e.ID, e.Timeout)
}

// IsTimeoutError checks if an error is a tab load timeout.
func IsTimeoutError(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// ErrClosed is returned when the tab was closed (by any party) while an
// operation was waiting on it. A wait ending this way is cancelled, never
// a success.
var ErrClosed = errors.New("tab closed")

// Navigation-failure signatures. Script injection cannot distinguish a
// genuine browser error page from a slow real page, so URL and title are
// the only reliable signals.
var (
	errorURLPrefixes = []string{
		"chrome-error://",
		"about:blank#blocked",
		"data:text/html,chromewebdata",
	}

	dnsURLMarkers = []string{
		"dns_probe_finished_nxdomain",
		"err_name_not_resolved",
	}

	dnsTitleMarkers = []string{
		"dns_probe_finished_nxdomain",
		"err_name_not_resolved",
		"this site can't be reached",
		"this site cannot be reached",
		"сайт не доступен",
		"не удается получить доступ к сайту",
	}
)

// Manager owns the single parsing-tab slot for the duration of one check.
type Manager struct {
	driver   Driver
	logger   *slog.Logger
	jiraHost string // for the "check if there is a typo in <host>" title

	mu        sync.Mutex
	currentID string
}

// Tab is an opaque handle to one ephemeral tab.
type Tab struct {
	ID  string
	URL string
}

// NewManager creates a tab manager over the given driver. jiraHost (no
// scheme) extends the error-title signature set; it may be empty.
func NewManager(driver Driver, jiraHost string, logger *slog.Logger) *Manager {
	return &Manager{
		driver:   driver,
		jiraHost: strings.ToLower(jiraHost),
		logger:   logger,
	}
}

// Open creates a new background tab pointed at url. Any previously tracked
// parsing tab is closed first so a stale tab never outlives its check.
func (m *Manager) Open(ctx context.Context, url string) (*Tab, error) {
	m.mu.Lock()
	stale := m.currentID
	m.mu.Unlock()

	if stale != "" {
		m.logger.Warn("Closing stale parsing tab before opening a new one", "tab_id", stale)
		if err := m.driver.Close(ctx, stale); err != nil {
			m.logger.Warn("Failed to close stale tab", "tab_id", stale, "error", err)
		}
	}

	m.logger.Info("Opening parsing tab", "url", url)

	id, err := m.driver.Create(ctx, url)
	if err != nil {
		if IsCreationError(err) {
			return nil, err
		}
		return nil, &CreationError{URL: url, Err: err}
	}

	m.mu.Lock()
	m.currentID = id
	m.mu.Unlock()

	m.logger.Info("Parsing tab created", "tab_id", id)
	return &Tab{ID: id, URL: url}, nil
}

// AwaitLoadComplete suspends until the tab's navigation lifecycle reaches
// complete, failing with a TimeoutError after timeout. A tab closed
// externally during the wait resolves as ErrClosed, not as success.
func (m *Manager) AwaitLoadComplete(ctx context.Context, t *Tab, timeout time.Duration) error {
	m.logger.Info("Waiting for tab load", "tab_id", t.ID, "timeout", timeout.String())

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := m.driver.AwaitLoad(waitCtx, t.ID)
	switch {
	case err == nil:
		m.logger.Info("Tab loaded", "tab_id", t.ID)
		return nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return &TimeoutError{ID: t.ID, Timeout: timeout}
	case errors.Is(err, ErrClosed):
		m.logger.Info("Tab was closed while waiting for load", "tab_id", t.ID)
		return ErrClosed
	default:
		return fmt.Errorf("await tab load: %w", err)
	}
}

// DetectErrorPage reports whether the tab currently shows a browser
// navigation-failure page. It runs twice per check: right after load, and
// again after extraction, because some failure pages only appear once
// client-side redirects finish. Failure to read tab info is treated as
// "no data", not as an error page.
func (m *Manager) DetectErrorPage(ctx context.Context, t *Tab) bool {
	info, err := m.driver.Info(ctx, t.ID)
	if err != nil {
		m.logger.Warn("Could not read tab info for error-page detection", "tab_id", t.ID, "error", err)
		return false
	}

	url := strings.ToLower(info.URL)
	for _, prefix := range errorURLPrefixes {
		if strings.HasPrefix(url, prefix) {
			m.logger.Warn("Tab shows an error page", "tab_id", t.ID, "url", info.URL)
			return true
		}
	}
	for _, marker := range dnsURLMarkers {
		if strings.Contains(url, marker) {
			m.logger.Warn("DNS failure signature in tab URL", "tab_id", t.ID, "url", info.URL)
			return true
		}
	}

	title := strings.ToLower(info.Title)
	markers := dnsTitleMarkers
	if m.jiraHost != "" {
		markers = append(markers, "check if there is a typo in "+m.jiraHost)
	}
	for _, marker := range markers {
		if strings.Contains(title, marker) {
			m.logger.Warn("DNS failure signature in tab title", "tab_id", t.ID, "title", info.Title)
			return true
		}
	}

	return false
}

// HTML returns the tab's rendered document.
func (m *Manager) HTML(ctx context.Context, t *Tab) (string, error) {
	html, err := m.driver.HTML(ctx, t.ID)
	if err != nil {
		return "", fmt.Errorf("read tab document: %w", err)
	}
	return html, nil
}

// Close destroys the tab and releases the tracking slot. It is idempotent:
// closing an already-closed or externally-closed tab is not an error.
func (m *Manager) Close(ctx context.Context, t *Tab) {
	if t == nil {
		return
	}

	if err := m.driver.Close(ctx, t.ID); err != nil {
		m.logger.Warn("Tab already closed", "tab_id", t.ID, "error", err)
	} else {
		m.logger.Info("Parsing tab closed", "tab_id", t.ID)
	}

	m.mu.Lock()
	if m.currentID == t.ID {
		m.currentID = ""
	}
	m.mu.Unlock()
}

// TabOpen reports whether a parsing tab is currently tracked. Diagnostics only.
func (m *Manager) TabOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentID != ""
}
