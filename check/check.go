// Package check runs the end-to-end timesheet approvals check: gate on
// authentication, render the approvals page in an ephemeral tab, extract
// and classify, and always fold the outcome into a Result.
package check

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tempo-notifier/pkg/approval"
	"tempo-notifier/tab"
)

// Gate answers whether the session can reach authenticated Tempo pages.
type Gate interface {
	EnsureAuthenticated(ctx context.Context) bool
}

// Tabs is the ephemeral tab surface the pipeline drives.
type Tabs interface {
	Open(ctx context.Context, url string) (*tab.Tab, error)
	AwaitLoadComplete(ctx context.Context, t *tab.Tab, timeout time.Duration) error
	DetectErrorPage(ctx context.Context, t *tab.Tab) bool
	HTML(ctx context.Context, t *tab.Tab) (string, error)
	Close(ctx context.Context, t *tab.Tab)
}

// Extractor turns a rendered page snapshot into status records.
type Extractor interface {
	Extract(html string) []approval.Record
}

// Fallback is the selector-free extraction pass tried when the main
// extractor comes up empty.
type Fallback func(html string) []approval.Record

// Checker orchestrates one approvals check.
type Checker struct {
	gate      Gate
	tabs      Tabs
	extractor Extractor
	fallback  Fallback
	logger    *slog.Logger

	loadTimeout time.Duration
	settleDelay time.Duration
}

// New wires a checker. fallback may be nil.
func New(gate Gate, tabs Tabs, extractor Extractor, fallback Fallback,
	loadTimeout, settleDelay time.Duration, logger *slog.Logger,
) *Checker {
	return &Checker{
		gate:        gate,
		tabs:        tabs,
		extractor:   extractor,
		fallback:    fallback,
		logger:      logger,
		loadTimeout: loadTimeout,
		settleDelay: settleDelay,
	}
}

// Run performs one check against url. It never returns an error: every
// failure mode lands in the Result's Error and ErrorType fields, and the
// parsing tab is closed on every exit path.
func (c *Checker) Run(ctx context.Context, url string) approval.Result {
	start := time.Now()
	c.logger.Info("Starting approvals check", "url", url)

	if !c.gate.EnsureAuthenticated(ctx) {
		c.logger.Warn("Skipping check: not authenticated")
		return approval.Failure(approval.ErrorAuth, "not authenticated to Jira/Tempo")
	}

	t, err := c.tabs.Open(ctx, url)
	if err != nil {
		c.logger.Error("Could not open parsing tab", "error", err)
		return approval.Failure(classifyError(err), "open tab: "+err.Error())
	}
	defer c.tabs.Close(ctx, t)

	if err := c.tabs.AwaitLoadComplete(ctx, t, c.loadTimeout); err != nil {
		c.logger.Error("Tab never finished loading", "error", err)
		return approval.Failure(classifyError(err), "await load: "+err.Error())
	}

	if c.tabs.DetectErrorPage(ctx, t) {
		return approval.Failure(approval.ErrorDNS, "browser error page after navigation")
	}

	// The approvals table is rendered client-side well after load-complete.
	if err := c.settle(ctx); err != nil {
		return approval.Failure(approval.ErrorUnknown, "check cancelled: "+err.Error())
	}

	html, err := c.tabs.HTML(ctx, t)
	if err != nil {
		c.logger.Error("Could not read rendered page", "error", err)
		return approval.Failure(classifyError(err), "read page: "+err.Error())
	}

	records := c.extractor.Extract(html)
	if len(records) == 0 && c.fallback != nil {
		c.logger.Warn("Main extraction yielded nothing; trying simple table scan")
		records = c.fallback(html)
	}

	// Some failure pages only materialize after client-side redirects, so
	// the error-page check runs again after extraction.
	if c.tabs.DetectErrorPage(ctx, t) {
		return approval.Failure(approval.ErrorDNS, "browser error page after extraction")
	}

	summary := approval.Classify(records)
	if len(summary.AllUsers) == 0 {
		c.logger.Warn("Check finished with zero users extracted", "url", url)
	}

	result := approval.Result{
		Success:           true,
		AllUsers:          summary.AllUsers,
		ProblemUsers:      summary.ProblemUsers,
		NotSubmittedUsers: summary.NotSubmittedUsers,
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
	}

	c.logger.Info("Approvals check finished",
		"duration", time.Since(start).String(),
		"all", len(result.AllUsers),
		"problem", len(result.ProblemUsers),
		"not_submitted", len(result.NotSubmittedUsers))

	return result
}

func (c *Checker) settle(ctx context.Context) error {
	if c.settleDelay <= 0 {
		return nil
	}
	select {
	case <-time.After(c.settleDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dnsErrorMarkers classify infrastructure failures from error text when no
// typed error is available.
var dnsErrorMarkers = []string{
	"dns_probe_finished_nxdomain",
	"err_name_not_resolved",
	"no such host",
	"name resolution",
}

func classifyError(err error) approval.ErrorType {
	if err == nil {
		return approval.ErrorNone
	}
	if errors.Is(err, tab.ErrClosed) || tab.IsTimeoutError(err) || tab.IsCreationError(err) {
		// Still check for DNS text first: a creation error can carry a
		// resolver failure inside it.
		if hasDNSMarker(err) {
			return approval.ErrorDNS
		}
		return approval.ErrorUnknown
	}
	if hasDNSMarker(err) {
		return approval.ErrorDNS
	}
	return approval.ErrorUnknown
}

func hasDNSMarker(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range dnsErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Describe renders a result as a one-line human summary, used in logs and
// notification bodies.
func Describe(r approval.Result) string {
	if !r.Success {
		return fmt.Sprintf("check failed (%s): %s", r.ErrorType, r.Error)
	}
	if len(r.ProblemUsers) == 0 {
		return fmt.Sprintf("all %d timesheets in order", len(r.AllUsers))
	}
	awaiting := len(r.ProblemUsers) - len(r.NotSubmittedUsers)
	switch {
	case awaiting == 0:
		return fmt.Sprintf("%d of %d did not submit their timesheet", len(r.NotSubmittedUsers), len(r.AllUsers))
	case len(r.NotSubmittedUsers) == 0:
		return fmt.Sprintf("%d of %d timesheets awaiting approval", awaiting, len(r.AllUsers))
	default:
		return fmt.Sprintf("%d did not submit, %d awaiting approval (of %d)",
			len(r.NotSubmittedUsers), awaiting, len(r.AllUsers))
	}
}
