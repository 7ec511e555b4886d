// Package notify delivers check outcomes through pluggable providers.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"tempo-notifier/pkg/approval"
)

// Provider defines the interface for notification delivery implementations.
type Provider interface {
	// Send delivers a notification with the given title and body.
	Send(ctx context.Context, title, body string) error
}

// Sender turns check results into notifications using a pluggable provider.
type Sender struct {
	provider Provider
	logger   *slog.Logger
	baseURL  string // For links back to the approvals page
}

// New creates a notification sender with the given provider.
func New(provider Provider, baseURL string, logger *slog.Logger) *Sender {
	return &Sender{
		provider: provider,
		logger:   logger,
		baseURL:  baseURL,
	}
}

// Report sends a notification for the result. Clean results are silent:
// only problems and failures reach the operator.
func (s *Sender) Report(ctx context.Context, result approval.Result) error {
	title, body, ok := s.compose(result)
	if !ok {
		s.logger.Info("Nothing to report", "all_users", len(result.AllUsers))
		return nil
	}

	s.logger.Info("Sending notification", "title", title)
	return s.provider.Send(ctx, title, body)
}

func (s *Sender) compose(result approval.Result) (title, body string, ok bool) {
	if !result.Success {
		switch result.ErrorType {
		case approval.ErrorAuth:
			return "Tempo check skipped: sign in to Jira",
				"The timesheet check could not run because the Jira session is not authenticated. Sign in and trigger the check again.\n" + s.link(),
				true
		case approval.ErrorDNS:
			return "Tempo check failed: Jira is unreachable",
				"The Jira host could not be resolved or reached. If you are on a VPN, check the connection.\n\nDetails: " + result.Error,
				true
		default:
			return "Tempo check failed",
				"The timesheet check did not complete.\n\nDetails: " + result.Error,
				true
		}
	}

	if len(result.ProblemUsers) == 0 {
		return "", "", false
	}

	notSubmitted := len(result.NotSubmittedUsers)
	awaiting := len(result.ProblemUsers) - notSubmitted

	switch {
	case awaiting == 0:
		title = fmt.Sprintf("%d timesheet(s) not submitted", notSubmitted)
	case notSubmitted == 0:
		title = fmt.Sprintf("%d timesheet(s) awaiting approval", awaiting)
	default:
		title = fmt.Sprintf("%d not submitted, %d awaiting approval", notSubmitted, awaiting)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d team members need attention:\n\n", len(result.ProblemUsers), len(result.AllUsers))
	for _, r := range result.ProblemUsers {
		fmt.Fprintf(&b, "  %s — %s\n", r.Name, r.Status)
	}
	if link := s.link(); link != "" {
		b.WriteString("\n")
		b.WriteString(link)
	}

	return title, b.String(), true
}

func (s *Sender) link() string {
	if s.baseURL == "" {
		return ""
	}
	return "Open approvals: " + s.baseURL
}
