package check

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"tempo-notifier/pkg/approval"
	"tempo-notifier/tab"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeGate struct {
	ok    bool
	calls int
}

func (g *fakeGate) EnsureAuthenticated(context.Context) bool {
	g.calls++
	return g.ok
}

type fakeTabs struct {
	openErr error
	loadErr error
	// errorPages holds the answer for each successive DetectErrorPage
	// call; exhausted entries read as false.
	errorPages []bool
	html       string
	htmlErr    error

	opens       int
	closes      int
	errorChecks int
}

func (f *fakeTabs) Open(_ context.Context, url string) (*tab.Tab, error) {
	f.opens++
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &tab.Tab{ID: "1", URL: url}, nil
}

func (f *fakeTabs) AwaitLoadComplete(context.Context, *tab.Tab, time.Duration) error {
	return f.loadErr
}

func (f *fakeTabs) DetectErrorPage(context.Context, *tab.Tab) bool {
	f.errorChecks++
	if f.errorChecks <= len(f.errorPages) {
		return f.errorPages[f.errorChecks-1]
	}
	return false
}

func (f *fakeTabs) HTML(context.Context, *tab.Tab) (string, error) {
	return f.html, f.htmlErr
}

func (f *fakeTabs) Close(context.Context, *tab.Tab) { f.closes++ }

type fakeExtractor struct{ records []approval.Record }

func (e *fakeExtractor) Extract(string) []approval.Record { return e.records }

func records(statuses ...string) []approval.Record {
	names := []string{"Ivan Petrov", "Anna Smirnova", "Pavel Ivanov", "Olga Orlova", "Dmitry Volkov"}
	out := make([]approval.Record, len(statuses))
	for i, s := range statuses {
		out[i] = approval.Record{Name: names[i], Status: s, Source: approval.SourceTable}
	}
	return out
}

func newChecker(gate Gate, tabs Tabs, ex Extractor, fb Fallback) *Checker {
	return New(gate, tabs, ex, fb, time.Second, 0, testLogger())
}

func TestRunHappyPath(t *testing.T) {
	tabs := &fakeTabs{html: "<html></html>"}
	ex := &fakeExtractor{records: records("Открыт", "Готов", "Не отправлен", "OPEN", "Готов")}
	c := newChecker(&fakeGate{ok: true}, tabs, ex, nil)

	result := c.Run(context.Background(), "https://jira.example.com/tempo")

	if !result.Success {
		t.Fatalf("Run() failed: %s", result.Error)
	}
	if len(result.AllUsers) != 5 {
		t.Errorf("all = %d, want 5", len(result.AllUsers))
	}
	if len(result.ProblemUsers) != 3 {
		t.Errorf("problem = %d, want 3", len(result.ProblemUsers))
	}
	if len(result.NotSubmittedUsers) != 3 {
		t.Errorf("not submitted = %d, want 3", len(result.NotSubmittedUsers))
	}
	if tabs.closes != 1 {
		t.Errorf("tab closes = %d, want exactly 1", tabs.closes)
	}
}

func TestRunNotAuthenticated(t *testing.T) {
	tabs := &fakeTabs{}
	c := newChecker(&fakeGate{ok: false}, tabs, &fakeExtractor{}, nil)

	result := c.Run(context.Background(), "https://jira.example.com/tempo")

	if result.Success {
		t.Fatal("expected failure when not authenticated")
	}
	if result.ErrorType != approval.ErrorAuth {
		t.Errorf("errorType = %q, want %q", result.ErrorType, approval.ErrorAuth)
	}
	if tabs.opens != 0 {
		t.Errorf("tab opens = %d, want 0 (auth gate must run first)", tabs.opens)
	}
}

func TestRunLoadTimeout(t *testing.T) {
	tabs := &fakeTabs{loadErr: &tab.TimeoutError{ID: "1", Timeout: time.Second}}
	c := newChecker(&fakeGate{ok: true}, tabs, &fakeExtractor{}, nil)

	result := c.Run(context.Background(), "https://jira.example.com/tempo")

	if result.Success {
		t.Fatal("expected failure on load timeout")
	}
	if result.ErrorType != approval.ErrorUnknown {
		t.Errorf("errorType = %q, want %q", result.ErrorType, approval.ErrorUnknown)
	}
	if tabs.closes != 1 {
		t.Errorf("tab closes = %d, want exactly 1 on the failure path", tabs.closes)
	}
}

func TestRunErrorPageIsDNS(t *testing.T) {
	tabs := &fakeTabs{errorPages: []bool{true}}
	c := newChecker(&fakeGate{ok: true}, tabs, &fakeExtractor{}, nil)

	result := c.Run(context.Background(), "https://jira.example.com/tempo")

	if result.ErrorType != approval.ErrorDNS {
		t.Errorf("errorType = %q, want %q", result.ErrorType, approval.ErrorDNS)
	}
	if tabs.closes != 1 {
		t.Errorf("tab closes = %d, want 1", tabs.closes)
	}
}

func TestRunOpenFailureWithDNSText(t *testing.T) {
	tabs := &fakeTabs{openErr: &tab.CreationError{
		URL: "https://jira.example.com",
		Err: errors.New("net::ERR_NAME_NOT_RESOLVED"),
	}}
	c := newChecker(&fakeGate{ok: true}, tabs, &fakeExtractor{}, nil)

	result := c.Run(context.Background(), "https://jira.example.com/tempo")

	if result.ErrorType != approval.ErrorDNS {
		t.Errorf("errorType = %q, want %q", result.ErrorType, approval.ErrorDNS)
	}
	if tabs.closes != 0 {
		t.Errorf("tab closes = %d, want 0 (nothing was opened)", tabs.closes)
	}
}

// An error page that only appears after client-side redirects finish must
// fail the check even when extraction scraped rows off it first.
func TestRunLateErrorPageFailsCheck(t *testing.T) {
	tabs := &fakeTabs{html: "<html></html>", errorPages: []bool{false, true}}
	ex := &fakeExtractor{records: records("Открыт", "Готов")}
	c := newChecker(&fakeGate{ok: true}, tabs, ex, nil)

	result := c.Run(context.Background(), "https://jira.example.com/tempo")

	if result.Success {
		t.Fatal("expected failure when the error page appears after extraction")
	}
	if result.ErrorType != approval.ErrorDNS {
		t.Errorf("errorType = %q, want %q", result.ErrorType, approval.ErrorDNS)
	}
	if tabs.errorChecks != 2 {
		t.Errorf("error-page checks = %d, want 2 (after load and after extraction)", tabs.errorChecks)
	}
	if tabs.closes != 1 {
		t.Errorf("tab closes = %d, want 1", tabs.closes)
	}
}

func TestRunFallbackExtraction(t *testing.T) {
	tabs := &fakeTabs{html: "<html></html>"}
	fb := func(string) []approval.Record { return records("Открыт", "Готов") }
	c := newChecker(&fakeGate{ok: true}, tabs, &fakeExtractor{}, fb)

	result := c.Run(context.Background(), "https://jira.example.com/tempo")

	if !result.Success {
		t.Fatalf("Run() failed: %s", result.Error)
	}
	if len(result.AllUsers) != 2 {
		t.Errorf("all = %d, want 2 from fallback", len(result.AllUsers))
	}
}

func TestRunEmptyExtractionIsSuccess(t *testing.T) {
	tabs := &fakeTabs{html: "<html></html>"}
	c := newChecker(&fakeGate{ok: true}, tabs, &fakeExtractor{}, nil)

	result := c.Run(context.Background(), "https://jira.example.com/tempo")

	if !result.Success {
		t.Fatalf("zero extracted users should still be a success, got: %s", result.Error)
	}
	if len(result.AllUsers) != 0 {
		t.Errorf("all = %d, want 0", len(result.AllUsers))
	}
}

func TestRunWithRetryStopsOnAuth(t *testing.T) {
	tabs := &fakeTabs{}
	gate := &fakeGate{ok: false}
	c := newChecker(gate, tabs, &fakeExtractor{}, nil)

	result := c.RunWithRetry(context.Background(), "https://jira.example.com/tempo", 5)

	if result.ErrorType != approval.ErrorAuth {
		t.Errorf("errorType = %q, want %q", result.ErrorType, approval.ErrorAuth)
	}
	if gate.calls != 1 {
		t.Errorf("gate calls = %d, want 1 (auth failure must not retry)", gate.calls)
	}
	if tabs.opens != 0 {
		t.Errorf("tab opens = %d, want 0", tabs.opens)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name   string
		result approval.Result
		want   string
	}{
		{
			name: "all clear",
			result: approval.Result{Success: true,
				AllUsers: records("Готов", "Готов")},
			want: "all 2 timesheets in order",
		},
		{
			name: "not submitted only",
			result: approval.Result{Success: true,
				AllUsers:          records("Открыт", "Готов", "Готов"),
				ProblemUsers:      records("Открыт"),
				NotSubmittedUsers: records("Открыт")},
			want: "1 of 3 did not submit their timesheet",
		},
		{
			name: "mixed",
			result: approval.Result{Success: true,
				AllUsers:          records("Открыт", "Ожидает утверждения", "Готов", "Готов", "Готов"),
				ProblemUsers:      records("Открыт", "Ожидает утверждения"),
				NotSubmittedUsers: records("Открыт")},
			want: "1 did not submit, 1 awaiting approval (of 5)",
		},
		{
			name:   "failure",
			result: approval.Failure(approval.ErrorDNS, "resolver down"),
			want:   "check failed (dns): resolver down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe(tt.result); got != tt.want {
				t.Errorf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}
}
