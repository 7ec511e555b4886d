// Package main runs the Tempo timesheet checker: a service that renders
// the Tempo approvals page in a headless browser tab, extracts who has not
// submitted or approved their timesheet, and notifies the operator.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"tempo-notifier/auth"
	"tempo-notifier/check"
	"tempo-notifier/config"
	"tempo-notifier/notify"
	"tempo-notifier/pkg/approval"
	"tempo-notifier/scrape"
	"tempo-notifier/server"
	"tempo-notifier/storage"
	"tempo-notifier/tab"
	"tempo-notifier/teams"
)

const checkAttempts = 3

func main() {
	ctx := context.Background()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	settings := config.FromEnv()

	// Default to local development mode if no bucket specified.
	if settings.StorageBucket == "" && settings.LocalStorage == "" {
		settings.LocalStorage = "./data"
		logger.Info("No STORAGE_BUCKET set, defaulting to local development mode",
			"storage_path", settings.LocalStorage)
	}

	var store *storage.Store
	if settings.LocalStorage != "" {
		if err := os.MkdirAll(settings.LocalStorage, 0o755); err != nil {
			logger.Error("Failed to create local storage directory", "error", err)
			os.Exit(1)
		}
		store = storage.New(nil, "", settings.LocalStorage, logger)
	} else {
		storageClient, err := gcs.NewClient(ctx)
		if err != nil {
			logger.Error("Failed to initialize Storage client", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}()
		store = storage.New(storageClient, settings.StorageBucket, "", logger)
	}

	sender := notify.New(newProvider(ctx, settings, logger),
		settings.TeamApprovalsURL(settings.TeamID, ""), logger)

	driver, stopBrowser := tab.NewChromeDriver(ctx, logger)
	defer stopBrowser()

	tabs := tab.NewManager(driver, jiraHost(settings.JiraURL), logger)
	gate := auth.New(settings.TempoHomeURL(), settings.SessionCookie, settings.AuthTTL, logger)
	extractor := scrape.New(settings.StatusMarkerSelector, settings.MinYield, logger)
	checker := check.New(gate, tabs, extractor, scrape.SimpleTableScan,
		settings.TabLoadTimeout, settings.SettleDelay, logger)

	approvalsURL := settings.TeamApprovalsURL(settings.TeamID, "")

	persistAndReport := func(ctx context.Context, result approval.Result) {
		if err := store.SaveCheck(ctx, &result); err != nil {
			logger.Warn("Failed to record check result", "error", err)
		}
		if result.Success {
			state := &approval.State{
				TeamID:       settings.TeamID,
				LastCheck:    result.Timestamp,
				ProblemUsers: result.ProblemUsers,
			}
			if err := store.SaveState(ctx, state); err != nil {
				logger.Warn("Failed to save state", "error", err)
			}
		}
		if err := sender.Report(ctx, result); err != nil {
			logger.Warn("Failed to send notification", "error", err)
		}
	}

	runCheck := func(ctx context.Context) approval.Result {
		ctx, cancel := context.WithTimeout(ctx, settings.CheckTimeout*checkAttempts)
		defer cancel()

		result := checker.RunWithRetry(ctx, approvalsURL, checkAttempts)
		persistAndReport(ctx, result)
		return result
	}

	var inFlight atomic.Bool

	schedule := check.Schedule{
		Interval: settings.CheckInterval,
		Time:     settings.CheckTime,
		Days:     settings.CheckDays,
	}
	runner := check.NewRunner(checker, schedule, approvalsURL, checkAttempts,
		&inFlight, persistAndReport, logger)
	go runner.Run(ctx)

	// Discovery shares the check's in-flight guard: both drive the same
	// single parsing-tab slot.
	directory := teams.NewDirectory(&teams.DirectoryConfig{
		Gate:        gate,
		Tabs:        tabs,
		Cache:       store,
		Logger:      logger,
		InFlight:    &inFlight,
		TeamsURL:    settings.TeamsPageURL(),
		TeamURL:     settings.TeamURL,
		LoadTimeout: settings.TabLoadTimeout,
		SettleDelay: settings.SettleDelay,
		CacheTTL:    settings.TeamsCacheTTL,
	})

	srv := server.New(&server.Config{
		Run:      runCheck,
		InFlight: &inFlight,
		Store:    store,
		Teams:    directory,
		Logger:   logger,
		BaseURL:  approvalsURL,
		TeamID:   settings.TeamID,
	})

	if err := srv.ListenAndServe(settings.Port); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// newProvider picks the notification channel: webhook when configured,
// Gmail when an address and credentials are available, mock otherwise.
func newProvider(ctx context.Context, settings *config.Settings, logger *slog.Logger) notify.Provider {
	if settings.WebhookURL != "" {
		logger.Info("Using webhook notifications", "url", settings.WebhookURL)
		return notify.NewWebhookProvider(settings.WebhookURL, logger)
	}

	if settings.NotifyEmail != "" {
		service, err := initGmailService(ctx)
		if err != nil {
			logger.Warn("Failed to initialize Gmail service, using mock notifications", "error", err)
			return notify.NewMockProvider(logger)
		}
		logger.Info("Using Gmail notifications", "to", settings.NotifyEmail)
		return notify.NewGmailProvider(service, settings.NotifyEmail, logger)
	}

	logger.Info("Mock notification mode enabled (no WEBHOOK_URL or NOTIFY_EMAIL)")
	return notify.NewMockProvider(logger)
}

func initGmailService(ctx context.Context) (*gmail.Service, error) {
	credsJSON := os.Getenv("GOOGLE_CREDENTIALS_JSON")
	if credsJSON != "" {
		return gmail.NewService(ctx, option.WithCredentialsJSON([]byte(credsJSON)))
	}

	// On Cloud Run, Application Default Credentials carry the service
	// account; it needs the gmail.send scope.
	if isCloudRun(ctx) {
		return gmail.NewService(ctx)
	}

	return nil, errors.New("GOOGLE_CREDENTIALS_JSON required when not running in Cloud Run")
}

// isCloudRun checks if we're running in a GCP environment by querying the
// metadata server.
func isCloudRun(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"http://metadata.google.internal/computeMetadata/v1/project/project-id", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", "Google")

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}

func jiraHost(jiraURL string) string {
	u, err := url.Parse(jiraURL)
	if err != nil {
		return ""
	}
	return u.Host
}
