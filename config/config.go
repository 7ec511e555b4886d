// Package config holds the read-only settings for the Tempo approvals checker.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults mirror the production Tempo deployment the checker was written
// against. Everything can be overridden through the environment.
const (
	defaultJiraURL        = "https://jira.example.com"
	defaultTempoBasePath  = "/secure/Tempo.jspa"
	defaultTeamID         = 91
	defaultMarkerSelector = "span.sc-bDDFcn.ioVWtt"

	defaultTabLoadTimeout = 30 * time.Second
	defaultSettleDelay    = 4 * time.Second
	defaultCheckTimeout   = 60 * time.Second
	defaultAuthTTL        = 5 * time.Minute
	defaultTeamsCacheTTL  = 24 * time.Hour
	defaultMinYield       = 2

	defaultCheckTime     = "17:00"
	defaultCheckInterval = "daily"
)

var defaultCheckDays = []string{"mon", "tue", "wed", "thu", "fri"}

// Settings is the externally supplied, read-only configuration consumed by
// every component. Construct it once at process start and thread it through.
type Settings struct {
	JiraURL       string
	TempoBasePath string
	TeamID        int

	// StatusMarkerSelector is the CSS selector of Tempo's status badge
	// element. The class is generated by the page's styling framework and
	// changes across Tempo releases, hence configurable.
	StatusMarkerSelector string

	// MinYield is the minimum record count a strategy must produce before
	// the extractor stops falling through to the next one.
	MinYield int

	TabLoadTimeout time.Duration
	SettleDelay    time.Duration
	CheckTimeout   time.Duration
	AuthTTL        time.Duration
	TeamsCacheTTL  time.Duration

	// SessionCookie is sent verbatim as the Cookie header on the auth
	// probe (e.g. "JSESSIONID=...").
	SessionCookie string

	// Auto-check schedule.
	CheckTime     string   // "HH:MM"
	CheckInterval string   // daily | weekly | monthly
	CheckDays     []string // weekly only: mon..sun

	// Collaborators.
	StorageBucket string
	LocalStorage  string
	NotifyEmail   string
	WebhookURL    string
	BaseURL       string
	Port          string
}

// FromEnv builds Settings from the environment, falling back to defaults.
func FromEnv() *Settings {
	s := &Settings{
		JiraURL:              envOr("JIRA_URL", defaultJiraURL),
		TempoBasePath:        envOr("TEMPO_BASE_PATH", defaultTempoBasePath),
		TeamID:               envIntOr("TEAM_ID", defaultTeamID),
		StatusMarkerSelector: envOr("STATUS_MARKER_SELECTOR", defaultMarkerSelector),
		MinYield:             envIntOr("MIN_YIELD", defaultMinYield),
		TabLoadTimeout:       envDurationOr("TAB_LOAD_TIMEOUT", defaultTabLoadTimeout),
		SettleDelay:          envDurationOr("SETTLE_DELAY", defaultSettleDelay),
		CheckTimeout:         envDurationOr("CHECK_TIMEOUT", defaultCheckTimeout),
		AuthTTL:              envDurationOr("AUTH_TTL", defaultAuthTTL),
		TeamsCacheTTL:        envDurationOr("TEAMS_CACHE_TTL", defaultTeamsCacheTTL),
		SessionCookie:        os.Getenv("SESSION_COOKIE"),
		CheckTime:            envOr("CHECK_TIME", defaultCheckTime),
		CheckInterval:        envOr("CHECK_INTERVAL", defaultCheckInterval),
		CheckDays:            defaultCheckDays,
		StorageBucket:        os.Getenv("STORAGE_BUCKET"),
		LocalStorage:         os.Getenv("LOCAL_STORAGE"),
		NotifyEmail:          os.Getenv("NOTIFY_EMAIL"),
		WebhookURL:           os.Getenv("WEBHOOK_URL"),
		BaseURL:              os.Getenv("BASE_URL"),
		Port:                 envOr("PORT", "8080"),
	}

	if days := os.Getenv("CHECK_DAYS"); days != "" {
		s.CheckDays = strings.Split(strings.ToLower(days), ",")
	}

	return s
}

// TempoHomeURL is the landing page of the Tempo plugin, used by the auth probe.
func (s *Settings) TempoHomeURL() string {
	return s.JiraURL + s.TempoBasePath
}

// TeamApprovalsURL builds the approvals page URL for a team, optionally
// pinned to the week starting at the given ISO date (YYYY-MM-DD).
func (s *Settings) TeamApprovalsURL(teamID int, date string) string {
	base := fmt.Sprintf("%s%s#/teams/team/%d/approvals", s.JiraURL, s.TempoBasePath, teamID)
	if date == "" {
		return base
	}
	return base + "?date=" + date
}

// TeamsPageURL is the page listing all Tempo teams.
func (s *Settings) TeamsPageURL() string {
	return s.JiraURL + s.TempoBasePath + "#/teams"
}

// TeamURL builds the canonical approvals link for a scraped team entry.
func (s *Settings) TeamURL(teamID int) string {
	return s.TeamApprovalsURL(teamID, "")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
