package check

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"tempo-notifier/pkg/approval"
)

// Schedule describes when automatic checks fire.
type Schedule struct {
	// Interval is daily, weekly, or monthly.
	Interval string
	// Time is the wall-clock HH:MM to fire at.
	Time string
	// Days limits daily runs to these weekdays (mon..sun). Empty means
	// every day.
	Days []string
	// Day is the day-of-month for monthly runs (1-28).
	Day int
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// Next returns the first instant strictly after now that matches the
// schedule. An unparseable schedule falls back to 24 hours out rather
// than never firing.
func (s Schedule) Next(now time.Time) time.Time {
	hour, minute, err := parseClock(s.Time)
	if err != nil {
		return now.Add(24 * time.Hour)
	}

	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())

	switch s.Interval {
	case "weekly":
		// Fire on the first listed day; default Monday.
		target := time.Monday
		if len(s.Days) > 0 {
			if wd, ok := weekdayNames[strings.ToLower(s.Days[0])]; ok {
				target = wd
			}
		}
		for at.Weekday() != target || !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return at

	case "monthly":
		day := s.Day
		if day < 1 || day > 28 {
			day = 1
		}
		at = time.Date(now.Year(), now.Month(), day, hour, minute, 0, 0, now.Location())
		if !at.After(now) {
			at = at.AddDate(0, 1, 0)
		}
		return at

	default: // daily
		allowed := make(map[time.Weekday]bool)
		for _, d := range s.Days {
			if wd, ok := weekdayNames[strings.ToLower(d)]; ok {
				allowed[wd] = true
			}
		}
		for !at.After(now) || (len(allowed) > 0 && !allowed[at.Weekday()]) {
			at = at.AddDate(0, 0, 1)
		}
		return at
	}
}

func parseClock(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("bad clock time %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("bad hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("bad minute in %q", s)
	}
	return hour, minute, nil
}

// Runner fires scheduled checks and hands results to report. A single
// in-flight guard is shared with the manual trigger so a scheduled run and
// a manual one never race the parsing tab.
type Runner struct {
	checker  *Checker
	schedule Schedule
	url      string
	attempts uint
	inFlight *atomic.Bool
	report   func(context.Context, approval.Result)
	logger   *slog.Logger
}

// NewRunner wires a scheduled check loop. report may be nil.
func NewRunner(checker *Checker, schedule Schedule, url string, attempts uint,
	inFlight *atomic.Bool, report func(context.Context, approval.Result), logger *slog.Logger,
) *Runner {
	return &Runner{
		checker:  checker,
		schedule: schedule,
		url:      url,
		attempts: attempts,
		inFlight: inFlight,
		report:   report,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled, firing a check at each scheduled
// instant.
func (r *Runner) Run(ctx context.Context) {
	for {
		next := r.schedule.Next(time.Now())
		r.logger.Info("Next automatic check scheduled", "at", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		r.fire(ctx)
	}
}

func (r *Runner) fire(ctx context.Context) {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.logger.Warn("Skipping scheduled check: another check is in flight")
		return
	}
	defer r.inFlight.Store(false)

	result := r.checker.RunWithRetry(ctx, r.url, r.attempts)
	r.logger.Info("Scheduled check result", "summary", Describe(result))

	if r.report != nil {
		r.report(ctx, result)
	}
}
