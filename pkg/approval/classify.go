package approval

import "strings"

// Status markers as rendered by Tempo, both locales, matched against the
// uppercased status text.
var (
	notSubmittedMarkers = []string{
		"ОТКРЫТ",
		"OPEN",
		"НЕ ОТПРАВЛЕН",
		"NOT SUBMITTED",
	}

	attentionOnlyMarkers = []string{
		"ГОТОВО К ОТПРАВКЕ",
		"ОЖИДАЕТ УТВЕРЖДЕНИЯ",
		"READY TO SEND",
		"AWAITING APPROVAL",
	}
)

// Summary is the classified view of one extraction pass.
type Summary struct {
	AllUsers          []Record
	ProblemUsers      []Record
	NotSubmittedUsers []Record
}

// NormalizeName collapses whitespace runs and lowercases a name for use as
// a deduplication key.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// IsNotSubmitted reports whether a status means the timesheet is still
// open or unsent.
func IsNotSubmitted(status string) bool {
	upper := strings.ToUpper(status)
	for _, marker := range notSubmittedMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

// NeedsAttention reports whether a status needs highlighting: not submitted,
// ready to send, or awaiting approval.
func NeedsAttention(status string) bool {
	if IsNotSubmitted(status) {
		return true
	}
	upper := strings.ToUpper(status)
	for _, marker := range attentionOnlyMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

// Classify deduplicates records and splits them into the two attention
// tiers. Deduplication is first-occurrence-wins on the case-insensitive,
// whitespace-normalized name; multiple strategies may have scanned the
// same row. Filtered views keep first-seen order.
func Classify(records []Record) Summary {
	var s Summary
	seen := make(map[string]struct{}, len(records))

	for _, rec := range records {
		key := NormalizeName(rec.Name)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		s.AllUsers = append(s.AllUsers, rec)
		if NeedsAttention(rec.Status) {
			s.ProblemUsers = append(s.ProblemUsers, rec)
		}
		if IsNotSubmitted(rec.Status) {
			s.NotSubmittedUsers = append(s.NotSubmittedUsers, rec)
		}
	}

	return s
}
