// Package scrape extracts (person, status) records from the rendered Tempo
// approvals page.
package scrape

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"tempo-notifier/pkg/approval"
)

// timesheetLinkPattern matches Tempo's per-person timesheet links.
const timesheetLinkPattern = "#/my-work/timesheet"

// Extractor runs DOM extraction strategies in priority order over a
// rendered page snapshot. The target markup is not controlled by this
// system and changes across Tempo releases and locales, so no single
// strategy is trusted alone.
type Extractor struct {
	markerSelector string
	minYield       int
	logger         *slog.Logger
}

// New creates an extractor. markerSelector is the CSS selector of Tempo's
// status badge element; minYield is the record count below which the next
// strategy is still tried.
func New(markerSelector string, minYield int, logger *slog.Logger) *Extractor {
	if minYield < 1 {
		minYield = 1
	}
	return &Extractor{
		markerSelector: markerSelector,
		minYield:       minYield,
		logger:         logger,
	}
}

type strategy struct {
	name string
	run  func(*Extractor, *goquery.Document) []approval.Record
}

var strategies = []strategy{
	{"table", (*Extractor).tableScan},
	{"span-class", (*Extractor).markerScan},
	{"link", (*Extractor).anchorScan},
}

// Extract parses the snapshot and runs the strategies in order, stopping at
// the first one that yields at least minYield records. Malformed rows are
// skipped, never fatal; the result is empty only when every strategy came
// up empty.
func (e *Extractor) Extract(html string) []approval.Record {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.logger.Warn("Failed to parse page snapshot", "error", err)
		return nil
	}

	var best []approval.Record
	for _, s := range strategies {
		records := s.run(e, doc)
		e.logger.Info("Extraction strategy finished", "strategy", s.name, "records", len(records))

		if len(records) > len(best) {
			best = records
		}
		if len(best) >= e.minYield {
			break
		}
	}

	return best
}

// tableScan walks tbody rows: cell 1 is the name (nested name element
// preferred), cell 2 the status (marker element preferred). Cell 0 is the
// selection checkbox.
func (e *Extractor) tableScan(doc *goquery.Document) []approval.Record {
	var records []approval.Record

	doc.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}

		nameCell := cells.Eq(1)
		name := nameCell.Find("div").First().Text()
		if normalize(name) == "" {
			name = nameCell.Text()
		}

		statusCell := cells.Eq(2)
		status := statusCell.Find(e.markerSelector).First().Text()
		if normalize(status) == "" {
			status = statusCell.Text()
		}

		name = normalize(name)
		status = normalize(status)
		if name == "" || status == "" {
			return
		}

		records = append(records, approval.Record{
			Name:   name,
			Status: status,
			Source: approval.SourceTable,
		})
	})

	return records
}

// markerScan locates every status badge on the page and walks up to the
// enclosing row to recover the paired name.
func (e *Extractor) markerScan(doc *goquery.Document) []approval.Record {
	var records []approval.Record

	doc.Find(e.markerSelector).Each(func(_ int, span *goquery.Selection) {
		status := normalize(span.Text())
		if status == "" {
			return
		}

		row := span.Closest("tr")
		if row.Length() == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}

		nameCell := cells.Eq(1)
		name := nameCell.Find("div").First().Text()
		if normalize(name) == "" {
			name = nameCell.Text()
		}
		name = normalize(name)
		if name == "" {
			return
		}

		records = append(records, approval.Record{
			Name:   name,
			Status: status,
			Source: approval.SourceSpanClass,
		})
	})

	return records
}

// anchorScan locates per-person timesheet links and pairs the link body
// with the status in the third cell of the enclosing row.
func (e *Extractor) anchorScan(doc *goquery.Document) []approval.Record {
	var records []approval.Record

	doc.Find("a[href*='" + timesheetLinkPattern + "']").Each(func(_ int, link *goquery.Selection) {
		name := link.Find("div").First().Text()
		if normalize(name) == "" {
			name = link.Text()
		}
		name = normalize(name)
		if name == "" {
			return
		}

		row := link.Closest("tr")
		if row.Length() == 0 {
			return
		}
		statusCell := row.Find("td:nth-child(3)")
		if statusCell.Length() == 0 {
			return
		}

		status := statusCell.Find(e.markerSelector).First().Text()
		if normalize(status) == "" {
			status = statusCell.Text()
		}
		status = normalize(status)
		if status == "" {
			return
		}

		records = append(records, approval.Record{
			Name:   name,
			Status: status,
			Source: approval.SourceLink,
		})
	})

	return records
}

// normalize collapses whitespace runs to single spaces and trims.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
