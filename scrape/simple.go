package scrape

import (
	"strings"

	"golang.org/x/net/html"

	"tempo-notifier/pkg/approval"
)

// SimpleTableScan is the last-ditch extraction pass: a single walk over the
// raw node tree that pairs the second and third cell of every table row.
// It runs without CSS selector machinery, which keeps it working when the
// page's class names have rotated out from under the main strategies.
func SimpleTableScan(raw string) []approval.Record {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil
	}

	var records []approval.Record

	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			if rec, ok := rowRecord(n); ok {
				records = append(records, rec)
			}
			// Rows do not nest; no need to descend further.
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	return records
}

// rowRecord reads a tr's cells as (checkbox, name, status, ...). A real
// person name contains a space and more than three characters; anything
// else is a header or layout row.
func rowRecord(row *html.Node) (approval.Record, bool) {
	var cells []*html.Node
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
			cells = append(cells, c)
		}
	}
	if len(cells) < 3 {
		return approval.Record{}, false
	}

	name := normalize(nodeText(cells[1]))
	status := normalize(nodeText(cells[2]))

	if !strings.Contains(name, " ") || len(name) <= 3 || status == "" {
		return approval.Record{}, false
	}

	return approval.Record{
		Name:   name,
		Status: status,
		Source: approval.SourceTable,
	}, true
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return b.String()
}
