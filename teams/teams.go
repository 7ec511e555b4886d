// Package teams discovers Tempo teams from the rendered teams page.
package teams

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"tempo-notifier/pkg/approval"
)

// teamIDPattern pulls the numeric id out of a team route like
// "#/teams/team/91" or "#/teams/team/91/approvals".
var teamIDPattern = regexp.MustCompile(`/team/(\d+)`)

const maxNameLen = 80

// Parse extracts the team list from a teams-page snapshot. The link scan
// is authoritative; the table scan only supplements it when the page
// renders teams without per-team links (older Tempo skins do). Teams are
// deduplicated by id and sorted by id.
func Parse(raw string) []approval.Team {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil
	}

	byID := make(map[int]approval.Team)

	linkScan(doc, byID)
	if len(byID) < 20 {
		tableScan(doc, byID)
	}

	teams := make([]approval.Team, 0, len(byID))
	for _, t := range byID {
		teams = append(teams, t)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].ID < teams[j].ID })

	return teams
}

func linkScan(doc *goquery.Document, byID map[int]approval.Team) {
	doc.Find(`a[href*="#/teams/team/"]`).Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		id, ok := teamID(href)
		if !ok {
			return
		}
		if _, seen := byID[id]; seen {
			return
		}

		name := cleanName(link.Text(), id)
		if name == "" {
			// Some skins put the name next to the link, not inside it.
			name = cleanName(link.Parent().Text(), id)
		}
		if name == "" {
			name = "Team " + strconv.Itoa(id)
		}

		byID[id] = approval.Team{
			ID:     id,
			Name:   name,
			URL:    href,
			Source: approval.SourceLink,
		}
	})
}

func tableScan(doc *goquery.Document, byID map[int]approval.Team) {
	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		link := row.Find(`a[href*="/team/"]`).First()
		href, _ := link.Attr("href")
		id, ok := teamID(href)
		if !ok {
			return
		}
		if _, seen := byID[id]; seen {
			return
		}

		name := cleanName(row.Find("td").First().Text(), id)
		if name == "" {
			name = "Team " + strconv.Itoa(id)
		}

		byID[id] = approval.Team{
			ID:     id,
			Name:   name,
			URL:    href,
			Source: approval.SourceTable,
		}
	})
}

func teamID(href string) (int, bool) {
	m := teamIDPattern.FindStringSubmatch(href)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// cleanName normalizes whitespace, strips a leading/trailing bare id, and
// truncates runaway strings that mean the scan grabbed a whole container.
// Truncation counts runes, not bytes: Cyrillic team names must never be
// cut mid-sequence.
func cleanName(s string, id int) string {
	name := strings.Join(strings.Fields(s), " ")
	idStr := strconv.Itoa(id)
	name = strings.TrimSpace(strings.TrimPrefix(name, idStr))
	name = strings.TrimSpace(strings.TrimSuffix(name, idStr))
	if utf8.RuneCountInString(name) > maxNameLen {
		runes := []rune(name)
		name = strings.TrimSpace(string(runes[:maxNameLen]))
	}
	return name
}

// Find returns the team with the given id.
func Find(teams []approval.Team, id int) (approval.Team, bool) {
	for _, t := range teams {
		if t.ID == id {
			return t, true
		}
	}
	return approval.Team{}, false
}

// Filter returns teams whose name contains the query, case-insensitively.
// An empty query returns everything.
func Filter(teams []approval.Team, query string) []approval.Team {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return teams
	}
	var out []approval.Team
	for _, t := range teams {
		if strings.Contains(strings.ToLower(t.Name), query) {
			out = append(out, t)
		}
	}
	return out
}
