package teams

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"tempo-notifier/pkg/approval"
)

func TestParseLinkScan(t *testing.T) {
	page := `<html><body>
<a href="/secure/Tempo.jspa#/teams/team/91">Platform Team</a>
<a href="/secure/Tempo.jspa#/teams/team/7/approvals">QA   Team</a>
<a href="/secure/Tempo.jspa#/teams/team/91">Platform Team duplicate</a>
<a href="/secure/Tempo.jspa#/teams">not a team link</a>
</body></html>`

	teams := Parse(page)

	if len(teams) != 2 {
		t.Fatalf("len(teams) = %d, want 2", len(teams))
	}
	// Sorted by id, deduplicated first-seen.
	if teams[0].ID != 7 || teams[0].Name != "QA Team" {
		t.Errorf("teams[0] = %+v", teams[0])
	}
	if teams[1].ID != 91 || teams[1].Name != "Platform Team" {
		t.Errorf("teams[1] = %+v", teams[1])
	}
	if teams[1].Source != approval.SourceLink {
		t.Errorf("source = %q, want %q", teams[1].Source, approval.SourceLink)
	}
}

func TestParseNameFromParent(t *testing.T) {
	page := `<html><body>
<div class="team-row">Data Science <a href="#/teams/team/12"></a></div>
</body></html>`

	teams := Parse(page)
	if len(teams) != 1 {
		t.Fatalf("len(teams) = %d, want 1", len(teams))
	}
	if teams[0].Name != "Data Science" {
		t.Errorf("name = %q, want Data Science", teams[0].Name)
	}
}

func TestParseTableSupplementsSparseLinkScan(t *testing.T) {
	page := `<html><body>
<a href="#/teams/team/3">Linked Team</a>
<table><tbody>
<tr><td>Tabular Team</td><td><a href="/rest/tempo/team/44">open</a></td></tr>
<tr><td>Linked Team</td><td><a href="/rest/tempo/team/3">open</a></td></tr>
</tbody></table>
</body></html>`

	teams := Parse(page)

	if len(teams) != 2 {
		t.Fatalf("len(teams) = %d, want 2", len(teams))
	}
	if teams[0].ID != 3 || teams[0].Source != approval.SourceLink {
		t.Errorf("teams[0] = %+v, want link-sourced team 3", teams[0])
	}
	if teams[1].ID != 44 || teams[1].Name != "Tabular Team" || teams[1].Source != approval.SourceTable {
		t.Errorf("teams[1] = %+v", teams[1])
	}
}

func TestParseSkipsTableWhenLinkScanRich(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 1; i <= 25; i++ {
		fmt.Fprintf(&b, `<a href="#/teams/team/%d">Team %d Name</a>`, i, i)
	}
	b.WriteString(`<table><tbody><tr><td>Phantom</td><td><a href="/rest/tempo/team/99">x</a></td></tr></tbody></table>`)
	b.WriteString("</body></html>")

	teams := Parse(b.String())

	if len(teams) != 25 {
		t.Fatalf("len(teams) = %d, want 25 (table scan skipped)", len(teams))
	}
	if _, ok := Find(teams, 99); ok {
		t.Error("table-only team should not appear when the link scan is rich")
	}
}

func TestCleanNameTruncatesContainers(t *testing.T) {
	long := strings.Repeat("Container Text ", 20)
	page := `<html><body><a href="#/teams/team/5">` + long + `</a></body></html>`

	teams := Parse(page)
	if len(teams) != 1 {
		t.Fatalf("len(teams) = %d, want 1", len(teams))
	}
	if utf8.RuneCountInString(teams[0].Name) > 80 {
		t.Errorf("name runes = %d, want <= 80", utf8.RuneCountInString(teams[0].Name))
	}
}

func TestCleanNameTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("Отдел Разработки ", 20)
	page := `<html><body><a href="#/teams/team/6">` + long + `</a></body></html>`

	teams := Parse(page)
	if len(teams) != 1 {
		t.Fatalf("len(teams) = %d, want 1", len(teams))
	}
	name := teams[0].Name
	if !utf8.ValidString(name) {
		t.Errorf("truncated name is not valid UTF-8: %q", name)
	}
	if utf8.RuneCountInString(name) > 80 {
		t.Errorf("name runes = %d, want <= 80", utf8.RuneCountInString(name))
	}
}

func TestFindAndFilter(t *testing.T) {
	list := []approval.Team{
		{ID: 7, Name: "QA Team"},
		{ID: 91, Name: "Platform Team"},
	}

	if _, ok := Find(list, 91); !ok {
		t.Error("Find(91) should succeed")
	}
	if _, ok := Find(list, 8); ok {
		t.Error("Find(8) should fail")
	}

	if got := Filter(list, "platform"); len(got) != 1 || got[0].ID != 91 {
		t.Errorf("Filter(platform) = %+v", got)
	}
	if got := Filter(list, ""); len(got) != 2 {
		t.Errorf("Filter(empty) = %+v, want everything", got)
	}
}
