package approval

import (
	"testing"
)

func TestClassifyStatusTiers(t *testing.T) {
	tests := []struct {
		status           string
		wantProblem      bool
		wantNotSubmitted bool
	}{
		{"Открыт", true, true},
		{"OPEN", true, true},
		{"Не отправлен", true, true},
		{"NOT SUBMITTED", true, true},
		{"not submitted", true, true},
		{"Ожидает утверждения", true, false},
		{"AWAITING APPROVAL", true, false},
		{"Готово к отправке", true, false},
		{"READY TO SEND", true, false},
		{"Готов", false, false},
		{"READY", false, false},
		{"Approved", false, false},
		{"Закрыт", false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			if got := NeedsAttention(tt.status); got != tt.wantProblem {
				t.Errorf("NeedsAttention(%q) = %v, want %v", tt.status, got, tt.wantProblem)
			}
			if got := IsNotSubmitted(tt.status); got != tt.wantNotSubmitted {
				t.Errorf("IsNotSubmitted(%q) = %v, want %v", tt.status, got, tt.wantNotSubmitted)
			}
		})
	}
}

func TestClassifyDeduplicatesFirstSeenWins(t *testing.T) {
	records := []Record{
		{Name: "Ivan Petrov", Status: "Открыт", Source: SourceTable},
		{Name: "ivan  petrov", Status: "Готов", Source: SourceSpanClass},
		{Name: "Anna Smirnova", Status: "Готов", Source: SourceTable},
		{Name: "ANNA SMIRNOVA", Status: "Открыт", Source: SourceLink},
	}

	s := Classify(records)

	if len(s.AllUsers) != 2 {
		t.Fatalf("expected 2 unique users, got %d: %v", len(s.AllUsers), s.AllUsers)
	}
	if s.AllUsers[0].Status != "Открыт" {
		t.Errorf("first occurrence should win: got status %q", s.AllUsers[0].Status)
	}
	// Anna's first occurrence was "Готов", so she must not be a problem user.
	if len(s.ProblemUsers) != 1 || s.ProblemUsers[0].Name != "Ivan Petrov" {
		t.Errorf("expected only Ivan Petrov as problem user, got %v", s.ProblemUsers)
	}
}

func TestClassifyIdempotent(t *testing.T) {
	records := []Record{
		{Name: "Ivan Petrov", Status: "Открыт"},
		{Name: "Anna Smirnova", Status: "Ожидает утверждения"},
		{Name: "Pavel Orlov", Status: "Готов"},
	}

	first := Classify(records)
	second := Classify(first.AllUsers)

	if len(first.AllUsers) != len(second.AllUsers) {
		t.Fatalf("classification is not idempotent: %d vs %d users", len(first.AllUsers), len(second.AllUsers))
	}
	for i := range first.AllUsers {
		if first.AllUsers[i] != second.AllUsers[i] {
			t.Errorf("user %d differs after reclassification: %v vs %v", i, first.AllUsers[i], second.AllUsers[i])
		}
	}
}

func TestClassifySubsetInvariant(t *testing.T) {
	records := []Record{
		{Name: "Ivan Petrov", Status: "Открыт"},
		{Name: "Anna Smirnova", Status: "Ожидает утверждения"},
		{Name: "Pavel Orlov", Status: "Готов"},
		{Name: "Olga Volkova", Status: "NOT SUBMITTED"},
		{Name: "Dmitry Kozlov", Status: "READY TO SEND"},
	}

	s := Classify(records)

	inAll := make(map[string]bool)
	for _, u := range s.AllUsers {
		inAll[u.Name] = true
	}
	inProblem := make(map[string]bool)
	for _, u := range s.ProblemUsers {
		if !inAll[u.Name] {
			t.Errorf("problem user %q not in AllUsers", u.Name)
		}
		inProblem[u.Name] = true
	}
	for _, u := range s.NotSubmittedUsers {
		if !inProblem[u.Name] {
			t.Errorf("not-submitted user %q not in ProblemUsers", u.Name)
		}
	}

	if len(s.AllUsers) != 5 || len(s.ProblemUsers) != 4 || len(s.NotSubmittedUsers) != 2 {
		t.Errorf("unexpected tier sizes: all=%d problem=%d notSubmitted=%d",
			len(s.AllUsers), len(s.ProblemUsers), len(s.NotSubmittedUsers))
	}
}

func TestClassifyPreservesOrder(t *testing.T) {
	records := []Record{
		{Name: "C Person", Status: "Открыт"},
		{Name: "A Person", Status: "Готов"},
		{Name: "B Person", Status: "OPEN"},
	}

	s := Classify(records)

	wantAll := []string{"C Person", "A Person", "B Person"}
	for i, want := range wantAll {
		if s.AllUsers[i].Name != want {
			t.Errorf("AllUsers[%d] = %q, want %q", i, s.AllUsers[i].Name, want)
		}
	}

	wantProblem := []string{"C Person", "B Person"}
	for i, want := range wantProblem {
		if s.ProblemUsers[i].Name != want {
			t.Errorf("ProblemUsers[%d] = %q, want %q", i, s.ProblemUsers[i].Name, want)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ivan Petrov", "ivan petrov"},
		{"  ivan   PETROV  ", "ivan petrov"},
		{"ivan\tpetrov", "ivan petrov"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
