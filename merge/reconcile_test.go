package merge

import (
	"reflect"
	"testing"
)

func TestReconcile(t *testing.T) {
	placeholders := Placeholders{
		Names:  []string{"Full Name", "City", "Date", "Logo", "Mail", "Full Name Hebrew"},
		Images: []string{"Logo"},
	}
	headers := []string{"Full Name", "City (main)", "Email"}

	rec := Reconcile(placeholders, headers, DefaultDateAliases)
	want := []struct {
		kind   MatchKind
		header string
	}{
		{MatchExact, "Full Name"},
		{MatchNormalized, "City (main)"},
		{MatchComputed, ""},
		{MatchComputed, ""},
		{MatchUnresolved, ""},
		{MatchUnresolved, ""},
	}
	if len(rec.Matches) != len(want) {
		t.Fatalf("expected %d matches, got %d", len(want), len(rec.Matches))
	}
	for i, w := range want {
		got := rec.Matches[i]
		if got.Kind != w.kind || got.Header != w.header {
			t.Fatalf("match %d (%s): expected %s/%q, got %s/%q", i, got.Placeholder, w.kind, w.header, got.Kind, got.Header)
		}
	}

	if got := rec.Matches[4].Suggestions; !reflect.DeepEqual(got, []string{"Email"}) {
		t.Fatalf("expected Email suggestion for Mail, got %v", got)
	}
	if got := rec.Matches[5].Suggestions; len(got) == 0 || got[0] != "Full Name" {
		t.Fatalf("expected Full Name suggestion, got %v", got)
	}
	if got := rec.Unresolved(); !reflect.DeepEqual(got, []string{"Mail", "Full Name Hebrew"}) {
		t.Fatalf("unexpected unresolved %v", got)
	}
}
