package clean

import (
	"strings"
	"testing"

	"github.com/PolicyDeskAI/policyrag-mvp/engine/domain"
)

func TestClean_PageNumberLines(t *testing.T) {
	c := New()
	got := c.Clean("Access must be reviewed.\n12\nQuarterly reviews are required.")
	if strings.Contains(got, "12") {
		t.Errorf("standalone page number survived: %q", got)
	}
	if !strings.Contains(got, "Access must be reviewed.") {
		t.Errorf("content lost: %q", got)
	}
}

func TestClean_FooterPattern(t *testing.T) {
	c := New(WithFooterPattern(`INFORMATION\s+SECURITY\s+&\s+MANAGEMENT\s+POLICY\s*\d*`))
	got := c.Clean("information security & management policy 4\nPasswords must be rotated.")
	if strings.Contains(strings.ToLower(got), "management policy") {
		t.Errorf("footer survived: %q", got)
	}
	if !strings.Contains(got, "Passwords must be rotated.") {
		t.Errorf("content lost: %q", got)
	}
}

func TestClean_SpacedCapitals(t *testing.T) {
	c := New()
	cases := []struct{ in, want string }{
		{"IN FO RMATIO N", "INFORMATION"},
		{"S C O P E", "SCOPE"},
		// Lowercase boundaries are left alone.
		{"The Policy applies", "The Policy applies"},
	}
	for _, tc := range cases {
		if got := c.Clean(tc.in); got != tc.want {
			t.Errorf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestClean_WhitespaceNormalisation(t *testing.T) {
	c := New()
	got := c.Clean("first   line\twith  tabs\n\n\n\n\nsecond line")
	if strings.Contains(got, "  ") || strings.Contains(got, "\t") {
		t.Errorf("space runs survived: %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("newline runs survived: %q", got)
	}
}

func TestClean_DedupeLines(t *testing.T) {
	c := New()
	got := c.Clean("Company Confidential\nSome policy text.\nCompany Confidential\nMore text.")
	if strings.Count(got, "Company Confidential") != 1 {
		t.Errorf("duplicate line survived: %q", got)
	}
	// First-seen order preserved.
	lines := strings.Split(got, "\n")
	if lines[0] != "Company Confidential" || lines[1] != "Some policy text." {
		t.Errorf("order changed: %q", got)
	}
}

func TestCleanPages_PreservesMetadata(t *testing.T) {
	c := New()
	pages := []domain.Page{
		{Text: "7\nSection text.", Source: "policy.pdf", Number: 7},
	}
	out := c.CleanPages(pages)
	if len(out) != 1 {
		t.Fatalf("got %d pages", len(out))
	}
	if out[0].Source != "policy.pdf" || out[0].Number != 7 {
		t.Errorf("metadata lost: %+v", out[0])
	}
	if out[0].Text != "Section text." {
		t.Errorf("text = %q", out[0].Text)
	}
}
