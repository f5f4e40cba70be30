package textutil

import "testing"

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"unsafe separators", "a/b\\c:d*e", "a-b-c-d-e"},
		{"removed characters", `q?u"o<t>e|s`, "quotes"},
		{"whitespace collapse", "  spaced\tout\nname  ", "spaced out name"},
		{"trailing dots", "archive...", "archive"},
		{"empty", "   ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeFileName(tc.input); got != tc.want {
				t.Fatalf("SanitizeFileName(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestTitleize(t *testing.T) {
	if got := Titleize("weekly sync notes"); got != "Weekly Sync Notes" {
		t.Fatalf("unexpected title: %q", got)
	}
	if got := Titleize("  "); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}
