package filter

import (
	"reflect"
	"testing"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		file   string
		expect bool
	}{
		{"empty config matches", Config{}, "a.pdf", true},
		{"include hit", Config{Include: []string{"*.pdf"}}, "report.pdf", true},
		{"include miss", Config{Include: []string{"*.pdf"}}, "notes.md", false},
		{"include is case-insensitive", Config{Include: []string{"*.pdf"}}, "REPORT.PDF", true},
		{"include matches base name", Config{Include: []string{"*.md"}}, "docs/readme.md", true},
		{"exclude wins over include", Config{Include: []string{"*.pdf"}, Exclude: []string{"draft*"}}, "draft-1.pdf", false},
		{"search all terms", Config{Search: []string{"q3", "final"}}, "Q3-report-FINAL.pdf", true},
		{"search missing term", Config{Search: []string{"q3", "final"}}, "q3-draft.pdf", false},
		{"bad pattern matches nothing", Config{Include: []string{"["}}, "a.pdf", false},
		{"double star crosses directories", Config{Include: []string{"reports/**/*.pdf"}}, "reports/2024/q3/a.pdf", true},
		{"double star stays under prefix", Config{Include: []string{"reports/**/*.pdf"}}, "archive/a.pdf", false},
		{"exclude whole subtree", Config{Exclude: []string{"drafts/**"}}, "drafts/old/x.md", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Match(tt.file); got != tt.expect {
				t.Errorf("Match(%q) = %v, want %v", tt.file, got, tt.expect)
			}
		})
	}
}

func TestApply(t *testing.T) {
	files := []string{"a.pdf", "b.md", "c.pdf", "draft.pdf"}
	cfg := Config{Include: []string{"*.pdf"}, Exclude: []string{"draft*"}}

	got := Apply(files, func(s string) string { return s }, cfg)
	want := []string{"a.pdf", "c.pdf"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Apply() = %v, want %v", got, want)
	}

	if got := Apply(files, func(s string) string { return s }, Config{}); len(got) != len(files) {
		t.Errorf("empty config dropped items: %v", got)
	}
}

func TestParsePatternList(t *testing.T) {
	tests := map[string][]string{
		"":               nil,
		"*.pdf":          {"*.pdf"},
		" *.pdf , *.md ": {"*.pdf", "*.md"},
		"a,,b":           {"a", "b"},
	}
	for in, want := range tests {
		if got := ParsePatternList(in); !reflect.DeepEqual(got, want) {
			t.Errorf("ParsePatternList(%q) = %v, want %v", in, got, want)
		}
	}
}
