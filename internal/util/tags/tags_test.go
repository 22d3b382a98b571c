package tags

import (
	"reflect"
	"testing"
)

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"nil input", nil, nil},
		{"empty input", []string{}, nil},
		{"single tag", []string{"foo"}, []string{"foo"}},
		{"trim whitespace", []string{" foo ", " bar "}, []string{"foo", "bar"}},
		{"remove empty", []string{"foo", "", "bar"}, []string{"foo", "bar"}},
		{"deduplicate", []string{"foo", "bar", "foo"}, []string{"foo", "bar"}},
		{"deduplicate by value", []string{"My Docs", "my-docs", "MY  DOCS"}, []string{"My Docs"}},
		{"all empty", []string{"", " ", "  "}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTags(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeTags(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseCommaSeparated(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"whitespace only", "  ", nil},
		{"single", "foo", []string{"foo"}},
		{"multiple", "foo,bar,baz", []string{"foo", "bar", "baz"}},
		{"with spaces", " foo , bar , baz ", []string{"foo", "bar", "baz"}},
		{"with duplicates", "foo,bar,foo", []string{"foo", "bar"}},
		{"trailing comma", "foo,bar,", []string{"foo", "bar"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCommaSeparated(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseCommaSeparated(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestToValue(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"Finance", "finance"},
		{"  My Docs  ", "my-docs"},
		{"my-docs", "my-docs"},
		{"A\t\tB  c", "a-b-c"},
		{"\u200bLegal", "legal"},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := ToValue(tt.label); got != tt.want {
			t.Errorf("ToValue(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
}

func TestToValueIdempotent(t *testing.T) {
	for _, label := range []string{"  My Docs  ", "Quarterly Reports 2024", "x"} {
		v := ToValue(label)
		if again := ToValue(v); again != v {
			t.Errorf("ToValue(ToValue(%q)) = %q, want %q", label, again, v)
		}
	}
}

func TestColorFor(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"Finance", "#f59e0b"},
		{"Legal", "#14b8a6"},
		{"My Docs", "#f43f5e"},
		{"CV", "#ef4444"},
		{"a", "#f43f5e"},
		{"\u00dcn\u00efc\u00f6d\u00e9", "#3b82f6"},
		{"A very long category label that overflows", "#ef4444"},
		{"", "#10b981"},
	}
	for _, tt := range tests {
		if got := ColorFor(tt.label); got != tt.want {
			t.Errorf("ColorFor(%q) = %s, want %s", tt.label, got, tt.want)
		}
	}
}
