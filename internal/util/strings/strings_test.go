package strings

import "testing"

func TestPluralize(t *testing.T) {
	tests := []struct {
		count int64
		want  string
	}{
		{0, "files"},
		{1, "file"},
		{2, "files"},
	}
	for _, tt := range tests {
		if got := Pluralize("file", tt.count); got != tt.want {
			t.Errorf("Pluralize(file, %d) = %q, want %q", tt.count, got, tt.want)
		}
	}
}
