package sanitize

import "testing"

func TestField(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Normal field",
			input:    "Finance",
			expected: "Finance",
		},
		{
			name:     "Field with whitespace",
			input:    "  My Docs  ",
			expected: "My Docs",
		},
		{
			name:     "Field with invisible chars",
			input:    "Fin\u200Bance",
			expected: "Finance",
		},
		{
			name:     "Only invisible chars",
			input:    "\u200B\uFEFF ",
			expected: "",
		},
		{
			name:     "Empty field",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Field(tt.input)
			if result != tt.expected {
				t.Errorf("Field() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestLine(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"CRLF", "report\r\nfinal.pdf", "report final.pdf"},
		{"Mixed spaces and tabs", "a \t  \t b", "a b"},
		{"Multiple newlines", "line1\n\n\nline2", "line1 line2"},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Line(tt.input)
			if result != tt.expected {
				t.Errorf("Line() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestRemoveInvisibleChars(t *testing.T) {
	input := "\u200B\u200C\u200D\uFEFF\u00ADtest\u2060\u180E"
	expected := "test"
	result := removeInvisibleChars(input)
	if result != expected {
		t.Errorf("removeInvisibleChars() = %q, want %q", result, expected)
	}
}
