package utils

import "testing"

func TestSanitizeJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"fencedJSON", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plainFence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"noFence", `{"a":1}`, `{"a":1}`},
		{"whitespace", "  \n{\"a\":1}\n  ", `{"a":1}`},
		{"empty", "", ""},
		{"fenceOnly", "```json\n```", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeJSON(tt.in); got != tt.want {
				t.Errorf("SanitizeJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
