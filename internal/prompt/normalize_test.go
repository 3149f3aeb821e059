package prompt

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple lowercase", input: "Writing", want: "writing"},
		{name: "trim whitespace", input: "  coding  ", want: "coding"},
		{name: "collapse internal whitespace", input: "Code   Review", want: "code review"},
		{name: "tabs and newlines", input: "code\t\n review", want: "code review"},
		{name: "only whitespace", input: " \t ", want: ""},
		{name: "unicode", input: "  ÉTUDE  Notes ", want: "étude notes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCountChars(t *testing.T) {
	if got := CountChars("héllo"); got != 5 {
		t.Errorf("CountChars() = %d, want 5", got)
	}
}
