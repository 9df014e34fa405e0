package sanitize

import "testing"

func TestTaskNameNormal(t *testing.T) {
	input := "Research competitor pricing in the EU market"
	if got := TaskName(input); got != input {
		t.Errorf("normal content modified: %q", got)
	}
}

func TestTaskNameCollapsesLines(t *testing.T) {
	input := "  Draft outline\nfor the report\r\n\tsection 2  "
	want := "Draft outline for the report section 2"
	if got := TaskName(input); got != want {
		t.Errorf("TaskName = %q, want %q", got, want)
	}
}

func TestTaskNameEmpty(t *testing.T) {
	if got := TaskName(" \n\t "); got != "" {
		t.Errorf("TaskName of whitespace = %q, want empty", got)
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"abcdefghij", 4, "abcd..."},
		{"unbounded", 0, "unbounded"},
		{"héllo wörld", 5, "héllo..."},
	}
	for _, tt := range tests {
		if got := Preview(tt.in, tt.n); got != tt.want {
			t.Errorf("Preview(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestSingleLine(t *testing.T) {
	if got := SingleLine("a\nb\r\nc  d"); got != "a b c  d" {
		t.Errorf("SingleLine = %q", got)
	}
}
