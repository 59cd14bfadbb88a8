package service

import "testing"

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain passthrough", "hello world", "hello world"},
		{"script span removed", "before<script>var x = 1;</script>after", "beforeafter"},
		{"script span case-insensitive", "a<SCRIPT src='x'>y</ScRiPt >b", "ab"},
		{"script span across newlines", "a<script>\nline1\nline2\n</script>b", "ab"},
		{"style span removed", "a<style type=\"text/css\">p {}</style>b", "ab"},
		{"br becomes newline", "line one<br>line two", "line one\nline two"},
		{"br self-closing", "one<br/>two<br />three", "one\ntwo\nthree"},
		{"close p becomes newline", "<p>para</p>next", "<p>para\nnext"},
		{"collapse three newlines", "a\n\n\nb", "a\n\nb"},
		{"collapse many newlines", "a\n\n\n\n\n\nb", "a\n\nb"},
		{"trim each line", "  a  \n\tb\t\nc", "a\nb\nc"},
		{"strip edge newlines", "\n\nmiddle\n\n", "middle"},
		{"tags then collapse", "a<br><br><br>b", "a\n\nb"},
		{"whitespace only", "   \n\t\n  ", ""},
		{"unicode space trimmed", " padded ", "padded"},
		{"open p kept", "keep <p> and <div>", "keep <p> and <div>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.in); got != tt.want {
				t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// The cleaner runs over the full accumulator each time, so a tag span split
// across two deltas must still disappear once the closing half arrives.
func TestCleanTextSpanAcrossDeltas(t *testing.T) {
	first := "safe <script>bad"
	full := first + " stuff</script> more"

	if got := CleanText(full); got != "safe  more" {
		t.Fatalf("CleanText(%q) = %q, want %q", full, got, "safe  more")
	}
}
