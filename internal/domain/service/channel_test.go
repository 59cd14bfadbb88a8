package service

import (
	"strings"
	"testing"
)

func TestDiffChannelEmitsOnlyNewSuffix(t *testing.T) {
	c := NewDiffChannel(nil)

	if got := c.Advance("Hello"); got != "Hello" {
		t.Fatalf("first advance = %q, want %q", got, "Hello")
	}
	if got := c.Advance("Hello world"); got != " world" {
		t.Fatalf("second advance = %q, want %q", got, " world")
	}
	if got := c.Advance("Hello world"); got != "" {
		t.Fatalf("unchanged advance = %q, want empty", got)
	}
	if !c.Active() {
		t.Fatal("channel should be active after emitting")
	}
}

// Feeding the same text twice through a fresh channel pair must reproduce
// the full cleaned text exactly once, no duplicated characters.
func TestDiffChannelNoDoubleEmit(t *testing.T) {
	c := NewDiffChannel(nil)
	raw := ""
	var out strings.Builder
	for _, chunk := range []string{"abc", "def", "", "ghi"} {
		raw += chunk
		out.WriteString(c.Advance(raw))
	}
	if out.String() != "abcdefghi" {
		t.Fatalf("concatenated output = %q, want %q", out.String(), "abcdefghi")
	}
}

// A tag span completing across deltas shrinks the cleaned projection; the
// channel must stay silent instead of emitting stale or negative suffixes.
func TestDiffChannelNonMonotonicProjection(t *testing.T) {
	c := NewDiffChannel(nil)

	if got := c.Advance("keep this   "); got != "keep this" {
		t.Fatalf("advance = %q, want %q", got, "keep this")
	}
	// Raw grew but the cleaned projection did not.
	if got := c.Advance("keep this     "); got != "" {
		t.Fatalf("advance on trimmed growth = %q, want empty", got)
	}
	// Growth past the mark resumes emission.
	if got := c.Advance("keep this too"); got != " too" {
		t.Fatalf("advance after regrowth = %q, want %q", got, " too")
	}
}

func TestDiffChannelTagSpanWithheld(t *testing.T) {
	c := NewDiffChannel(nil)

	first := c.Advance("a<br>")
	if first != "a" {
		t.Fatalf("advance = %q, want %q", first, "a")
	}
	second := c.Advance("a<br>b")
	if second != "\nb" {
		t.Fatalf("advance = %q, want %q", second, "\nb")
	}
}

func TestDiffChannelPostProcessor(t *testing.T) {
	c := NewDiffChannel(strings.ToUpper)

	if got := c.Advance("hi"); got != "HI" {
		t.Fatalf("advance = %q, want %q", got, "HI")
	}
	// Yielded accounting uses pre-post lengths so the transform cannot
	// desynchronize the diff.
	if got := c.Yielded(); got != 2 {
		t.Fatalf("yielded = %d, want 2", got)
	}
	if got := c.Advance("hi there"); got != " THERE" {
		t.Fatalf("advance = %q, want %q", got, " THERE")
	}
}
