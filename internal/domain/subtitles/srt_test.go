package subtitles

import (
	"strings"
	"testing"
	"time"

	"github.com/podvid/podvid/internal/types"
)

func TestBuild_CumulativeTimeline(t *testing.T) {
	t.Parallel()

	lines := []types.Line{
		{Index: 0, Character: types.Character{Name: "Ann"}, Text: "first"},
		{Index: 1, Character: types.Character{Name: "Bob"}, Text: "second"},
		{Index: 2, Character: types.Character{Name: "Ann"}, Text: "third"},
	}
	durations := []time.Duration{2 * time.Second, 1500 * time.Millisecond, 3 * time.Second}

	cues, err := Build(lines, durations)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(cues) != 3 {
		t.Fatalf("expected 3 cues, got %d", len(cues))
	}

	want := []struct{ start, end time.Duration }{
		{0, 2 * time.Second},
		{2 * time.Second, 3500 * time.Millisecond},
		{3500 * time.Millisecond, 6500 * time.Millisecond},
	}
	for i, w := range want {
		if cues[i].Start != w.start || cues[i].End != w.end {
			t.Fatalf("cue %d: got [%s, %s], want [%s, %s]", i, cues[i].Start, cues[i].End, w.start, w.end)
		}
	}
	if got := cues[2].End; got != 6500*time.Millisecond {
		t.Fatalf("total duration = %s, want 6.5s", got)
	}
}

func TestBuild_ContiguousAndOrdered(t *testing.T) {
	t.Parallel()

	lines := make([]types.Line, 20)
	durations := make([]time.Duration, 20)
	for i := range lines {
		lines[i] = types.Line{Index: i, Text: "x"}
		durations[i] = time.Duration(i+1) * 100 * time.Millisecond
	}

	cues, err := Build(lines, durations)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	seen := map[int]bool{}
	for i, c := range cues {
		if seen[c.Index] {
			t.Fatalf("line index %d appears twice", c.Index)
		}
		seen[c.Index] = true
		if c.End < c.Start {
			t.Fatalf("cue %d ends before it starts", i)
		}
		if i > 0 {
			prev := cues[i-1]
			if c.Index <= prev.Index {
				t.Fatalf("cue indices not strictly increasing at %d", i)
			}
			if c.Start != prev.End {
				t.Fatalf("cue %d not contiguous: starts %s, previous ends %s", i, c.Start, prev.End)
			}
		}
	}
	for i := range lines {
		if !seen[i] {
			t.Fatalf("line index %d missing from cues", i)
		}
	}
}

func TestBuild_EmptyTextKeepsSlot(t *testing.T) {
	t.Parallel()

	lines := []types.Line{
		{Index: 0, Text: ""},
		{Index: 1, Text: "after silence"},
	}
	cues, err := Build(lines, []time.Duration{time.Second, time.Second})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if cues[0].Text != "" {
		t.Fatalf("expected empty cue text, got %q", cues[0].Text)
	}
	if cues[1].Start != time.Second {
		t.Fatalf("silent cue did not occupy its slot: second cue starts at %s", cues[1].Start)
	}
}

func TestBuild_LengthMismatch(t *testing.T) {
	t.Parallel()

	_, err := Build([]types.Line{{Index: 0}}, nil)
	if err == nil {
		t.Fatal("expected error for mismatched lengths")
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"hello   world":           "hello world",
		"  trimmed  ":             "trimmed",
		"keep [laughs] going":     "keep going",
		"[sigh] leading":          "leading",
		"tabs\tand\nnewlines":     "tabs and newlines",
		"ctrl\x00\x1bchars":       "ctrlchars",
		"":                        "",
		"[everything bracketed]":  "",
		"a [x] b [y] c":           "a b c",
		"unicode  état  préservé": "unicode état préservé",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCueText_SpeakerPrefix(t *testing.T) {
	t.Parallel()

	ln := types.Line{Character: types.Character{Name: "Ann"}, Text: "hi  there"}
	if got := CueText(ln); got != "Ann: hi there" {
		t.Fatalf("CueText = %q", got)
	}
	ln.Character.Name = ""
	if got := CueText(ln); got != "hi there" {
		t.Fatalf("CueText without speaker = %q", got)
	}
}

func TestRenderSRT(t *testing.T) {
	t.Parallel()

	cues := []types.SubtitleCue{
		{Index: 0, Start: 0, End: 2 * time.Second, Text: "Ann: first"},
		{Index: 1, Start: 2 * time.Second, End: 3500 * time.Millisecond, Text: "Bob: second"},
	}
	got := RenderSRT(cues)

	want := "1\n00:00:00,000 --> 00:00:02,000\nAnn: first\n" +
		"\n2\n00:00:02,000 --> 00:00:03,500\nBob: second\n"
	if got != want {
		t.Fatalf("RenderSRT mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
	if !strings.HasPrefix(got, "1\n") {
		t.Fatal("SRT index must start at 1")
	}
}

func TestTimestamp(t *testing.T) {
	t.Parallel()

	tests := map[time.Duration]string{
		0:                        "00:00:00,000",
		1500 * time.Millisecond:  "00:00:01,500",
		61 * time.Second:         "00:01:01,000",
		3*time.Hour + 4*time.Minute + 5*time.Second + 6*time.Millisecond: "03:04:05,006",
		-time.Second: "00:00:00,000",
	}
	for in, want := range tests {
		if got := Timestamp(in); got != want {
			t.Errorf("Timestamp(%s) = %q, want %q", in, got, want)
		}
	}
}
