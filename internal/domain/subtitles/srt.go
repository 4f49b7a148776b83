package subtitles

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/podvid/podvid/internal/types"
)

var bracketed = regexp.MustCompile(`\[[^\[\]]*\]`)

// Build derives the cue timeline from ordered lines and their probed audio
// durations. Start times are cumulative sums, so cues are contiguous and
// non-overlapping; a line with empty text still occupies its slot.
func Build(lines []types.Line, durations []time.Duration) ([]types.SubtitleCue, error) {
	if len(lines) != len(durations) {
		return nil, fmt.Errorf("subtitles: %d lines but %d durations", len(lines), len(durations))
	}
	cues := make([]types.SubtitleCue, 0, len(lines))
	var at time.Duration
	for i, ln := range lines {
		if durations[i] < 0 {
			return nil, fmt.Errorf("subtitles: negative duration %s for line %d", durations[i], ln.Index)
		}
		cues = append(cues, types.SubtitleCue{
			Index: ln.Index,
			Start: at,
			End:   at + durations[i],
			Text:  CueText(ln),
		})
		at += durations[i]
	}
	return cues, nil
}

// CueText is the display form of a line: normalized text with the speaker
// name prefixed when one is present.
func CueText(ln types.Line) string {
	text := Normalize(ln.Text)
	name := strings.TrimSpace(ln.Character.Name)
	if name == "" {
		return text
	}
	return name + ": " + text
}

// Normalize strips control characters and [bracketed] stage directions and
// collapses internal whitespace.
func Normalize(s string) string {
	s = bracketed.ReplaceAllString(s, " ")
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// RenderSRT serializes cues as a numbered SRT document, index starting at 1.
func RenderSRT(cues []types.SubtitleCue) string {
	var b strings.Builder
	for i, c := range cues {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", i+1, Timestamp(c.Start), Timestamp(c.End), c.Text)
	}
	return b.String()
}

// Timestamp formats a duration as HH:MM:SS,mmm.
func Timestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
