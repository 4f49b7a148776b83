package types

import (
	"fmt"
	"time"
)

// Character describes one speaker as delivered by the script source.
type Character struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Gender            string `json:"gender"`
	ReferenceAudioURL string `json:"referenceAudioUrl,omitempty"`
}

// Line is one dialogue unit. Index is the sole ordering key through the
// whole pipeline; lines are immutable once read from the script source.
type Line struct {
	Index     int
	ID        string
	Character Character
	Text      string
	AudioRef  string
}

// AudioAsset is a downloaded, probed audio file for one line. Placeholder
// marks substituted silence (skip-failed-lines policy).
type AudioAsset struct {
	LineIndex   int
	Path        string
	Duration    time.Duration
	Placeholder bool
}

// SubtitleCue is one timed subtitle entry. Cues are contiguous: the start
// of cue i equals the end of cue i-1.
type SubtitleCue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Segment is one rendered clip corresponding to exactly one line.
type Segment struct {
	LineIndex int
	Path      string
}

type Geometry struct {
	Width        int
	Height       int
	CaptionSize  int
	CaptionMargV int
}

var (
	Horizontal = Geometry{Width: 1920, Height: 1080, CaptionSize: 20, CaptionMargV: 30}
	Vertical   = Geometry{Width: 1080, Height: 1920, CaptionSize: 10, CaptionMargV: 30}
)

func ParseGeometry(s string) (Geometry, error) {
	switch s {
	case "horizontal", "":
		return Horizontal, nil
	case "vertical":
		return Vertical, nil
	}
	return Geometry{}, fmt.Errorf("unknown video format %q (want horizontal or vertical)", s)
}

func (g Geometry) String() string {
	if g.Width >= g.Height {
		return "horizontal"
	}
	return "vertical"
}

// RenderSpec is the fixed render-invocation contract: one input image, one
// input audio, one deterministic output path.
type RenderSpec struct {
	ImagePath string
	AudioPath string
	OutPath   string
	Geometry  Geometry
	FPS       int

	// Caption, when non-empty, is burned into the segment's frames.
	Caption string
}
