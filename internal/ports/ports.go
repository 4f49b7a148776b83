package ports

import (
	"context"
	"time"

	"github.com/podvid/podvid/internal/types"
)

// ScriptSource delivers ordered dialogue lines and resolves their audio
// references to bytes.
type ScriptSource interface {
	Lines(ctx context.Context, scriptID string, limit int) ([]types.Line, error)
	DownloadAudio(ctx context.Context, audioRef string) ([]byte, error)
	UpdateStatus(ctx context.Context, scriptID, videoURL string) error
}

// ImageGenerator turns a prompt into image bytes.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// Renderer is the external media tool boundary. Every method is a single
// subprocess invocation with a deterministic output path.
type Renderer interface {
	RenderSegment(ctx context.Context, spec types.RenderSpec) error
	Concat(ctx context.Context, inputs []string, outPath string) error
	MuxSubtitles(ctx context.Context, videoPath, srtPath, outPath string) error
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
	Silence(ctx context.Context, d time.Duration, outPath string) error
	PlaceholderImage(ctx context.Context, geo types.Geometry, outPath string) error
}

// Uploader delivers a finished artifact to a remote store. Retried uploads
// of the same artifact must overwrite, not duplicate.
type Uploader interface {
	Upload(ctx context.Context, path string) (remoteURL string, err error)
}
