package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/podvid/podvid/internal/domain/script"
	"github.com/podvid/podvid/internal/domain/subtitles"
	"github.com/podvid/podvid/internal/ports"
	"github.com/podvid/podvid/internal/types"
)

// Stage names the pipeline phase currently executing. The task layer maps
// these onto job statuses.
type Stage string

const (
	StageFetching      Stage = "fetching"
	StageRendering     Stage = "rendering"
	StageConcatenating Stage = "concatenating"
	StageUploading     Stage = "uploading"
)

type Deps struct {
	Source ports.ScriptSource
	Images ports.ImageGenerator // optional; nil forces the placeholder cover
	Video  ports.Renderer
	Upload ports.Uploader // optional; nil skips delivery
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase { return Usecase{d: d} }

type Input struct {
	ScriptID   string
	OutputPath string // final artifact; the subtitle document sits alongside it
	WorkDir    string // job-scoped scratch dir, owned exclusively by this run

	Geometry types.Geometry
	FPS      int

	MaxLines            int
	BurnSubtitles       bool
	SkipImageGeneration bool

	DownloadWorkers int
	RenderWorkers   int
	BatchSize       int

	FetchRetries    int
	FetchRetryDelay time.Duration

	RenderTimeout time.Duration
	ConcatTimeout time.Duration

	// SkipFailedLines substitutes silence for lines whose audio cannot be
	// fetched instead of failing the whole job.
	SkipFailedLines     bool
	PlaceholderDuration time.Duration

	UploadMandatory bool

	Logf     func(format string, args ...any)
	Progress func(stage Stage, percent int, message string)
}

type Result struct {
	VideoPath    string
	SubtitlePath string // empty when captions were burned in
	Duration     time.Duration
	RemoteURL    string
	Warnings     []string
}

// Run executes the whole assembly: fetch audio (parallel), build the
// subtitle timeline (sequential), render segments (parallel), concatenate
// in batches, finalize atomically, and optionally upload.
func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	logf := in.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	progress := in.Progress
	if progress == nil {
		progress = func(Stage, int, string) {}
	}

	for _, dir := range []string{"audio", "images", "segments", "batches"} {
		if err := os.MkdirAll(filepath.Join(in.WorkDir, dir), 0o755); err != nil {
			return Result{}, fmt.Errorf("prepare workspace: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(in.OutputPath), 0o755); err != nil {
		return Result{}, fmt.Errorf("prepare output dir: %w", err)
	}

	progress(StageFetching, 5, "fetching script lines")
	lines, err := u.d.Source.Lines(ctx, in.ScriptID, in.MaxLines)
	if err != nil {
		return Result{}, fmt.Errorf("fetch script %s: %w", in.ScriptID, err)
	}
	if len(lines) == 0 {
		return Result{}, fmt.Errorf("script %s has no lines", in.ScriptID)
	}
	logf("script %s: %d lines", in.ScriptID, len(lines))

	progress(StageFetching, 10, "downloading audio")
	assets, warnings, err := u.fetchAudio(ctx, in, lines)
	if err != nil {
		return Result{}, err
	}
	var total time.Duration
	for _, a := range assets {
		total += a.Duration
	}
	logf("audio fetched: %d assets, %s total", len(assets), total.Round(time.Millisecond))

	progress(StageFetching, 35, "preparing cover image")
	coverPath, coverWarn := u.coverImage(ctx, in, lines, logf)
	if coverWarn != "" {
		warnings = append(warnings, coverWarn)
	}

	progress(StageFetching, 45, "building subtitles")
	durations := make([]time.Duration, len(assets))
	for i, a := range assets {
		durations[i] = a.Duration
	}
	cues, err := subtitles.Build(lines, durations)
	if err != nil {
		return Result{}, err
	}

	// The subtitle document is staged in the workdir until the video
	// exists; a failed job must not leave an orphan .srt in the output dir.
	var srtDoc []byte
	workSrt := ""
	if !in.BurnSubtitles {
		srtDoc = []byte(subtitles.RenderSRT(cues))
		workSrt = filepath.Join(in.WorkDir, "captions.srt")
		if err := os.WriteFile(workSrt, srtDoc, 0o644); err != nil {
			return Result{}, fmt.Errorf("write subtitles: %w", err)
		}
	}

	progress(StageRendering, 50, "rendering segments")
	segments, err := u.renderSegments(ctx, in, lines, assets, cues, coverPath)
	if err != nil {
		return Result{}, err
	}
	logf("rendered %d segments", len(segments))

	progress(StageConcatenating, 85, "concatenating segments")
	if err := u.concatenate(ctx, in, segments, workSrt); err != nil {
		return Result{}, err
	}
	logf("final artifact: %s", in.OutputPath)

	subtitlePath := ""
	if !in.BurnSubtitles {
		subtitlePath = strings.TrimSuffix(in.OutputPath, filepath.Ext(in.OutputPath)) + ".srt"
		if err := os.WriteFile(subtitlePath, srtDoc, 0o644); err != nil {
			return Result{}, fmt.Errorf("write subtitles: %w", err)
		}
		logf("subtitles written: %s", subtitlePath)
	}

	res := Result{
		VideoPath:    in.OutputPath,
		SubtitlePath: subtitlePath,
		Duration:     total,
		Warnings:     warnings,
	}

	if u.d.Upload != nil {
		progress(StageUploading, 95, "uploading artifact")
		url, err := u.d.Upload.Upload(ctx, in.OutputPath)
		if err != nil {
			if in.UploadMandatory {
				return Result{}, &UploadError{Err: err}
			}
			warnings = append(warnings, fmt.Sprintf("upload failed (best-effort): %v", err))
			res.Warnings = warnings
			logf("upload failed, keeping local artifact: %v", err)
		} else {
			res.RemoteURL = url
		}
	}

	progress(StageUploading, 100, "done")
	return res, nil
}

// coverImage produces the background still for every segment: a generated
// image when enabled, a synthesized dark frame otherwise. Generation
// failure degrades to the placeholder with a warning rather than failing
// the job.
func (u Usecase) coverImage(ctx context.Context, in Input, lines []types.Line, logf func(string, ...any)) (string, string) {
	path := filepath.Join(in.WorkDir, "images", "cover.png")

	if !in.SkipImageGeneration && u.d.Images != nil {
		prompt := script.CoverPrompt(lines, in.Geometry)
		b, err := u.d.Images.Generate(ctx, prompt)
		if err == nil {
			if werr := os.WriteFile(path, b, 0o644); werr == nil {
				logf("cover image generated (%d bytes)", len(b))
				return path, ""
			}
		}
		logf("cover generation failed, using placeholder: %v", err)
		if perr := u.d.Video.PlaceholderImage(ctx, in.Geometry, path); perr != nil {
			return path, fmt.Sprintf("cover image unavailable: generate: %v; placeholder: %v", err, perr)
		}
		return path, fmt.Sprintf("cover generation failed, placeholder used: %v", err)
	}

	if err := u.d.Video.PlaceholderImage(ctx, in.Geometry, path); err != nil {
		logf("placeholder cover failed: %v", err)
		return path, fmt.Sprintf("placeholder cover failed: %v", err)
	}
	return path, ""
}

// partition splits segments into contiguous runs of at most size elements,
// preserving order.
func partition(segs []types.Segment, size int) [][]types.Segment {
	var out [][]types.Segment
	for len(segs) > size {
		out = append(out, segs[:size])
		segs = segs[size:]
	}
	return append(out, segs)
}

var errZeroOutput = errors.New("output file missing or empty")

func checkOutput(path string) error {
	st, err := os.Stat(path)
	if err != nil || st.Size() == 0 {
		return errZeroOutput
	}
	return nil
}
