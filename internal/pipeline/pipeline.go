package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/podvid/podvid/internal/config"
	"github.com/podvid/podvid/internal/ports"
	"github.com/podvid/podvid/internal/ports/adapters/ffmpeg"
	"github.com/podvid/podvid/internal/ports/adapters/imagegen"
	"github.com/podvid/podvid/internal/ports/adapters/scriptapi"
	"github.com/podvid/podvid/internal/ports/adapters/uploader"
	"github.com/podvid/podvid/internal/types"
	"github.com/podvid/podvid/internal/usecase"

	"github.com/rs/zerolog"
)

// Config describes one job. Service carries the ambient settings (pools,
// codecs, endpoints); the rest is per-job.
type Config struct {
	Service config.Config

	ScriptID   string
	JobID      string // optional; derived from the script id when empty
	OutputPath string // optional; defaults to <output_dir>/<job id>.mp4
	Format     string // horizontal | vertical

	MaxLines            int
	BurnSubtitles       bool
	SkipImageGeneration bool
	SkipUpload          bool

	Logf     func(format string, args ...any)
	Progress func(stage usecase.Stage, percent int, message string)
}

func (c Config) Validate() error {
	if c.ScriptID == "" {
		return &usecase.ConfigError{Err: errors.New("script id is required")}
	}
	if _, err := types.ParseGeometry(c.Format); err != nil {
		return &usecase.ConfigError{Err: err}
	}
	if err := c.Service.Validate(); err != nil {
		return &usecase.ConfigError{Err: err}
	}
	return nil
}

// Run wires the adapters, prepares the job workspace, and executes the
// assembly pipeline. The workspace is removed on completion unless the
// service config retains it.
func Run(ctx context.Context, cfg Config) (usecase.Result, error) {
	if err := cfg.Validate(); err != nil {
		return usecase.Result{}, err
	}

	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	svc := cfg.Service

	jobID := cfg.JobID
	if jobID == "" {
		jobID = hash(fmt.Sprintf("%s|%d", cfg.ScriptID, time.Now().UnixNano()))
	}

	workDir := filepath.Join(svc.WorkDir, "jobs", jobID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return usecase.Result{}, fmt.Errorf("prepare workspace: %w", err)
	}
	if !svc.KeepWorkdir {
		defer os.RemoveAll(workDir)
	}
	logf("workspace: %s", workDir)

	outputPath := cfg.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(svc.OutputDir, jobID+".mp4")
	}

	geo, err := types.ParseGeometry(cfg.Format)
	if err != nil {
		return usecase.Result{}, &usecase.ConfigError{Err: err}
	}

	video := ffmpeg.New(svc.FFmpegPath, svc.FFprobePath, svc.VideoCodec, svc.AudioCodec)
	source := scriptapi.New(svc.ScriptAPIURL, svc.ScriptAPIKey)

	var images ports.ImageGenerator
	if svc.ImageAPIURL != "" && !cfg.SkipImageGeneration {
		images = imagegen.New(svc.ImageAPIURL, svc.ImageAPIKey, svc.ImageModel)
	}

	var upload ports.Uploader
	if svc.UploadURL != "" && !cfg.SkipUpload {
		upload = uploader.New(uploader.Options{
			Endpoint:   svc.UploadURL,
			Retries:    svc.UploadRetries,
			RetryDelay: svc.UploadRetryDelay,
			MaxElapsed: svc.UploadMaxElapsed,
			Backoff:    svc.UploadBackoff,
			Logger:     zerolog.Nop(),
		})
	}

	uc := usecase.New(usecase.Deps{
		Source: source,
		Images: images,
		Video:  video,
		Upload: upload,
	})

	return uc.Run(ctx, usecase.Input{
		ScriptID:            cfg.ScriptID,
		OutputPath:          outputPath,
		WorkDir:             workDir,
		Geometry:            geo,
		FPS:                 svc.FPS,
		MaxLines:            cfg.MaxLines,
		BurnSubtitles:       cfg.BurnSubtitles,
		SkipImageGeneration: cfg.SkipImageGeneration,
		DownloadWorkers:     svc.DownloadWorkers,
		RenderWorkers:       svc.RenderWorkers,
		BatchSize:           svc.BatchSize,
		FetchRetries:        svc.FetchRetries,
		FetchRetryDelay:     svc.FetchRetryDelay,
		RenderTimeout:       svc.RenderTimeout,
		ConcatTimeout:       svc.ConcatTimeout,
		SkipFailedLines:     svc.SkipFailedLines,
		PlaceholderDuration: svc.PlaceholderDuration,
		UploadMandatory:     svc.UploadMandatory,
		Logf:                logf,
		Progress:            cfg.Progress,
	})
}

// NewScriptSource exposes the script backend client for callers outside
// the pipeline (the post-completion status callback).
func NewScriptSource(svc config.Config) ports.ScriptSource {
	return scriptapi.New(svc.ScriptAPIURL, svc.ScriptAPIKey)
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}
