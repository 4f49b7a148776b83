package tasks

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/podvid/podvid/internal/config"
	"github.com/podvid/podvid/internal/pipeline"
	"github.com/podvid/podvid/internal/usecase"
)

// Request mirrors the task API's submission body.
type Request struct {
	ScriptID            string
	VideoFormat         string
	MaxLines            int
	BurnSubtitles       bool
	SkipImageGeneration bool
}

// Runner executes submitted jobs off the request path. It is the only
// writer of task state after creation.
type Runner struct {
	reg *Registry
	svc config.Config
	log zerolog.Logger
}

func NewRunner(reg *Registry, svc config.Config, log zerolog.Logger) *Runner {
	return &Runner{reg: reg, svc: svc, log: log}
}

// Launch registers the job and starts the pipeline in the background,
// returning the queued task immediately.
func (r *Runner) Launch(req Request) Task {
	ctx, cancel := context.WithCancel(context.Background())
	t := r.reg.Create(req.ScriptID, cancel)
	go r.run(ctx, cancel, t.ID, req)
	return t
}

func (r *Runner) run(ctx context.Context, cancel context.CancelFunc, id string, req Request) {
	defer cancel()

	log := r.log.With().Str("task", id).Str("script", req.ScriptID).Logger()
	log.Info().Str("format", req.VideoFormat).Msg("job started")

	outputPath := filepath.Join(r.svc.OutputDir, id+".mp4")

	res, err := pipeline.Run(ctx, pipeline.Config{
		Service:             r.svc,
		ScriptID:            req.ScriptID,
		JobID:               id,
		OutputPath:          outputPath,
		Format:              req.VideoFormat,
		MaxLines:            req.MaxLines,
		BurnSubtitles:       req.BurnSubtitles,
		SkipImageGeneration: req.SkipImageGeneration,
		Logf: func(format string, args ...any) {
			log.Info().Msg(fmt.Sprintf(format, args...))
		},
		Progress: func(stage usecase.Stage, percent int, message string) {
			r.reg.Advance(id, stageStatus(stage), percent, message)
		},
	})
	if err != nil {
		stage := failedStage(err)
		log.Error().Err(err).Str("stage", stage).Msg("job failed")
		r.reg.Fail(id, stage, err)
		return
	}

	r.reg.Complete(id, res.VideoPath, res.SubtitlePath, res.RemoteURL, res.Warnings)
	log.Info().Str("video", res.VideoPath).Dur("duration", res.Duration).Msg("job done")

	r.notifySource(req.ScriptID, id, res)
}

// notifySource tells the script backend where the finished video lives.
// Best-effort: the job is already done.
func (r *Runner) notifySource(scriptID, id string, res usecase.Result) {
	url := res.RemoteURL
	if url == "" {
		url = fmt.Sprintf("%s/api/v1/download?file=%s.mp4", r.svc.BaseURL, id)
	}
	source := pipeline.NewScriptSource(r.svc)
	if err := source.UpdateStatus(context.Background(), scriptID, url); err != nil {
		r.log.Warn().Err(err).Str("task", id).Msg("script status update failed")
	}
}

func stageStatus(s usecase.Stage) Status {
	switch s {
	case usecase.StageFetching:
		return StatusFetching
	case usecase.StageRendering:
		return StatusRendering
	case usecase.StageConcatenating:
		return StatusConcatenating
	case usecase.StageUploading:
		return StatusUploading
	}
	return StatusQueued
}

// failedStage names the stage a pipeline error originated from.
func failedStage(err error) string {
	var (
		cfgErr    *usecase.ConfigError
		fetchErr  *usecase.FetchError
		renderErr *usecase.RenderError
		concatErr *usecase.ConcatError
		uploadErr *usecase.UploadError
	)
	switch {
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &fetchErr):
		return "fetching"
	case errors.As(err, &renderErr):
		return "rendering"
	case errors.As(err, &concatErr):
		return "concatenating"
	case errors.As(err, &uploadErr):
		return "uploading"
	}
	return "fetching"
}
