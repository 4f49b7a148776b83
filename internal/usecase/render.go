package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/podvid/podvid/internal/types"
)

const renderAttempts = 2

// renderSegments produces one clip per line under the render pool limit.
// Segments are independent, so dispatch and completion order are
// irrelevant; outputs land at deterministic per-index paths.
func (u Usecase) renderSegments(
	ctx context.Context,
	in Input,
	lines []types.Line,
	assets []types.AudioAsset,
	cues []types.SubtitleCue,
	imagePath string,
) ([]types.Segment, error) {
	segments := make([]types.Segment, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.RenderWorkers)

	for i := range lines {
		i := i
		g.Go(func() error {
			outPath := filepath.Join(in.WorkDir, "segments", fmt.Sprintf("segment_%03d.mp4", lines[i].Index))
			spec := types.RenderSpec{
				ImagePath: imagePath,
				AudioPath: assets[i].Path,
				OutPath:   outPath,
				Geometry:  in.Geometry,
				FPS:       in.FPS,
			}
			if in.BurnSubtitles {
				spec.Caption = cues[i].Text
			}
			if err := u.renderOne(gctx, in, spec, assets[i].Duration); err != nil {
				return &RenderError{LineIndex: lines[i].Index, Attempts: renderAttempts, Err: err}
			}
			segments[i] = types.Segment{LineIndex: lines[i].Index, Path: outPath}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return segments, nil
}

// renderOne invokes the renderer with one retry: render crashes are
// frequently transient under process contention.
func (u Usecase) renderOne(ctx context.Context, in Input, spec types.RenderSpec, want time.Duration) error {
	var lastErr error
	for attempt := 1; attempt <= renderAttempts; attempt++ {
		if err := u.renderAttempt(ctx, in, spec, want); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (u Usecase) renderAttempt(ctx context.Context, in Input, spec types.RenderSpec, want time.Duration) error {
	renderCtx := ctx
	if in.RenderTimeout > 0 {
		var cancel context.CancelFunc
		renderCtx, cancel = context.WithTimeout(ctx, in.RenderTimeout)
		defer cancel()
	}

	if err := u.d.Video.RenderSegment(renderCtx, spec); err != nil {
		return err
	}
	if err := checkOutput(spec.OutPath); err != nil {
		return err
	}

	got, err := u.d.Video.ProbeDuration(ctx, spec.OutPath)
	if err != nil {
		return fmt.Errorf("probe rendered segment: %w", err)
	}
	// Video must match the audio to the frame, or cue timing drifts over
	// the concatenated result.
	tolerance := time.Second / time.Duration(spec.FPS)
	if diff := (got - want).Abs(); diff > tolerance {
		return fmt.Errorf("duration mismatch: rendered %s, audio %s (tolerance %s)",
			got.Round(time.Millisecond), want.Round(time.Millisecond), tolerance)
	}
	return nil
}
