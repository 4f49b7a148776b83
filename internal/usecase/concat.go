package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/podvid/podvid/internal/types"
)

const concatAttempts = 2

// concatenate merges segments in two levels: contiguous batches merged in
// parallel, then the ordered batch outputs merged sequentially into the
// final artifact. Batching bounds per-invocation input counts and isolates
// failures to one batch.
func (u Usecase) concatenate(ctx context.Context, in Input, segments []types.Segment, subtitlePath string) error {
	batches := partition(segments, in.BatchSize)
	batchOuts := make([]string, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.RenderWorkers)
	for bi, batch := range batches {
		bi, batch := bi, batch
		g.Go(func() error {
			out := filepath.Join(in.WorkDir, "batches", fmt.Sprintf("batch_%03d.mp4", bi))
			inputs := make([]string, len(batch))
			for i, s := range batch {
				inputs[i] = s.Path
			}
			if err := u.concatWithRetry(gctx, in, inputs, out); err != nil {
				return &ConcatError{Batch: bi, Attempts: concatAttempts, Err: err}
			}
			batchOuts[bi] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// The final artifact only appears at its real path on success.
	tmpOut := in.OutputPath + ".tmp.mp4"
	defer os.Remove(tmpOut)

	if err := u.concatWithRetry(ctx, in, batchOuts, tmpOut); err != nil {
		return &ConcatError{Final: true, Attempts: concatAttempts, Err: err}
	}

	if subtitlePath != "" {
		muxed := in.OutputPath + ".muxed.mp4"
		defer os.Remove(muxed)
		if err := u.d.Video.MuxSubtitles(ctx, tmpOut, subtitlePath, muxed); err != nil {
			return &ConcatError{Final: true, Attempts: 1, Err: fmt.Errorf("mux subtitles: %w", err)}
		}
		if err := checkOutput(muxed); err != nil {
			return &ConcatError{Final: true, Attempts: 1, Err: fmt.Errorf("mux subtitles: %w", err)}
		}
		return os.Rename(muxed, in.OutputPath)
	}
	return os.Rename(tmpOut, in.OutputPath)
}

func (u Usecase) concatWithRetry(ctx context.Context, in Input, inputs []string, out string) error {
	var lastErr error
	for attempt := 1; attempt <= concatAttempts; attempt++ {
		err := u.concatAttempt(ctx, in, inputs, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (u Usecase) concatAttempt(ctx context.Context, in Input, inputs []string, out string) error {
	concatCtx := ctx
	if in.ConcatTimeout > 0 {
		var cancel context.CancelFunc
		concatCtx, cancel = context.WithTimeout(ctx, in.ConcatTimeout)
		defer cancel()
	}
	if err := u.d.Video.Concat(concatCtx, inputs, out); err != nil {
		return err
	}
	return checkOutput(out)
}
