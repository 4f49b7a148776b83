package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/podvid/podvid/internal/types"
)

// fetchAudio downloads every line's audio under the download pool limit.
// Completion order is arbitrary; results land in pre-assigned slots keyed
// by line index, so the returned slice is always in line order.
func (u Usecase) fetchAudio(ctx context.Context, in Input, lines []types.Line) ([]types.AudioAsset, []string, error) {
	assets := make([]types.AudioAsset, len(lines))

	var mu sync.Mutex
	var warnings []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.DownloadWorkers)

	for _, ln := range lines {
		ln := ln
		g.Go(func() error {
			asset, err := u.fetchOne(gctx, in, ln)
			if err != nil {
				if !in.SkipFailedLines {
					return err
				}
				placeholder, perr := u.placeholderAsset(gctx, in, ln.Index)
				if perr != nil {
					// placeholder synthesis failing means the renderer
					// itself is broken; surface the original fetch error
					return err
				}
				mu.Lock()
				warnings = append(warnings, fmt.Sprintf("line %d: audio unavailable, silence substituted: %v", ln.Index, err))
				mu.Unlock()
				asset = placeholder
			}
			assets[ln.Index] = asset
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return assets, warnings, nil
}

func (u Usecase) fetchOne(ctx context.Context, in Input, ln types.Line) (types.AudioAsset, error) {
	path := filepath.Join(in.WorkDir, "audio", fmt.Sprintf("audio_%03d.wav", ln.Index))
	attempts := in.FetchRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return types.AudioAsset{}, &FetchError{LineIndex: ln.Index, Attempts: attempt - 1, Err: ctx.Err()}
			case <-time.After(in.FetchRetryDelay):
			}
		}

		asset, err := u.downloadAndProbe(ctx, ln, path)
		if err == nil {
			return asset, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
	}
	return types.AudioAsset{}, &FetchError{LineIndex: ln.Index, Attempts: attempts, Err: lastErr}
}

func (u Usecase) downloadAndProbe(ctx context.Context, ln types.Line, path string) (types.AudioAsset, error) {
	b, err := u.d.Source.DownloadAudio(ctx, ln.AudioRef)
	if err != nil {
		return types.AudioAsset{}, err
	}
	if len(b) == 0 {
		return types.AudioAsset{}, errors.New("empty audio body")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return types.AudioAsset{}, err
	}

	// Never trust upstream metadata: duration comes from probing the bytes
	// we actually wrote. An unprobeable file counts as a failed download.
	d, err := u.d.Video.ProbeDuration(ctx, path)
	if err != nil {
		return types.AudioAsset{}, fmt.Errorf("probe: %w", err)
	}
	if d <= 0 {
		return types.AudioAsset{}, fmt.Errorf("probe: non-positive duration %s", d)
	}
	return types.AudioAsset{LineIndex: ln.Index, Path: path, Duration: d}, nil
}

func (u Usecase) placeholderAsset(ctx context.Context, in Input, lineIndex int) (types.AudioAsset, error) {
	path := filepath.Join(in.WorkDir, "audio", fmt.Sprintf("audio_%03d.wav", lineIndex))
	if err := u.d.Video.Silence(ctx, in.PlaceholderDuration, path); err != nil {
		return types.AudioAsset{}, err
	}
	return types.AudioAsset{
		LineIndex:   lineIndex,
		Path:        path,
		Duration:    in.PlaceholderDuration,
		Placeholder: true,
	}, nil
}
