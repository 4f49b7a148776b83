package usecase

import "fmt"

// ConfigError marks invalid configuration. Surfaced immediately, never
// retried.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return "config: " + e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// FetchError is a per-line download or probe failure that survived its
// retry budget.
type FetchError struct {
	LineIndex int
	Attempts  int
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch line %d failed after %d attempts: %v", e.LineIndex, e.Attempts, e.Err)
}
func (e *FetchError) Unwrap() error { return e.Err }

// RenderError is a per-line segment render failure: non-zero exit, timeout,
// missing output, or an audio/video duration mismatch.
type RenderError struct {
	LineIndex int
	Attempts  int
	Err       error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render line %d failed after %d attempts: %v", e.LineIndex, e.Attempts, e.Err)
}
func (e *RenderError) Unwrap() error { return e.Err }

// ConcatError identifies the failing batch, or the final merge when Final
// is set.
type ConcatError struct {
	Batch    int
	Final    bool
	Attempts int
	Err      error
}

func (e *ConcatError) Error() string {
	if e.Final {
		return fmt.Sprintf("final merge failed after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("batch %d merge failed after %d attempts: %v", e.Batch, e.Attempts, e.Err)
}
func (e *ConcatError) Unwrap() error { return e.Err }

// UploadError is fatal only when upload is configured as mandatory.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return "upload: " + e.Err.Error() }
func (e *UploadError) Unwrap() error { return e.Err }
