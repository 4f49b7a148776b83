package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/podvid/podvid/internal/types"
)

// Adapter invokes the ffmpeg/ffprobe binaries. Every call is one
// subprocess with a fully specified command and a single output path.
type Adapter struct {
	ffmpeg     string
	ffprobe    string
	videoCodec string
	audioCodec string
}

func New(ffmpegPath, ffprobePath, videoCodec, audioCodec string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if videoCodec == "" {
		videoCodec = "libx264"
	}
	if audioCodec == "" {
		audioCodec = "aac"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath, videoCodec: videoCodec, audioCodec: audioCodec}
}

// RenderSegment composes one clip from a still image and an audio file:
// the image is scaled and padded to the output geometry, a mirrored
// waveform is overlaid, and an optional caption is burned in.
func (a *Adapter) RenderSegment(ctx context.Context, spec types.RenderSpec) error {
	args := buildRenderArgs(spec, a.videoCodec, a.audioCodec)
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg render %s: %w\n%s", filepath.Base(spec.OutPath), err, tail(b))
	}
	return nil
}

func buildRenderArgs(spec types.RenderSpec, videoCodec, audioCodec string) []string {
	w, h := spec.Geometry.Width, spec.Geometry.Height

	specWidth := w / 2
	const specHeight = 100
	specX := (w - specWidth) / 2
	specY := (h - specHeight*2) / 2

	var fc strings.Builder
	fmt.Fprintf(&fc,
		"[0:v]scale=%d:%d:force_original_aspect_ratio=decrease,"+
			"pad=%d:%d:(ow-iw)/2:(oh-ih)/2,"+
			"vignette=angle=PI/4,"+
			"drawbox=x=%d:y=%d:w=%d:h=%d:color=black@0.5:t=fill[bg];",
		w, h, w, h, specX, specY, specWidth, specHeight*2)
	fmt.Fprintf(&fc,
		"[1:a]showwaves=s=%dx%d:mode=line:n=1:colors=white:rate=%d,format=rgba[waves];",
		specWidth, specHeight, spec.FPS)
	fc.WriteString("[waves]split[w1][w2];[w2]vflip[w2f];[w1][w2f]vstack[spectrum];")
	fc.WriteString("[bg][spectrum]overlay=(W-w)/2:(H-h)/2:eof_action=pass")

	if spec.Caption != "" {
		fmt.Fprintf(&fc,
			"[base];[base]drawtext=text='%s':fontsize=%d:fontcolor=white:"+
				"box=1:boxcolor=black@0.5:boxborderw=8:x=(w-text_w)/2:y=h-text_h-%d[outv]",
			escapeDrawtext(spec.Caption), spec.Geometry.CaptionSize*2, spec.Geometry.CaptionMargV)
	} else {
		fc.WriteString("[outv]")
	}

	return []string{
		"-y",
		"-loop", "1",
		"-i", spec.ImagePath,
		"-i", spec.AudioPath,
		"-filter_complex", fc.String(),
		"-map", "[outv]",
		"-map", "1:a",
		"-c:v", videoCodec,
		"-preset", "ultrafast",
		"-c:a", audioCodec,
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-shortest",
		"-r", strconv.Itoa(spec.FPS),
		spec.OutPath,
	}
}

// Concat merges ordered inputs with the concat demuxer, stream-copying so
// no re-encode happens. Inputs must share codec and geometry.
func (a *Adapter) Concat(ctx context.Context, inputs []string, outPath string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("ffmpeg concat: no inputs")
	}
	listPath := outPath + ".list.txt"
	if err := writeConcatList(inputs, listPath); err != nil {
		return err
	}
	defer os.Remove(listPath)

	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg concat %s: %w\n%s", filepath.Base(outPath), err, tail(b))
	}
	return nil
}

func writeConcatList(inputs []string, listPath string) error {
	var b strings.Builder
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return fmt.Errorf("resolve concat input %s: %w", in, err)
		}
		b.WriteString("file '" + escapeConcatPath(abs) + "'\n")
	}
	return os.WriteFile(listPath, []byte(b.String()), 0o644)
}

// MuxSubtitles attaches an SRT document as a separate mov_text track
// without re-encoding audio or video.
func (a *Adapter) MuxSubtitles(ctx context.Context, videoPath, srtPath, outPath string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", videoPath,
		"-i", srtPath,
		"-map", "0",
		"-map", "1:0",
		"-c", "copy",
		"-c:s", "mov_text",
		"-metadata:s:s:0", "language=eng",
		outPath,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg mux subtitles %s: %w\n%s", filepath.Base(outPath), err, tail(b))
	}
	return nil
}

func (a *Adapter) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration %s: %w\n%s", filepath.Base(path), err, tail(b))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

// Silence synthesizes a silent audio file, used as the placeholder asset
// when a failed line is skipped instead of failing the job.
func (a *Adapter) Silence(ctx context.Context, d time.Duration, outPath string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-f", "lavfi",
		"-i", "anullsrc=r=44100:cl=mono",
		"-t", fmtSeconds(d),
		outPath,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg silence %s: %w\n%s", filepath.Base(outPath), err, tail(b))
	}
	return nil
}

// PlaceholderImage writes a single dark frame at the output geometry, used
// when image generation is disabled or fails.
func (a *Adapter) PlaceholderImage(ctx context.Context, geo types.Geometry, outPath string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=0x1e1e1e:s=%dx%d", geo.Width, geo.Height),
		"-frames:v", "1",
		outPath,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg placeholder image %s: %w\n%s", filepath.Base(outPath), err, tail(b))
	}
	return nil
}

func fmtSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func escapeConcatPath(p string) string {
	p = filepath.ToSlash(p)
	return strings.ReplaceAll(p, "'", `'\''`)
}

// escapeDrawtext makes s safe as a single-quoted drawtext value. Inside
// quotes the graph parser takes every character literally except the quote
// itself, which cannot be escaped in place: it is written by closing the
// quote, emitting \', and reopening.
func escapeDrawtext(s string) string {
	return strings.ReplaceAll(s, `'`, `'\''`)
}

// tail keeps error output readable: ffmpeg logs are long and only the end
// carries the failure reason.
func tail(b []byte) string {
	const keep = 2048
	if len(b) <= keep {
		return string(b)
	}
	return "..." + string(b[len(b)-keep:])
}
