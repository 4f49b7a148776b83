package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config carries every tunable of the service. Values come from defaults,
// then an optional TOML file, then environment overrides, in that order.
type Config struct {
	ScriptAPIURL string `toml:"script_api_url"`
	ScriptAPIKey string `toml:"script_api_key"`

	ImageAPIURL string `toml:"image_api_url"`
	ImageAPIKey string `toml:"image_api_key"`
	ImageModel  string `toml:"image_model"`

	UploadURL        string        `toml:"upload_url"`
	UploadRetries    int           `toml:"upload_retries"`
	UploadRetryDelay time.Duration `toml:"-"`
	UploadMaxElapsed time.Duration `toml:"-"`
	UploadBackoff    string        `toml:"upload_backoff"` // fixed | exponential
	UploadMandatory  bool          `toml:"upload_mandatory"`

	DownloadWorkers int `toml:"download_workers"`
	RenderWorkers   int `toml:"render_workers"`
	BatchSize       int `toml:"batch_size"`

	FetchRetries    int           `toml:"fetch_retries"`
	FetchRetryDelay time.Duration `toml:"-"`

	FPS        int    `toml:"fps"`
	VideoCodec string `toml:"video_codec"`
	AudioCodec string `toml:"audio_codec"`

	RenderTimeout time.Duration `toml:"-"`
	ConcatTimeout time.Duration `toml:"-"`

	SkipFailedLines     bool          `toml:"skip_failed_lines"`
	PlaceholderDuration time.Duration `toml:"-"`

	FFmpegPath  string `toml:"ffmpeg_path"`
	FFprobePath string `toml:"ffprobe_path"`

	OutputDir   string `toml:"output_dir"`
	WorkDir     string `toml:"work_dir"`
	KeepWorkdir bool   `toml:"keep_workdir"`

	ListenAddr    string        `toml:"listen_addr"`
	BaseURL       string        `toml:"base_url"`
	TaskRetention time.Duration `toml:"-"`
}

// fileDurations carries the duration keys of the TOML file. They are plain
// integer seconds, the same unit the environment keys use; a raw
// time.Duration field would decode TOML integers as nanoseconds.
type fileDurations struct {
	UploadRetryDelay    *int `toml:"upload_retry_delay"`
	UploadMaxElapsed    *int `toml:"upload_max_elapsed"`
	FetchRetryDelay     *int `toml:"fetch_retry_delay"`
	RenderTimeout       *int `toml:"render_timeout"`
	ConcatTimeout       *int `toml:"concat_timeout"`
	PlaceholderDuration *int `toml:"placeholder_duration"`
	TaskRetention       *int `toml:"task_retention"`
}

func (d fileDurations) apply(c *Config) {
	set := func(dst *time.Duration, v *int) {
		if v != nil {
			*dst = time.Duration(*v) * time.Second
		}
	}
	set(&c.UploadRetryDelay, d.UploadRetryDelay)
	set(&c.UploadMaxElapsed, d.UploadMaxElapsed)
	set(&c.FetchRetryDelay, d.FetchRetryDelay)
	set(&c.RenderTimeout, d.RenderTimeout)
	set(&c.ConcatTimeout, d.ConcatTimeout)
	set(&c.PlaceholderDuration, d.PlaceholderDuration)
	set(&c.TaskRetention, d.TaskRetention)
}

func Default() Config {
	return Config{
		ImageModel: "gemini-3-pro-image-preview",

		UploadRetries:    3,
		UploadRetryDelay: 2 * time.Second,
		UploadMaxElapsed: 30 * time.Minute,
		UploadBackoff:    "fixed",

		DownloadWorkers: 3,
		RenderWorkers:   4,
		BatchSize:       50,

		FetchRetries:    2,
		FetchRetryDelay: time.Second,

		FPS:        24,
		VideoCodec: "libx264",
		AudioCodec: "aac",

		RenderTimeout: 10 * time.Minute,
		ConcatTimeout: 30 * time.Minute,

		PlaceholderDuration: 3 * time.Second,

		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",

		OutputDir: "output",
		WorkDir:   "temp",

		ListenAddr:    ":8000",
		BaseURL:       "http://localhost:8000",
		TaskRetention: time.Hour,
	}
}

// Load reads the optional TOML file at path (missing file is fine when the
// path is the default one) and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
			var durs fileDurations
			if err := toml.Unmarshal(b, &durs); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
			durs.apply(&cfg)
		case os.IsNotExist(err):
			// defaults + env only
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setStr(&c.ScriptAPIURL, "SCRIPT_API_URL")
	setStr(&c.ScriptAPIKey, "SCRIPT_API_KEY")
	setStr(&c.ImageAPIURL, "IMAGE_API_URL")
	setStr(&c.ImageAPIKey, "IMAGE_API_KEY")
	setStr(&c.ImageModel, "IMAGE_MODEL")
	setStr(&c.UploadURL, "UPLOAD_API_URL")
	setInt(&c.UploadRetries, "UPLOAD_MAX_RETRIES")
	setSeconds(&c.UploadRetryDelay, "UPLOAD_RETRY_DELAY")
	setInt(&c.DownloadWorkers, "MAX_DOWNLOAD_THREADS")
	setInt(&c.RenderWorkers, "MAX_VIDEO_THREADS")
	setInt(&c.BatchSize, "SEGMENT_BATCH_SIZE")
	setStr(&c.FFmpegPath, "FFMPEG_PATH")
	setStr(&c.FFprobePath, "FFPROBE_PATH")
	setStr(&c.ListenAddr, "LISTEN_ADDR")
	setStr(&c.BaseURL, "APP_BASE_URL")
	setBool(&c.SkipFailedLines, "SKIP_FAILED_LINES")
	setBool(&c.UploadMandatory, "UPLOAD_MANDATORY")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "1" || v == "true" || v == "yes"
	}
}

func setSeconds(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
		}
	}
}

// Validate rejects values the pipeline cannot run with. Errors here are
// configuration errors: surfaced immediately, never retried.
func (c Config) Validate() error {
	var errs []error
	if c.DownloadWorkers <= 0 {
		errs = append(errs, fmt.Errorf("download_workers must be > 0, got %d", c.DownloadWorkers))
	}
	if c.RenderWorkers <= 0 {
		errs = append(errs, fmt.Errorf("render_workers must be > 0, got %d", c.RenderWorkers))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch_size must be > 0, got %d", c.BatchSize))
	}
	if c.FPS <= 0 {
		errs = append(errs, fmt.Errorf("fps must be > 0, got %d", c.FPS))
	}
	if c.VideoCodec == "" || c.AudioCodec == "" {
		errs = append(errs, errors.New("video_codec and audio_codec are required"))
	}
	if c.FetchRetries < 0 {
		errs = append(errs, fmt.Errorf("fetch_retries must be >= 0, got %d", c.FetchRetries))
	}
	if c.UploadRetries < 0 {
		errs = append(errs, fmt.Errorf("upload_retries must be >= 0, got %d", c.UploadRetries))
	}
	switch c.UploadBackoff {
	case "fixed", "exponential":
	default:
		errs = append(errs, fmt.Errorf("upload_backoff must be fixed or exponential, got %q", c.UploadBackoff))
	}
	if c.PlaceholderDuration <= 0 {
		errs = append(errs, fmt.Errorf("placeholder_duration must be > 0, got %s", c.PlaceholderDuration))
	}
	return errors.Join(errs...)
}
