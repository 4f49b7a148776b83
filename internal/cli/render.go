package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/podvid/podvid/internal/config"
	"github.com/podvid/podvid/internal/pipeline"
)

func newRenderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <script-id>",
		Short: "Render one script to a video file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, args[0])
		},
	}
	cmd.Flags().String("output", "", "Output video path (default: <output_dir>/<job id>.mp4)")
	cmd.Flags().String("format", "horizontal", "Video format: horizontal (16:9) or vertical (9:16)")
	cmd.Flags().Int("limit", 0, "Process only the first N lines (0 = all)")
	cmd.Flags().Bool("burn-subtitles", false, "Burn captions into video frames instead of a subtitle track")
	cmd.Flags().Bool("skip-images", false, "Use a placeholder cover instead of AI image generation")
	cmd.Flags().Bool("skip-upload", false, "Keep the artifact local even when an upload endpoint is configured")
	cmd.Flags().Bool("no-cleanup", false, "Keep the job's temporary working directory")
	return cmd
}

func runRender(cmd *cobra.Command, scriptID string) error {
	configPath, _ := cmd.Flags().GetString("config")
	output, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")
	limit, _ := cmd.Flags().GetInt("limit")
	burn, _ := cmd.Flags().GetBool("burn-subtitles")
	skipImages, _ := cmd.Flags().GetBool("skip-images")
	skipUpload, _ := cmd.Flags().GetBool("skip-upload")
	noCleanup, _ := cmd.Flags().GetBool("no-cleanup")

	svc, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if noCleanup {
		svc.KeepWorkdir = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := pipeline.Run(ctx, pipeline.Config{
		Service:             svc,
		ScriptID:            scriptID,
		OutputPath:          output,
		Format:              format,
		MaxLines:            limit,
		BurnSubtitles:       burn,
		SkipImageGeneration: skipImages,
		SkipUpload:          skipUpload,
		Logf: func(format string, args ...any) {
			cmd.Printf(format+"\n", args...)
		},
	})
	if err != nil {
		return err
	}

	cmd.Printf("video ready: %s (%s)\n", res.VideoPath, res.Duration.Round(10*time.Millisecond))
	if res.SubtitlePath != "" {
		cmd.Printf("subtitles: %s\n", res.SubtitlePath)
	}
	if res.RemoteURL != "" {
		cmd.Printf("uploaded: %s\n", res.RemoteURL)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}
	return nil
}
