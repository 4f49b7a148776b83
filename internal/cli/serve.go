package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/podvid/podvid/internal/config"
	"github.com/podvid/podvid/internal/logs"
	"github.com/podvid/podvid/internal/server"
	"github.com/podvid/podvid/internal/tasks"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP task API",
		RunE:  runServe,
	}
	cmd.Flags().String("listen", "", "Listen address (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	listen, _ := cmd.Flags().GetString("listen")

	svc, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := svc.Validate(); err != nil {
		return err
	}
	if listen != "" {
		svc.ListenAddr = listen
	}

	logger := logs.Setup(logs.FromEnv("podvid"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := tasks.NewRegistry(svc.TaskRetention, logger)
	reg.StartSweeper(ctx, 5*time.Minute)
	runner := tasks.NewRunner(reg, svc, logger)
	srv := server.New(reg, runner, svc, logger)

	httpSrv := &http.Server{
		Addr:              svc.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", svc.ListenAddr).Msg("task API listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
