package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/loreguard/internal/api"
	"github.com/ppiankov/loreguard/internal/pipeline"
	"github.com/ppiankov/loreguard/internal/telemetry"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP analysis service",
	Long: `Serve exposes the analysis pipeline over HTTP:

  POST /api/v1/analyze      run one analysis (JSON body)
  GET  /api/v1/jobs         list archived jobs (requires storage.path)
  GET  /api/v1/jobs/{id}    fetch one archived job
  GET  /health              liveness
  GET  /metrics             Prometheus metrics

Example:
  loreguard serve
  loreguard serve --addr :9090
  LOREGUARD_STORAGE_PATH=./jobs.db loreguard serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd, map[string]string{"addr": "server.addr"})
	if err != nil {
		return err
	}
	if !cfg.Output.Verbose {
		logLevel.SetLevel(zapcore.InfoLevel)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := newApp(cfg, pipeline.WithRecorder(telemetry.NewPrometheus(reg)))
	if err != nil {
		return err
	}
	defer closeQuietly(a, "job archive")

	opts := []api.Option{
		api.WithLogger(logger.Named("api")),
		api.WithMetricsHandler(telemetry.Handler(reg)),
	}
	if a.store != nil {
		opts = append(opts, api.WithStore(a.store))
	}
	server := api.NewServer(a.pipeline, cfg.Server, opts...)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("provider", cfg.LLM.Provider),
			zap.String("model", cfg.LLM.Model),
			zap.Bool("archive", a.store != nil))
		if err := server.Run(ctx, cfg.Server.Addr); err != nil {
			return fmt.Errorf("serve %s: %w", cfg.Server.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		// An unreachable provider is reported but does not stop the server;
		// analyze requests will fail with the classified error instead.
		if err := a.client.Ping(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("Analysis provider unavailable", zap.String("provider", cfg.LLM.Provider), zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	logger.Info("Server stopped")
	return err
}
