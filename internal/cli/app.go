package cli

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/ppiankov/loreguard/internal/cache"
	"github.com/ppiankov/loreguard/internal/llm"
	"github.com/ppiankov/loreguard/internal/model"
	"github.com/ppiankov/loreguard/internal/pipeline"
	"github.com/ppiankov/loreguard/internal/storage"
	"github.com/ppiankov/loreguard/internal/util"
	"github.com/ppiankov/loreguard/internal/worker"
)

// app holds the components shared by the analyze, batch and serve commands
type app struct {
	cfg      *model.Config
	client   *llm.Client
	loader   *pipeline.Loader
	pipeline *pipeline.Pipeline
	store    *storage.SQLiteStore
}

// newApp wires the analysis client, document loader, archive and pipeline
// from cfg
func newApp(cfg *model.Config, opts ...pipeline.Option) (*app, error) {
	clientOpts := []llm.ClientOption{
		llm.WithLimiter(worker.LimiterFromConfig(cfg.RateLimiting)),
		llm.WithLogger(logger.Named("llm")),
	}
	if rc := cache.FromConfig(cfg.Cache); rc != nil {
		clientOpts = append(clientOpts, llm.WithCache(rc))
	}
	client := llm.NewClient(cfg.LLM, cfg.Analysis, clientOpts...)

	proxy := util.ProxyConfig{
		HTTPProxy:  cfg.LLM.HTTPProxy,
		HTTPSProxy: cfg.LLM.HTTPSProxy,
		NoProxy:    cfg.LLM.NoProxy,
	}
	a := &app{
		cfg:    cfg,
		client: client,
		loader: pipeline.NewLoader(cfg.Fetch, proxy, logger.Named("loader")),
	}

	pipelineOpts := []pipeline.Option{pipeline.WithLogger(logger.Named("pipeline"))}
	if cfg.Storage.Path != "" {
		store, err := storage.Open(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open job archive: %w", err)
		}
		a.store = store
		pipelineOpts = append(pipelineOpts, pipeline.WithArchive(store))
	}
	a.pipeline = pipeline.New(client, cfg, append(pipelineOpts, opts...)...)

	return a, nil
}

// Close releases the archive
func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// progressPrinter writes processing logs to w as jobs advance. Jobs running
// concurrently are told apart by a short job ID prefix.
type progressPrinter struct {
	mu       sync.Mutex
	w        io.Writer
	prefixed bool
	verbose  bool
}

func (p *progressPrinter) OnLog(jobID string, entry model.ProcessingLog) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.prefixed {
		fmt.Fprintf(p.w, "[%s] ", shortID(jobID))
	}
	fmt.Fprintf(p.w, "%s %s\n", logSymbol(entry.Level), entry.Message)
}

func (p *progressPrinter) OnProgress(jobID string, status model.JobStatus, progress int) {
	if !p.verbose {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.prefixed {
		fmt.Fprintf(p.w, "[%s] ", shortID(jobID))
	}
	fmt.Fprintf(p.w, "   %s %d%%\n", status, progress)
}

func logSymbol(level model.LogLevel) string {
	switch level {
	case model.LevelSuccess:
		return "✓"
	case model.LevelWarning:
		return "⚠"
	case model.LevelError:
		return "✗"
	default:
		return "⚙"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// closeQuietly logs a Close failure
func closeQuietly(c io.Closer, what string) {
	if err := c.Close(); err != nil {
		logger.Warn("Close failed", zap.String("what", what), zap.Error(err))
	}
}
