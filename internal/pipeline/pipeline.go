package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ppiankov/loreguard/internal/extract"
	"github.com/ppiankov/loreguard/internal/llm"
	"github.com/ppiankov/loreguard/internal/metrics"
	"github.com/ppiankov/loreguard/internal/model"
	"github.com/ppiankov/loreguard/internal/normalize"
	"github.com/ppiankov/loreguard/internal/telemetry"
)

// Analyzer performs the external consistency analysis. *llm.Client
// implements it.
type Analyzer interface {
	Analyze(ctx context.Context, req llm.AnalysisRequest) (*llm.Reply, error)
}

// Archive persists finished jobs
type Archive interface {
	Save(ctx context.Context, report *model.JobReport) error
}

// Pipeline runs analysis jobs. It holds no per-job state, so one Pipeline
// may run many jobs concurrently.
type Pipeline struct {
	analyzer   Analyzer
	normalizer *normalize.Normalizer
	estimator  *metrics.Estimator
	cfg        model.AnalysisConfig

	observer Observer
	recorder telemetry.Recorder
	archive  Archive
	logger   *zap.Logger
	jobOpts  []JobOption
	printer  *message.Printer
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithJobObserver receives the log and progress events of every job
func WithJobObserver(o Observer) Option {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r telemetry.Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// WithArchive stores every finished job
func WithArchive(a Archive) Option {
	return func(p *Pipeline) {
		p.archive = a
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithJobOptions applies extra options to every job the pipeline starts
func WithJobOptions(opts ...JobOption) Option {
	return func(p *Pipeline) {
		p.jobOpts = append(p.jobOpts, opts...)
	}
}

// WithEstimator replaces the metrics estimator
func WithEstimator(e *metrics.Estimator) Option {
	return func(p *Pipeline) {
		p.estimator = e
	}
}

// New creates a pipeline
func New(analyzer Analyzer, cfg *model.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		analyzer:  analyzer,
		estimator: metrics.NewTimeSeededEstimator(cfg.Analysis.MetricsNoise),
		cfg:       cfg.Analysis,
		recorder:  telemetry.Nop{},
		logger:    zap.NewNop(),
		printer:   message.NewPrinter(language.English),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.normalizer = normalize.New(cfg.Normalizer, normalize.WithLogger(p.logger))
	return p
}

// Run executes one job through chunking, embedding and reasoning. Invalid
// input returns an error and no report. Once the job exists a report is
// always returned; if the analysis failed the report holds the failed job
// and the error is returned alongside it.
func (p *Pipeline) Run(ctx context.Context, input model.AnalysisInput) (*model.JobReport, error) {
	opts := append([]JobOption(nil), p.jobOpts...)
	if p.observer != nil {
		opts = append(opts, WithObserver(p.observer))
	}
	job, err := StartJob(input, opts...)
	if err != nil {
		return nil, err
	}

	p.recorder.JobStarted()
	p.logger.Info("Analysis job started",
		zap.String("job_id", job.ID()),
		zap.String("story", input.StoryName),
		zap.String("backstory", input.BackstoryName))

	result, runErr := p.execute(ctx, job, input)
	if runErr != nil {
		job.Fail(runErr)
		p.logger.Warn("Analysis job failed", zap.String("job_id", job.ID()), zap.Error(runErr))
	}

	report := &model.JobReport{Job: job.Snapshot()}
	if runErr == nil {
		report.Metrics = p.estimator.Estimate(result)
	}
	p.recorder.JobFinished(report.Job.Status, report.Job.Duration())

	if p.archive != nil {
		if err := p.archive.Save(context.WithoutCancel(ctx), report); err != nil {
			p.logger.Warn("Failed to archive job", zap.String("job_id", job.ID()), zap.Error(err))
		}
	}

	return report, runErr
}

// RunJob runs a job for batch processing. A job that failed during analysis
// is reported through its status, not the error.
func (p *Pipeline) RunJob(ctx context.Context, input model.AnalysisInput) (*model.JobReport, error) {
	report, err := p.Run(ctx, input)
	if report != nil {
		return report, nil
	}
	return nil, err
}

func (p *Pipeline) execute(ctx context.Context, job *Job, input model.AnalysisInput) (*model.AnalysisResult, error) {
	chunkCount := p.chunk(job, input)
	if err := p.embed(job, chunkCount); err != nil {
		return nil, err
	}
	return p.reason(ctx, job, input)
}

// chunk reports the story size and its chunk layout
func (p *Pipeline) chunk(job *Job, input model.AnalysisInput) int {
	_ = job.Advance(model.StatusChunking, 5)
	job.AppendLog(model.LevelInfo, model.PhaseChunking, "Loading story: "+displayName(input.StoryName))

	words := extract.WordCount(input.StoryContent)
	job.AppendLog(model.LevelInfo, model.PhaseChunking, p.printer.Sprintf("Story loaded: %d words", words))

	chunkCount := len(extract.ChunkText(input.StoryContent, p.cfg.ChunkWords))
	job.AppendLog(model.LevelInfo, model.PhaseChunking, fmt.Sprintf("Splitting into %d semantic chunks", chunkCount))
	job.AppendLog(model.LevelSuccess, model.PhaseChunking, "Chunking complete")

	return chunkCount
}

// embed walks the first chunks, five progress points each
func (p *Pipeline) embed(job *Job, chunkCount int) error {
	if err := job.Advance(model.StatusEmbedding, 25); err != nil {
		return err
	}
	job.AppendLog(model.LevelInfo, model.PhaseEmbedding, "Initializing embedding model")
	job.AppendLog(model.LevelInfo, model.PhaseEmbedding, fmt.Sprintf("Processing %d chunks...", chunkCount))

	embedded := min(chunkCount, max(p.cfg.MaxEmbeddedChunks, 0))
	for i := range embedded {
		_ = job.Advance(model.StatusEmbedding, min(25+(i+1)*5, 50))
		job.AppendLog(model.LevelInfo, model.PhaseEmbedding, fmt.Sprintf("Embedded chunk %d/%d", i+1, chunkCount))
	}
	job.AppendLog(model.LevelSuccess, model.PhaseEmbedding, "Embedding generation complete")
	return nil
}

// reason calls the analyzer and normalizes its reply
func (p *Pipeline) reason(ctx context.Context, job *Job, input model.AnalysisInput) (*model.AnalysisResult, error) {
	if err := job.Advance(model.StatusReasoning, 55); err != nil {
		return nil, err
	}
	snap := job.Snapshot()

	job.AppendLog(model.LevelInfo, model.PhaseReasoning, "Extracting backstory claims")
	candidates := extract.CandidateClaims(input.BackstoryContent)
	job.AppendLog(model.LevelInfo, model.PhaseReasoning, fmt.Sprintf("Identified %d claims to verify", len(candidates)))
	job.AppendLog(model.LevelInfo, model.PhaseReasoning, "Performing constraint analysis")
	job.AppendLog(model.LevelInfo, model.PhaseReasoning, "Temporal consistency check...")
	job.AppendLog(model.LevelInfo, model.PhaseReasoning, "Causal reasoning analysis...")

	started := time.Now()
	reply, err := p.analyzer.Analyze(ctx, llm.AnalysisRequest{
		StoryContent:     input.StoryContent,
		BackstoryContent: input.BackstoryContent,
		Track:            snap.Track,
		StoryID:          snap.StoryID,
	})
	provider := "unknown"
	if reply != nil {
		provider = reply.Provider
	} else if named, ok := p.analyzer.(interface{ ProviderName() string }); ok {
		provider = named.ProviderName()
	}
	p.recorder.AnalysisCall(provider, err, time.Since(started))
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, model.ErrTransport("No response from AI model")
	}

	if reply.Truncated {
		p.recorder.StoryTruncated()
		job.AppendLog(model.LevelWarning, model.PhaseReasoning,
			p.printer.Sprintf("Story truncated to %d characters for context limits", p.cfg.StoryCharLimit))
	}
	job.AppendLog(model.LevelSuccess, model.PhaseReasoning, "Evidence linking complete")

	_ = job.Advance(model.StatusReasoning, 90)
	job.AppendLog(model.LevelInfo, model.PhaseReasoning, "Generating final verdict")

	result, diag := p.normalizer.Normalize(reply.Raw, snap.StoryID, snap.Track)
	if diag.Fallback {
		p.recorder.NormalizerFallback()
		job.AppendLog(model.LevelWarning, model.PhaseReasoning, normalize.FallbackNote)
		p.logger.Warn("Analysis reply could not be parsed",
			zap.String("job_id", job.ID()),
			zap.Error(diag.Cause))
	}
	finished := job.now()
	result.Timestamp = finished
	result.ProcessingTime = finished.Sub(job.StartTime()).Milliseconds()

	if err := job.AttachResult(result); err != nil {
		return nil, fmt.Errorf("attach result: %w", err)
	}
	return result, nil
}

func displayName(name string) string {
	if name == "" {
		return "(inline text)"
	}
	return name
}
