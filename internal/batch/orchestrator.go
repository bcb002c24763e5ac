// Package batch expands an input selection into jobs and drives each one
// through the full pipeline: ingest, decode, optional translation, and
// artifact output. Jobs run strictly sequentially; the cached engine
// instance is not safe for concurrent decode and parallel jobs would only
// contend for the same CPU.
package batch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ithan1985/audio2text/internal/config"
	"github.com/ithan1985/audio2text/internal/errs"
	"github.com/ithan1985/audio2text/internal/media"
	"github.com/ithan1985/audio2text/internal/metrics"
	"github.com/ithan1985/audio2text/internal/model"
	"github.com/ithan1985/audio2text/internal/output"
	"github.com/ithan1985/audio2text/internal/state"
	"github.com/ithan1985/audio2text/internal/transcribe"
	"github.com/ithan1985/audio2text/internal/translate"
)

// Status is a job lifecycle state. Terminal states are final.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Job is one file's end-to-end processing unit within a run.
type Job struct {
	ID           string
	InputPath    string
	OutputDir    string
	Status       Status
	Err          error
	Segments     int
	AudioSeconds float64
	Warnings     int // best-effort translation warnings
}

// Summary aggregates all job outcomes for one batch invocation.
type Summary struct {
	RunID     string
	Jobs      []*Job
	Succeeded int
	Failed    int
	Skipped   int
	Cancelled bool
}

// ExitCode maps the summary to the process exit status: zero only when no
// job failed and the run was not cancelled.
func (s *Summary) ExitCode() int {
	if s.Failed > 0 || s.Cancelled {
		return 1
	}
	return 0
}

// Ingestor is the audio normalization boundary (implemented by media.Ingestor).
type Ingestor interface {
	Normalize(ctx context.Context, inputPath string) (string, func(), error)
	Probe(ctx context.Context, path string) (float64, error)
}

// ModelSource resolves engine handles (implemented by model.Manager).
type ModelSource interface {
	Engine(ctx context.Context, modelID, computeMode string) (*model.Handle, error)
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	cfg        *config.Config
	ingestor   Ingestor
	models     ModelSource
	translator translate.Translator // nil when translation is disabled
	writer     *output.Writer
	store      *state.Store // nil when run history is disabled
	log        zerolog.Logger
}

func NewOrchestrator(cfg *config.Config, ingestor Ingestor, models ModelSource,
	translator translate.Translator, writer *output.Writer, store *state.Store, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		ingestor:   ingestor,
		models:     models,
		translator: translator,
		writer:     writer,
		store:      store,
		log:        log,
	}
}

// Expand resolves an input selection (file path, directory, or glob
// pattern) into a deterministic lexicographic file list.
func Expand(selection string) ([]string, error) {
	if info, err := os.Stat(selection); err == nil {
		if !info.IsDir() {
			return []string{selection}, nil
		}
		entries, err := os.ReadDir(selection)
		if err != nil {
			return nil, errs.Wrap(errs.KindInput, "read dir "+selection, err)
		}
		var files []string
		for _, e := range entries {
			if !e.IsDir() && media.Supported(e.Name()) {
				files = append(files, filepath.Join(selection, e.Name()))
			}
		}
		sort.Strings(files)
		if len(files) == 0 {
			return nil, errs.New(errs.KindInput, "no media files in %s", selection)
		}
		return files, nil
	}

	matches, err := filepath.Glob(selection)
	if err != nil {
		return nil, errs.Wrap(errs.KindInput, "bad input pattern "+selection, err)
	}
	var files []string
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && !info.IsDir() {
			files = append(files, m)
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, errs.New(errs.KindInput, "no input files match %q", selection)
	}
	return files, nil
}

// Run processes every file matched by selection sequentially and returns
// the run summary. A job failure never aborts the batch; cancellation is
// honored between jobs and aborts the in-flight job.
func (o *Orchestrator) Run(ctx context.Context, selection string) (*Summary, error) {
	files, err := Expand(selection)
	if err != nil {
		return nil, err
	}

	sum := &Summary{RunID: uuid.NewString()}
	for _, f := range files {
		sum.Jobs = append(sum.Jobs, &Job{ID: uuid.NewString(), InputPath: f, Status: StatusPending})
	}
	o.log.Info().Str("run_id", sum.RunID).Int("jobs", len(sum.Jobs)).Str("selection", selection).Msg("batch run starting")

	if err := o.store.BeginRun(sum.RunID); err != nil {
		o.log.Warn().Err(err).Msg("cannot record run start")
	}

	claimed := make(map[string]string)
	for _, job := range sum.Jobs {
		if ctx.Err() != nil {
			sum.Cancelled = true
			break
		}
		o.runJob(ctx, sum.RunID, job, claimed)
		switch job.Status {
		case StatusSucceeded:
			sum.Succeeded++
		case StatusSkipped:
			sum.Skipped++
		default:
			sum.Failed++
		}
	}
	if ctx.Err() != nil {
		sum.Cancelled = true
	}

	if err := o.store.FinishRun(sum.RunID, sum.Succeeded, sum.Failed, sum.Skipped); err != nil {
		o.log.Warn().Err(err).Msg("cannot record run finish")
	}

	ev := o.log.Info()
	if sum.Failed > 0 {
		ev = o.log.Error()
	}
	ev.Str("run_id", sum.RunID).
		Int("succeeded", sum.Succeeded).
		Int("failed", sum.Failed).
		Int("skipped", sum.Skipped).
		Bool("cancelled", sum.Cancelled).
		Msg("batch run finished")
	for _, job := range sum.Jobs {
		if job.Status == StatusFailed {
			o.log.Error().Str("input", job.InputPath).Str("error_kind", string(errs.KindOf(job.Err))).Err(job.Err).Msg("job failed")
		}
	}
	return sum, nil
}

// RunOne processes a single file outside a batch expansion (watch mode).
func (o *Orchestrator) RunOne(ctx context.Context, runID, path string) *Job {
	job := &Job{ID: uuid.NewString(), InputPath: path, Status: StatusPending}
	o.runJob(ctx, runID, job, nil)
	return job
}

// runJob drives one job to a terminal state and records the outcome.
// claimed maps output basenames to the input that owns them; nil disables
// collision tracking (watch mode reprocesses updated files on purpose).
func (o *Orchestrator) runJob(ctx context.Context, runID string, job *Job, claimed map[string]string) {
	log := o.log.With().Str("job_id", job.ID).Str("input", job.InputPath).Logger()
	start := time.Now()

	if o.cfg.SkipProcessed {
		done, err := o.store.HasSucceeded(job.InputPath)
		if err != nil {
			log.Warn().Err(err).Msg("cannot query run history, not skipping")
		} else if done {
			job.Status = StatusSkipped
			log.Info().Msg("already transcribed, skipping")
			o.record(runID, job, time.Since(start))
			return
		}
	}

	job.Status = StatusRunning
	base := baseName(job.InputPath)
	if claimed != nil {
		if prev, ok := claimed[base]; ok {
			job.Status = StatusFailed
			job.Err = errs.New(errs.KindOutputCollision, "output %q already claimed by %s", base, prev)
			o.record(runID, job, time.Since(start))
			return
		}
		claimed[base] = job.InputPath
	}

	err := o.process(ctx, job, base, log)
	if err != nil {
		// a stage killed by cancellation reports its own kind; classify
		// it as cancelled so the summary reflects the interrupt
		if ctx.Err() != nil && !errs.Is(err, errs.KindCancelled) {
			err = errs.Wrap(errs.KindCancelled, "job interrupted", err)
		}
		job.Status = StatusFailed
		job.Err = err
	} else {
		job.Status = StatusSucceeded
		log.Info().
			Int("segments", job.Segments).
			Float64("audio_seconds", job.AudioSeconds).
			Dur("elapsed", time.Since(start)).
			Msg("job complete")
	}
	o.record(runID, job, time.Since(start))
}

// process runs the pipeline stages in order: ingest, decode, translate,
// format. The normalized audio artifact is removed on every exit path.
func (o *Orchestrator) process(ctx context.Context, job *Job, base string, log zerolog.Logger) error {
	handle, err := o.models.Engine(ctx, o.cfg.ModelID, o.cfg.ComputeMode)
	if err != nil {
		return err
	}

	wavPath, cleanup, err := o.ingestor.Normalize(ctx, job.InputPath)
	if err != nil {
		return err
	}
	defer cleanup()

	duration, err := o.ingestor.Probe(ctx, wavPath)
	if err != nil {
		return err
	}

	opts := transcribe.Options{
		Language:         o.cfg.Language,
		BeamSize:         o.cfg.BeamSize,
		VAD:              o.cfg.VAD,
		AudioDuration:    duration,
		ProgressInterval: o.cfg.ProgressInterval,
	}
	tr, err := handle.Engine.Transcribe(ctx, wavPath, opts, func(p transcribe.Progress) {
		log.Info().
			Float64("processed_seconds", p.Processed).
			Float64("total_seconds", p.Total).
			Msg("decode progress")
	})
	if err != nil {
		return err
	}
	tr.SourcePath = job.InputPath

	if o.cfg.TranslateTo != "" {
		stage := translate.NewStage(o.translator, o.cfg.TranslatePolicy == config.PolicyBestEffort, log)
		warnings, err := stage.Apply(ctx, tr, o.cfg.TranslateTo)
		if err != nil {
			return err
		}
		job.Warnings = warnings
		if warnings > 0 {
			log.Warn().Int("warnings", warnings).Msg("best-effort translation left segments untranslated")
		}
	}

	job.OutputDir = filepath.Join(o.cfg.OutputDir, base)
	if err := o.writer.WriteAll(tr, job.OutputDir, base); err != nil {
		return err
	}

	job.Segments = len(tr.Segments)
	job.AudioSeconds = tr.Duration
	return nil
}

// record updates metrics and the run-history store for a terminal job.
func (o *Orchestrator) record(runID string, job *Job, elapsed time.Duration) {
	metrics.JobsTotal.WithLabelValues(string(job.Status)).Inc()
	if job.Status == StatusSucceeded {
		metrics.SegmentsTotal.Add(float64(job.Segments))
		metrics.AudioSecondsTotal.Add(job.AudioSeconds)
		metrics.JobDuration.Observe(elapsed.Seconds())
	}

	rec := state.JobRecord{
		ID:        job.ID,
		RunID:     runID,
		InputPath: job.InputPath,
		Status:    string(job.Status),
		Duration:  job.AudioSeconds,
		Segments:  job.Segments,
	}
	if job.Err != nil {
		rec.ErrorKind = string(errs.KindOf(job.Err))
		rec.ErrorText = job.Err.Error()
	}
	if err := o.store.RecordJob(rec); err != nil {
		o.log.Warn().Err(err).Str("job_id", job.ID).Msg("cannot record job outcome")
	}
}

func baseName(path string) string {
	b := filepath.Base(path)
	return strings.TrimSuffix(b, filepath.Ext(b))
}
