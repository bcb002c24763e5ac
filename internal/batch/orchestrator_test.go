package batch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ithan1985/audio2text/internal/config"
	"github.com/ithan1985/audio2text/internal/errs"
	"github.com/ithan1985/audio2text/internal/model"
	"github.com/ithan1985/audio2text/internal/output"
	"github.com/ithan1985/audio2text/internal/state"
	"github.com/ithan1985/audio2text/internal/transcribe"
)

// fakeIngestor pretends every input normalizes to a wav named after it.
// Inputs whose basename contains "corrupt" fail with a transcode error.
type fakeIngestor struct {
	cleanups int
}

func (f *fakeIngestor) Normalize(ctx context.Context, inputPath string) (string, func(), error) {
	if strings.Contains(filepath.Base(inputPath), "corrupt") {
		return "", func() {}, errs.New(errs.KindTranscode, "ffmpeg exited 1")
	}
	return inputPath + ".wav", func() { f.cleanups++ }, nil
}

func (f *fakeIngestor) Probe(ctx context.Context, path string) (float64, error) {
	return 10, nil
}

// fakeEngine emits two fixed segments per file.
type fakeEngine struct {
	err error
}

func (f *fakeEngine) Transcribe(ctx context.Context, wavPath string, opts transcribe.Options, onProgress transcribe.ProgressFunc) (*transcribe.Transcript, error) {
	if f.err != nil {
		return nil, f.err
	}
	if onProgress != nil {
		onProgress(transcribe.Progress{Processed: opts.AudioDuration, Total: opts.AudioDuration})
	}
	return &transcribe.Transcript{
		ModelID:          "small",
		ComputeMode:      "int8",
		DetectedLanguage: "en",
		Duration:         opts.AudioDuration,
		Segments: []transcribe.Segment{
			{Start: 0, End: 4, Text: "first segment", Language: "en", Confidence: 0.9},
			{Start: 4, End: 9, Text: "second segment", Language: "en", Confidence: 0.8},
		},
	}, nil
}

type fakeModels struct {
	engine transcribe.Engine
	err    error
}

func (f *fakeModels) Engine(ctx context.Context, modelID, computeMode string) (*model.Handle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Handle{
		Key:    model.Key{ModelID: modelID, ComputeMode: computeMode},
		Engine: f.engine,
	}, nil
}

type fakeTranslator struct{}

func (fakeTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	return "[" + target + "] " + text, nil
}

func (fakeTranslator) Languages(ctx context.Context) ([]string, error) {
	return []string{"en", "es"}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ModelID:          "small",
		ComputeMode:      "int8",
		BeamSize:         1,
		ProgressInterval: 10,
		TranslatePolicy:  config.PolicyStrict,
		OutputDir:        filepath.Join(t.TempDir(), "outputs"),
	}
}

func writeMedia(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestOrchestrator(t *testing.T, cfg *config.Config) (*Orchestrator, *fakeIngestor) {
	t.Helper()
	ing := &fakeIngestor{}
	return NewOrchestrator(cfg, ing, &fakeModels{engine: &fakeEngine{}}, fakeTranslator{},
		output.NewWriter(zerolog.Nop()), nil, zerolog.Nop()), ing
}

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	writeMedia(t, dir, "b.mp3")
	writeMedia(t, dir, "a.wav")
	writeMedia(t, dir, "c.m4a")

	t.Run("glob_sorted", func(t *testing.T) {
		files, err := Expand(filepath.Join(dir, "*"))
		if err != nil {
			t.Fatalf("Expand: %v", err)
		}
		if len(files) != 3 {
			t.Fatalf("files = %d, want 3", len(files))
		}
		for i := 1; i < len(files); i++ {
			if files[i] < files[i-1] {
				t.Errorf("files not sorted: %v", files)
			}
		}
	})

	t.Run("single_file", func(t *testing.T) {
		path := filepath.Join(dir, "a.wav")
		files, err := Expand(path)
		if err != nil || len(files) != 1 || files[0] != path {
			t.Errorf("Expand(%q) = (%v, %v)", path, files, err)
		}
	})

	t.Run("directory", func(t *testing.T) {
		files, err := Expand(dir)
		if err != nil {
			t.Fatalf("Expand: %v", err)
		}
		if len(files) != 3 {
			t.Errorf("files = %v, want 3 media files", files)
		}
	})

	t.Run("no_match", func(t *testing.T) {
		_, err := Expand(filepath.Join(dir, "*.flac"))
		if !errs.Is(err, errs.KindInput) {
			t.Errorf("err kind = %q, want input", errs.KindOf(err))
		}
	})
}

func TestRun_AllSucceed(t *testing.T) {
	dir := t.TempDir()
	writeMedia(t, dir, "audio1.m4a")
	cfg := testConfig(t)
	orc, ing := newTestOrchestrator(t, cfg)

	sum, err := orc.Run(context.Background(), filepath.Join(dir, "*.m4a"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Succeeded != 1 || sum.Failed != 0 {
		t.Errorf("summary = %d/%d, want 1/0", sum.Succeeded, sum.Failed)
	}
	if sum.ExitCode() != 0 {
		t.Errorf("ExitCode = %d, want 0", sum.ExitCode())
	}
	if ing.cleanups != 1 {
		t.Errorf("cleanups = %d, want 1", ing.cleanups)
	}

	// outputs/<basename>/<basename>.{txt,srt,json}
	outDir := filepath.Join(cfg.OutputDir, "audio1")
	for _, ext := range []string{".txt", ".srt", ".json"} {
		if _, err := os.Stat(filepath.Join(outDir, "audio1"+ext)); err != nil {
			t.Errorf("missing artifact %s: %v", ext, err)
		}
	}
}

func TestRun_PartialFailure(t *testing.T) {
	dir := t.TempDir()
	writeMedia(t, dir, "a.mp3")
	writeMedia(t, dir, "b_corrupt.mp3")
	writeMedia(t, dir, "c.mp3")
	cfg := testConfig(t)
	orc, _ := newTestOrchestrator(t, cfg)

	sum, err := orc.Run(context.Background(), filepath.Join(dir, "*.mp3"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Succeeded != 2 || sum.Failed != 1 {
		t.Fatalf("summary = %d succeeded %d failed, want 2/1", sum.Succeeded, sum.Failed)
	}
	if sum.ExitCode() == 0 {
		t.Error("ExitCode should be non-zero when a job failed")
	}

	var failedJob *Job
	for _, j := range sum.Jobs {
		if j.Status == StatusFailed {
			failedJob = j
		}
	}
	if failedJob == nil {
		t.Fatal("no failed job in summary")
	}
	if !errs.Is(failedJob.Err, errs.KindTranscode) {
		t.Errorf("failed job kind = %q, want transcode", errs.KindOf(failedJob.Err))
	}

	// subsequent files still processed: outputs for a and c exist
	for _, base := range []string{"a", "c"} {
		if _, err := os.Stat(filepath.Join(cfg.OutputDir, base, base+".txt")); err != nil {
			t.Errorf("missing output for %s: %v", base, err)
		}
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "b_corrupt")); !os.IsNotExist(err) {
		t.Error("failed job should not leave an output directory")
	}
}

func TestRun_OutputCollision(t *testing.T) {
	dir := t.TempDir()
	sub1 := filepath.Join(dir, "one")
	sub2 := filepath.Join(dir, "two")
	os.MkdirAll(sub1, 0o755)
	os.MkdirAll(sub2, 0o755)
	writeMedia(t, sub1, "same.mp3")
	writeMedia(t, sub2, "same.wav")
	cfg := testConfig(t)
	orc, _ := newTestOrchestrator(t, cfg)

	sum, err := orc.Run(context.Background(), filepath.Join(dir, "*", "same.*"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Succeeded != 1 || sum.Failed != 1 {
		t.Fatalf("summary = %d/%d, want 1 succeeded 1 failed", sum.Succeeded, sum.Failed)
	}
	var collided *Job
	for _, j := range sum.Jobs {
		if j.Status == StatusFailed {
			collided = j
		}
	}
	if !errs.Is(collided.Err, errs.KindOutputCollision) {
		t.Errorf("err kind = %q, want output_collision", errs.KindOf(collided.Err))
	}
	// the earlier job's artifacts survive untouched
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "same", "same.txt")); err != nil {
		t.Errorf("first job's output missing: %v", err)
	}
}

func TestRun_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeMedia(t, dir, "a.mp3")
	writeMedia(t, dir, "b.mp3")
	cfg := testConfig(t)
	orc, _ := newTestOrchestrator(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := orc.Run(ctx, filepath.Join(dir, "*.mp3"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sum.Cancelled {
		t.Error("summary should be marked cancelled")
	}
	if sum.ExitCode() == 0 {
		t.Error("cancelled run must exit non-zero")
	}
	if sum.Succeeded != 0 {
		t.Errorf("no job should run after cancellation, got %d succeeded", sum.Succeeded)
	}
}

func TestRun_DecodeFailureStillCleansUp(t *testing.T) {
	dir := t.TempDir()
	writeMedia(t, dir, "a.mp3")
	cfg := testConfig(t)
	ing := &fakeIngestor{}
	orc := NewOrchestrator(cfg, ing,
		&fakeModels{engine: &fakeEngine{err: errs.New(errs.KindDecode, "malformed audio buffer")}},
		nil, output.NewWriter(zerolog.Nop()), nil, zerolog.Nop())

	sum, err := orc.Run(context.Background(), filepath.Join(dir, "a.mp3"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Failed != 1 {
		t.Fatalf("failed = %d, want 1", sum.Failed)
	}
	if !errs.Is(sum.Jobs[0].Err, errs.KindDecode) {
		t.Errorf("err kind = %q, want decode", errs.KindOf(sum.Jobs[0].Err))
	}
	if ing.cleanups != 1 {
		t.Errorf("cleanups = %d, want 1 even on decode failure", ing.cleanups)
	}
}

func TestRun_ModelLoadFailureDoesNotShortCircuit(t *testing.T) {
	dir := t.TempDir()
	writeMedia(t, dir, "a.mp3")
	writeMedia(t, dir, "b.mp3")
	cfg := testConfig(t)
	orc := NewOrchestrator(cfg, &fakeIngestor{},
		&fakeModels{err: errs.New(errs.KindModelLoad, "fetch failed")},
		nil, output.NewWriter(zerolog.Nop()), nil, zerolog.Nop())

	sum, err := orc.Run(context.Background(), filepath.Join(dir, "*.mp3"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// every job is attempted independently and fails identically
	if sum.Failed != 2 {
		t.Errorf("failed = %d, want 2", sum.Failed)
	}
	for _, j := range sum.Jobs {
		if !errs.Is(j.Err, errs.KindModelLoad) {
			t.Errorf("job %s kind = %q, want model_load", j.InputPath, errs.KindOf(j.Err))
		}
	}
}

func TestRun_TranslationApplied(t *testing.T) {
	dir := t.TempDir()
	writeMedia(t, dir, "a.mp3")
	cfg := testConfig(t)
	cfg.TranslateTo = "es"
	orc, _ := newTestOrchestrator(t, cfg)

	sum, err := orc.Run(context.Background(), filepath.Join(dir, "a.mp3"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Succeeded != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	txt, err := os.ReadFile(filepath.Join(cfg.OutputDir, "a", "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(txt), "[es] first segment") {
		t.Errorf("txt = %q, want translated lines", txt)
	}
}

func TestRun_SkipProcessed(t *testing.T) {
	dir := t.TempDir()
	path := writeMedia(t, dir, "a.mp3")
	cfg := testConfig(t)
	cfg.SkipProcessed = true

	store, err := state.Open(filepath.Join(t.TempDir(), "state.db"), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	orc := NewOrchestrator(cfg, &fakeIngestor{}, &fakeModels{engine: &fakeEngine{}},
		nil, output.NewWriter(zerolog.Nop()), store, zerolog.Nop())

	sum1, err := orc.Run(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if sum1.Succeeded != 1 {
		t.Fatalf("first run summary = %+v", sum1)
	}

	sum2, err := orc.Run(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if sum2.Skipped != 1 || sum2.Succeeded != 0 {
		t.Errorf("second run = %d skipped %d succeeded, want 1/0", sum2.Skipped, sum2.Succeeded)
	}
	if sum2.ExitCode() != 0 {
		t.Errorf("skips are not failures, ExitCode = %d", sum2.ExitCode())
	}
}

func TestSummary_ExitCode(t *testing.T) {
	tests := []struct {
		sum  Summary
		want int
	}{
		{Summary{Succeeded: 3}, 0},
		{Summary{Succeeded: 2, Failed: 1}, 1},
		{Summary{Succeeded: 1, Cancelled: true}, 1},
		{Summary{Skipped: 2}, 0},
	}
	for i, tc := range tests {
		if got := tc.sum.ExitCode(); got != tc.want {
			t.Errorf("case %d: ExitCode = %d, want %d", i, got, tc.want)
		}
	}
}

func TestBaseName(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"/media/audio1.m4a", "audio1"},
		{"clip.tar.mp3", "clip.tar"},
		{"noext", "noext"},
	} {
		if got := baseName(tc.in); got != tc.want {
			t.Errorf("baseName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
