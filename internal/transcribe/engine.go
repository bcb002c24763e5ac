package transcribe

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ithan1985/audio2text/internal/errs"
)

// Options are per-invocation decode parameters.
type Options struct {
	Language         string  // ISO code; empty = auto-detect
	BeamSize         int     // decode search breadth (1 = greedy)
	VAD              bool    // filter non-speech regions before decoding
	AudioDuration    float64 // total seconds of normalized audio
	ProgressInterval float64 // seconds of audio between progress notifications
}

// Engine decodes normalized audio into a transcript.
type Engine interface {
	Transcribe(ctx context.Context, wavPath string, opts Options, onProgress ProgressFunc) (*Transcript, error)
}

// lineRunner executes a command and streams its stderr lines to onLine.
type lineRunner interface {
	Run(ctx context.Context, name string, args []string, onLine func(string)) error
}

type execLineRunner struct{}

func (execLineRunner) Run(ctx context.Context, name string, args []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	sc := bufio.NewScanner(stderr)
	for sc.Scan() {
		if onLine != nil {
			onLine(sc.Text())
		}
	}
	return cmd.Wait()
}

// CLIEngine runs decoding through the whisper-cli binary (whisper.cpp).
// One CLIEngine wraps one loaded model file; it is reused across jobs but
// its invocations must be serialized by the caller.
type CLIEngine struct {
	binPath     string
	modelPath   string
	modelID     string
	computeMode string
	runner      lineRunner
	log         zerolog.Logger
}

func NewCLIEngine(binPath, modelPath, modelID, computeMode string, log zerolog.Logger) *CLIEngine {
	return &CLIEngine{
		binPath:     binPath,
		modelPath:   modelPath,
		modelID:     modelID,
		computeMode: computeMode,
		runner:      execLineRunner{},
		log:         log,
	}
}

// Transcribe decodes wavPath and returns the validated transcript.
func (e *CLIEngine) Transcribe(ctx context.Context, wavPath string, opts Options, onProgress ProgressFunc) (*Transcript, error) {
	tmpDir, err := os.MkdirTemp("", "audio2text-decode-*")
	if err != nil {
		return nil, errs.Wrap(errs.KindDecode, "create temp dir", err)
	}
	defer os.RemoveAll(tmpDir)

	outBase := filepath.Join(tmpDir, "transcript")
	args := buildWhisperArgs(e.modelPath, wavPath, outBase, opts)

	reporter := NewReporter(opts.ProgressInterval, opts.AudioDuration, onProgress)
	var lastLine string
	runErr := e.runner.Run(ctx, e.binPath, args, func(line string) {
		if pct, ok := parseProgressLine(line); ok {
			reporter.Update(float64(pct) / 100 * opts.AudioDuration)
			return
		}
		if s := strings.TrimSpace(line); s != "" {
			lastLine = s
		}
	})
	if runErr != nil {
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.KindCancelled, "decode interrupted", ctx.Err())
		}
		return nil, errs.Wrap(errs.KindDecode, fmt.Sprintf("whisper-cli: %s", lastLine), runErr)
	}

	raw, err := os.ReadFile(outBase + ".json")
	if err != nil {
		return nil, errs.Wrap(errs.KindDecode, "engine produced no transcript", err)
	}

	t, err := e.parseOutput(raw, opts)
	if err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	reporter.Finish()
	return t, nil
}

// cliOutput mirrors the whisper.cpp full-JSON output shape.
type cliOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"` // milliseconds
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text   string     `json:"text"`
		Tokens []cliToken `json:"tokens"`
	} `json:"transcription"`
}

type cliToken struct {
	Text string  `json:"text"`
	P    float64 `json:"p"`
}

func (e *CLIEngine) parseOutput(raw []byte, opts Options) (*Transcript, error) {
	var parsed cliOutput
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errs.Wrap(errs.KindDecode, "parse engine output", err)
	}

	lang := opts.Language
	if lang == "" {
		lang = parsed.Result.Language
	}

	segs := make([]Segment, 0, len(parsed.Transcription))
	for _, s := range parsed.Transcription {
		segs = append(segs, Segment{
			Start:      float64(s.Offsets.From) / 1000,
			End:        float64(s.Offsets.To) / 1000,
			Text:       strings.TrimSpace(s.Text),
			Language:   lang,
			Confidence: confidence(s.Tokens),
		})
	}

	return &Transcript{
		ModelID:          e.modelID,
		ComputeMode:      e.computeMode,
		DetectedLanguage: lang,
		Duration:         opts.AudioDuration,
		Segments:         sanitizeSegments(segs, opts.AudioDuration),
	}, nil
}

// confidence averages the engine's per-token probabilities, clamped to
// [0,1]. Segments without token data report zero rather than NaN.
func confidence(tokens []cliToken) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	for _, tok := range tokens {
		sum += tok.P
	}
	c := sum / float64(len(tokens))
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func buildWhisperArgs(modelPath, wavPath, outBase string, opts Options) []string {
	args := []string{
		"-m", modelPath,
		"-f", wavPath,
		"-of", outBase,
		"-ojf",
		"--print-progress",
	}
	if opts.Language != "" {
		args = append(args, "-l", opts.Language)
	} else {
		args = append(args, "-l", "auto")
	}
	if opts.BeamSize > 1 {
		args = append(args, "-bs", strconv.Itoa(opts.BeamSize))
	}
	if opts.VAD {
		args = append(args, "--vad")
	}
	return args
}

// parseProgressLine extracts the percentage from whisper.cpp progress
// lines of the form "whisper_print_progress_callback: progress =  15%".
func parseProgressLine(line string) (int, bool) {
	idx := strings.Index(line, "progress =")
	if idx < 0 {
		return 0, false
	}
	rest := strings.TrimSpace(line[idx+len("progress ="):])
	rest = strings.TrimSuffix(rest, "%")
	pct, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || pct < 0 {
		return 0, false
	}
	if pct > 100 {
		pct = 100
	}
	return pct, true
}
