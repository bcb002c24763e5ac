// Package media validates input files and normalizes them to the audio
// format the recognition engine expects, delegating decoding and
// resampling to ffmpeg.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ithan1985/audio2text/internal/errs"
)

// Engine input format: mono 16kHz 16-bit PCM WAV.
const (
	SampleRate = 16000
	Channels   = 1
)

var supportedExts = map[string]bool{
	".m4a":  true,
	".mp3":  true,
	".mp4":  true,
	".mov":  true,
	".wav":  true,
	".ogg":  true,
	".flac": true,
	".webm": true,
	".aac":  true,
}

// Supported reports whether the file extension is a known media format.
func Supported(path string) bool {
	return supportedExts[strings.ToLower(filepath.Ext(path))]
}

type runResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// runner abstracts process execution for testability.
type runner interface {
	Run(ctx context.Context, name string, args ...string) (runResult, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (runResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := runResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// Ingestor turns arbitrary media files into normalized WAV artifacts.
type Ingestor struct {
	ffmpegPath  string
	ffprobePath string
	runner      runner
	log         zerolog.Logger
}

func NewIngestor(ffmpegPath, ffprobePath string, log zerolog.Logger) *Ingestor {
	return &Ingestor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      execRunner{},
		log:         log,
	}
}

// Normalize validates the input file and transcodes it to mono 16kHz PCM WAV
// in a temporary directory. It returns the WAV path and a cleanup function
// that removes the temporary artifact; cleanup is safe to call on every exit
// path and must always be called.
func (in *Ingestor) Normalize(ctx context.Context, inputPath string) (string, func(), error) {
	noop := func() {}

	info, err := os.Stat(inputPath)
	if err != nil {
		return "", noop, errs.Wrap(errs.KindInput, "stat "+inputPath, err)
	}
	if info.IsDir() {
		return "", noop, errs.New(errs.KindInput, "%s is a directory", inputPath)
	}
	if info.Size() == 0 {
		return "", noop, errs.New(errs.KindInput, "%s is empty", inputPath)
	}
	if !Supported(inputPath) {
		return "", noop, errs.New(errs.KindInput, "unsupported media format %q", filepath.Ext(inputPath))
	}

	tmpDir, err := os.MkdirTemp("", "audio2text-*")
	if err != nil {
		return "", noop, errs.Wrap(errs.KindTranscode, "create temp dir", err)
	}
	cleanup := func() { os.RemoveAll(tmpDir) }

	outPath := filepath.Join(tmpDir, "normalized-16k-mono.wav")
	args := buildNormalizeArgs(inputPath, outPath)

	result, runErr := in.runner.Run(ctx, in.ffmpegPath, args...)
	if runErr != nil {
		in.log.Debug().Str("stderr", tail(result.Stderr)).Int("exit_code", result.ExitCode).Msg("ffmpeg failed")
		cleanup()
		return "", noop, errs.Wrap(errs.KindTranscode,
			fmt.Sprintf("ffmpeg exited %d", result.ExitCode), runErr)
	}

	outInfo, err := os.Stat(outPath)
	if err != nil {
		cleanup()
		return "", noop, errs.Wrap(errs.KindTranscode, "ffmpeg produced no output", err)
	}
	if outInfo.Size() == 0 {
		cleanup()
		return "", noop, errs.New(errs.KindTranscode, "ffmpeg produced zero-length output for %s", inputPath)
	}

	return outPath, cleanup, nil
}

// Probe returns the media duration in seconds via ffprobe.
func (in *Ingestor) Probe(ctx context.Context, path string) (float64, error) {
	result, err := in.runner.Run(ctx, in.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, errs.Wrap(errs.KindTranscode, fmt.Sprintf("ffprobe exited %d", result.ExitCode), err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(result.Stdout), 64)
	if err != nil {
		return 0, errs.Wrap(errs.KindTranscode, "parse ffprobe duration", err)
	}
	if dur < 0 {
		return 0, errs.New(errs.KindTranscode, "ffprobe reported negative duration %g", dur)
	}
	return dur, nil
}

func buildNormalizeArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", strconv.Itoa(Channels),
		"-ar", strconv.Itoa(SampleRate),
		"-c:a", "pcm_s16le",
		outPath,
	}
}

// tail returns the last few lines of command output for log context.
func tail(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, "\n")
}
