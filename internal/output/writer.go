// Package output renders a finished transcript into its plain-text,
// subtitle, and structured-record artifacts. All three are derived from
// the same transcript instance, never from a re-decode.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ithan1985/audio2text/internal/errs"
	"github.com/ithan1985/audio2text/internal/transcribe"
)

// Writer writes transcript artifacts into a job's output directory.
type Writer struct {
	log zerolog.Logger
}

func NewWriter(log zerolog.Logger) *Writer {
	return &Writer{log: log}
}

// WriteAll writes <base>.txt, <base>.srt, and <base>.json under dir. A
// failed format does not stop the remaining formats from being attempted;
// any failure is reported so the job can be marked failed.
func (w *Writer) WriteAll(t *transcribe.Transcript, dir, base string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.KindOutputWrite, "create output dir "+dir, err)
	}

	jsonData, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return errs.Wrap(errs.KindOutputWrite, "encode transcript", err)
	}
	jsonData = append(jsonData, '\n')

	var failures []error
	for _, f := range []struct {
		ext  string
		data []byte
	}{
		{".txt", FormatText(t)},
		{".srt", FormatSRT(t)},
		{".json", jsonData},
	} {
		path := filepath.Join(dir, base+f.ext)
		if err := writeAtomic(path, f.data); err != nil {
			w.log.Error().Err(err).Str("path", path).Msg("artifact write failed")
			failures = append(failures, fmt.Errorf("%s: %w", f.ext, err))
			continue
		}
		w.log.Debug().Str("path", path).Int("bytes", len(f.data)).Msg("artifact written")
	}

	if len(failures) > 0 {
		return errs.Wrap(errs.KindOutputWrite, "write artifacts", errors.Join(failures...))
	}
	return nil
}

// FormatText renders one line per segment with no timestamps, preferring
// the translated text when present.
func FormatText(t *transcribe.Transcript) []byte {
	var b strings.Builder
	for i, s := range t.Segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(segmentText(s))
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// FormatSRT renders sequentially numbered subtitle blocks.
func FormatSRT(t *transcribe.Transcript) []byte {
	var b strings.Builder
	for i, s := range t.Segments {
		start := FormatTimestamp(s.Start)
		end := FormatTimestamp(s.End)
		// rounding both ends independently must never invert the span
		if end < start {
			end = start
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, start, end, segmentText(s))
	}
	return []byte(b.String())
}

func segmentText(s transcribe.Segment) string {
	if s.TranslatedText != nil {
		return strings.TrimSpace(*s.TranslatedText)
	}
	return strings.TrimSpace(s.Text)
}

// FormatTimestamp renders seconds as an SRT timestamp (HH:MM:SS,mmm),
// rounded to the nearest millisecond.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3600000
	m := (ms % 3600000) / 60000
	s := (ms % 60000) / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

// ParseTimestamp is the inverse of FormatTimestamp.
func ParseTimestamp(ts string) (float64, error) {
	var h, m, s, ms int64
	if _, err := fmt.Sscanf(ts, "%02d:%02d:%02d,%03d", &h, &m, &s, &ms); err != nil {
		return 0, fmt.Errorf("malformed timestamp %q: %w", ts, err)
	}
	return float64(h*3600000+m*60000+s*1000+ms) / 1000, nil
}

// writeAtomic writes data via a temp file and rename so a failed write
// never leaves a truncated artifact under the final name.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".artifact-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
