// Package transcribe defines the transcript data model and the speech
// recognition engine boundary. The engine's segment output is treated as
// ground truth; this package only enforces the ordering and non-overlap
// invariants the rest of the pipeline depends on.
package transcribe

import (
	"sort"

	"github.com/ithan1985/audio2text/internal/errs"
)

// overlapTolerance is the timing slack (seconds) allowed between adjacent
// segments before their boundaries are considered a real violation.
// Engine offsets are millisecond-quantized, so 1ms of jitter is expected.
const overlapTolerance = 0.001

// Segment is one timed span of speech.
type Segment struct {
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Text           string  `json:"text"`
	Language       string  `json:"language"`
	Confidence     float64 `json:"confidence"`
	TranslatedText *string `json:"translated_text,omitempty"`
}

// Transcript is the full ordered set of segments for one input file.
type Transcript struct {
	SourcePath       string    `json:"source_path"`
	ModelID          string    `json:"model_id"`
	ComputeMode      string    `json:"compute_mode"`
	DetectedLanguage string    `json:"detected_language"`
	Duration         float64   `json:"duration"`
	Segments         []Segment `json:"segments"`
}

// Validate checks the transcript invariants: every segment has
// 0 <= start < end, segments are sorted by start and non-overlapping
// within tolerance, and no segment extends past the audio duration.
func (t *Transcript) Validate() error {
	for i, s := range t.Segments {
		if s.Start < 0 {
			return errs.New(errs.KindDecode, "segment %d has negative start %g", i, s.Start)
		}
		if s.End <= s.Start {
			return errs.New(errs.KindDecode, "segment %d has end %g <= start %g", i, s.End, s.Start)
		}
		if t.Duration > 0 && s.End > t.Duration+overlapTolerance {
			return errs.New(errs.KindDecode, "segment %d end %g exceeds duration %g", i, s.End, t.Duration)
		}
		if i > 0 {
			prev := t.Segments[i-1]
			if s.Start < prev.Start {
				return errs.New(errs.KindDecode, "segment %d start %g before segment %d start %g", i, s.Start, i-1, prev.Start)
			}
			if prev.End > s.Start+overlapTolerance {
				return errs.New(errs.KindDecode, "segment %d overlaps segment %d (%g > %g)", i-1, i, prev.End, s.Start)
			}
		}
	}
	return nil
}

// sanitizeSegments normalizes raw engine output: stable-sorts by start,
// drops empty spans, clamps sub-tolerance boundary jitter, and caps ends
// at the audio duration. Violations larger than the tolerance are left in
// place for Validate to reject.
func sanitizeSegments(segs []Segment, duration float64) []Segment {
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })

	out := segs[:0]
	for _, s := range segs {
		if s.Start < 0 {
			s.Start = 0
		}
		if duration > 0 && s.End > duration && s.End-duration <= overlapTolerance {
			s.End = duration
		}
		if s.End <= s.Start || s.Text == "" {
			continue
		}
		if n := len(out); n > 0 {
			prev := &out[n-1]
			if prev.End > s.Start && prev.End-s.Start <= overlapTolerance {
				prev.End = s.Start
				if prev.End <= prev.Start {
					// jitter collapsed the previous span entirely
					out = out[:n-1]
				}
			}
		}
		out = append(out, s)
	}
	return out
}
