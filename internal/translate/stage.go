package translate

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ithan1985/audio2text/internal/errs"
	"github.com/ithan1985/audio2text/internal/transcribe"
)

// Stage applies translation to a finished transcript. Segment order, count,
// timing, and original text are never modified; translation only fills
// TranslatedText.
type Stage struct {
	translator Translator
	bestEffort bool
	log        zerolog.Logger
}

// NewStage creates a translation stage. With bestEffort false (the strict
// policy) any collaborator failure aborts the job; with bestEffort true,
// failed segments keep a nil TranslatedText and are counted as warnings.
func NewStage(translator Translator, bestEffort bool, log zerolog.Logger) *Stage {
	return &Stage{translator: translator, bestEffort: bestEffort, log: log}
}

// Apply translates every segment of t into target. It returns the number
// of best-effort warnings. In strict mode the transcript is only mutated
// once every segment has translated successfully, so an aborted job never
// carries partially translated output.
func (s *Stage) Apply(ctx context.Context, t *transcribe.Transcript, target string) (int, error) {
	supported, err := s.translator.Languages(ctx)
	if err != nil {
		if !s.bestEffort {
			return 0, errs.Wrap(errs.KindTranslation, "list supported languages", err)
		}
		s.log.Warn().Err(err).Msg("cannot list supported languages, attempting translation anyway")
		supported = nil
	}
	if supported != nil && !containsLang(supported, target) {
		if !s.bestEffort {
			return 0, errs.New(errs.KindTranslation, "unsupported target language %q", target)
		}
		s.log.Warn().Str("target", target).Msg("unsupported target language, leaving transcript untranslated")
		return len(t.Segments), nil
	}

	source := t.DetectedLanguage

	translated := make([]*string, len(t.Segments))
	warnings := 0
	for i := range t.Segments {
		text, err := s.translator.Translate(ctx, t.Segments[i].Text, source, target)
		if err != nil {
			if !s.bestEffort {
				return 0, errs.Wrap(errs.KindTranslation, "translate segment", err)
			}
			warnings++
			s.log.Warn().Err(err).Int("segment", i).Msg("segment translation failed")
			continue
		}
		translated[i] = &text
	}

	for i := range t.Segments {
		t.Segments[i].TranslatedText = translated[i]
	}
	return warnings, nil
}

func containsLang(codes []string, target string) bool {
	for _, c := range codes {
		if c == target {
			return true
		}
	}
	return false
}
