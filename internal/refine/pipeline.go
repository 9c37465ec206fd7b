// Package refine converts a raw transcript into the text that is saved:
// lightweight intent detection followed by an optional generative
// restructuring pass. Voice capture must never lose the user's words, so
// every provider failure degrades to the raw transcript instead of
// propagating.
package refine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ravnholt/voxnote/internal/apperr"
	"github.com/ravnholt/voxnote/internal/provider"
)

// systemInstruction constrains the refinement call: the output must stay
// in the transcript's language and must not invent content the speaker
// did not imply.
const systemInstruction = `You restructure voice transcripts. Keep the transcript's original language. Do not add facts, names, or content the transcript does not imply. Return only the restructured text.`

const defaultTimeout = 20 * time.Second

// Result is the outcome of a refinement pass.
type Result struct {
	// Raw is the trimmed transcript as spoken, retained for undo-to-raw.
	Raw string
	// Final is the content to save.
	Final string
	// Refined is true when Final came from the generation provider.
	Refined bool
	// Failed is true when refinement was attempted but the provider
	// failed; Final then equals Raw and the UI shows a soft indicator.
	Failed bool
}

// Pipeline runs intent detection and refinement.
type Pipeline struct {
	gen     provider.Generator
	logger  *slog.Logger
	timeout time.Duration
}

// New creates a Pipeline. timeout bounds the generation call; zero means
// the default.
func New(gen provider.Generator, logger *slog.Logger, timeout time.Duration) *Pipeline {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Pipeline{gen: gen, logger: logger, timeout: timeout}
}

// Refine produces the final note content for a raw transcript. The only
// error it returns is apperr.ErrEmptyTranscript; provider failures are
// absorbed into a degraded Result.
func (p *Pipeline) Refine(ctx context.Context, raw string) (Result, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Result{}, apperr.ErrEmptyTranscript
	}

	intent := DetectIntent(trimmed)
	if intent == IntentNone {
		return Result{Raw: trimmed, Final: trimmed}, nil
	}

	genCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	prompt := buildPrompt(intent, trimmed)
	refined, err := p.gen.Generate(genCtx, prompt, systemInstruction)
	if err != nil {
		p.logger.Warn("refine: generation failed, keeping raw transcript",
			slog.String("intent", string(intent)),
			slog.String("error", err.Error()))
		return Result{Raw: trimmed, Final: trimmed, Failed: true}, nil
	}
	refined = strings.TrimSpace(refined)
	if refined == "" {
		p.logger.Warn("refine: provider returned empty text, keeping raw transcript",
			slog.String("intent", string(intent)))
		return Result{Raw: trimmed, Final: trimmed, Failed: true}, nil
	}

	return Result{Raw: trimmed, Final: refined, Refined: true}, nil
}

func buildPrompt(intent Intent, transcript string) string {
	var task string
	switch intent {
	case IntentEmail:
		task = "Rewrite this transcript as the email it describes."
	case IntentList:
		task = "Rewrite this transcript as the list it describes, one item per line."
	case IntentTranslate:
		task = "Perform the translation this transcript asks for, translating only the dictated content."
	default:
		task = "Clean up this transcript."
	}
	return fmt.Sprintf("%s\n\nTranscript:\n%s", task, transcript)
}
