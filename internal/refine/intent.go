package refine

import "regexp"

// Intent is the structuring intent detected in a raw transcript.
type Intent string

const (
	IntentNone      Intent = "none"
	IntentEmail     Intent = "email"
	IntentList      Intent = "list"
	IntentTranslate Intent = "translate"
)

// Heuristic patterns for spoken structuring commands. Matching is
// best-effort: a miss just means the transcript is saved verbatim.
var (
	emailRe     = regexp.MustCompile(`(?i)\b(draft|write|compose|send)\b.{0,24}\be-?mail\b`)
	listRe      = regexp.MustCompile(`(?i)\b(make|create|turn .{0,24}into)\b.{0,16}\b(a |bullet |shopping |to-?do )?list\b`)
	translateRe = regexp.MustCompile(`(?i)\btranslate\b.{0,32}\b(to|into)\b`)
)

// DetectIntent classifies a transcript's structuring intent with cheap
// in-process pattern matching. It never calls a provider.
func DetectIntent(text string) Intent {
	switch {
	case emailRe.MatchString(text):
		return IntentEmail
	case listRe.MatchString(text):
		return IntentList
	case translateRe.MatchString(text):
		return IntentTranslate
	default:
		return IntentNone
	}
}
