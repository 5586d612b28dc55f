// Package classify derives task metadata from block markup: answer
// type, difficulty and curriculum codes. The heuristics mirror the
// bank's own page conventions and are best-effort; unknown values stay
// empty rather than guessed.
package classify

import (
	"regexp"
	"strings"

	"github.com/Clean1ines/iXe/internal/models"
)

// Answer types a task can carry.
const (
	AnswerShort    = "short_answer"
	AnswerChoice   = "multiple_choice"
	AnswerExtended = "extended_answer"
	AnswerMatching = "matching"
)

// Difficulty levels as the bank labels them.
const (
	DifficultyBasic    = "basic"
	DifficultyAdvanced = "advanced"
	DifficultyHigh     = "high"
)

// kesPattern matches curriculum element codes: dotted numeric paths,
// optionally prefixed by a section letter ("1.4.2", "А1.3").
var kesPattern = regexp.MustCompile(`\b[A-ZА-Я]?\d+(?:\.\d+)+\b`)

// Result is the derived metadata for one block.
type Result struct {
	AnswerType string
	Difficulty string
	KESCodes   []string
}

// Service classifies extracted blocks.
type Service struct{}

// NewService builds a classifier.
func NewService() *Service {
	return &Service{}
}

// Classify derives metadata from a block's raw markup. The header
// carries the difficulty badge and KES codes; the content shows the
// answer controls before sanitization strips them.
func (s *Service) Classify(block models.Block) Result {
	return Result{
		AnswerType: answerType(block.ContentHTML),
		Difficulty: difficulty(block.HeaderHTML),
		KESCodes:   KESCodes(block.HeaderHTML),
	}
}

// answerType inspects the answer controls in the raw content.
func answerType(contentHTML string) string {
	lower := strings.ToLower(contentHTML)
	switch {
	case strings.Contains(lower, `type="checkbox"`) || strings.Contains(lower, `type="radio"`):
		return AnswerChoice
	case strings.Contains(lower, "<textarea"):
		return AnswerExtended
	case strings.Contains(lower, "развернут") || strings.Contains(lower, "развёрнут"):
		return AnswerExtended
	case strings.Contains(lower, "соответств") && strings.Contains(lower, "<select"):
		return AnswerMatching
	default:
		return AnswerShort
	}
}

// difficulty reads the level badge from the header text.
func difficulty(headerHTML string) string {
	lower := strings.ToLower(headerHTML)
	switch {
	case strings.Contains(lower, "высок"):
		return DifficultyHigh
	case strings.Contains(lower, "повышен"):
		return DifficultyAdvanced
	case strings.Contains(lower, "базов"):
		return DifficultyBasic
	}
	return ""
}

// KESCodes extracts curriculum element codes in document order,
// deduplicated.
func KESCodes(headerHTML string) []string {
	matches := kesPattern.FindAllString(headerHTML, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
