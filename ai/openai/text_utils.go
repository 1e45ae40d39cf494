package openai

import (
	"fmt"
	"strings"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/core"
)

// classifyPromptBudget bounds how much document text is sent for
// classification. Category signals sit in headers and opening sections;
// sending whole manuals just burns context window.
const classifyPromptBudget = 4000

// entityPromptBudget bounds how much document text is sent for entity
// extraction per call.
const entityPromptBudget = 8000

// truncateForPrompt cuts text to at most limit bytes, backing up to the
// previous space so a word is not split mid-token.
func truncateForPrompt(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if idx := strings.LastIndexByte(cut, ' '); idx > limit/2 {
		cut = cut[:idx]
	}
	return cut
}

// stripCodeFences removes markdown code fences some models wrap around
// JSON output despite instructions.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// clampConfidence forces a model-reported confidence into [0,1].
func clampConfidence(c float32) float32 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// wrapModelErr wraps a backend error in the stage sentinel, marking it
// retryable when the failure looks transient.
func wrapModelErr(sentinel error, err error) error {
	wrapped := fmt.Errorf("%w: %w", sentinel, err)
	if ai.IsTransient(err) {
		return core.MarkRetryable(wrapped)
	}
	return wrapped
}
