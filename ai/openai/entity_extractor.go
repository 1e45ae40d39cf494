// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// EntityExtractor implements ai.EntityExtractor using OpenAI-compatible
// chat APIs, combined with a deterministic pattern pre-pass. Pattern
// matches always survive; model output fills in the entity types that
// patterns cannot recognize.
type EntityExtractor struct {
	client        llms.Model
	minConfidence float32
	logger        *slog.Logger
}

// entity is an internal type used for JSON unmarshaling.
type entity struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float32 `json:"confidence"`
}

// entityResponse is the wrapper structure for the LLM's JSON response.
type entityResponse struct {
	Entities []entity `json:"entities"`
}

// newEntityExtractor is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEntityExtractor(config *ai.Config) (*EntityExtractor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Use "none" as token for local OpenAI-compatible services that don't require authentication
	client, err := openai.New(
		openai.WithBaseURL(config.ChatHost),
		openai.WithToken("none"),
		openai.WithModel(config.ChatModel),
	)
	if err != nil {
		return nil, err
	}

	return &EntityExtractor{
		client:        client,
		minConfidence: config.MinEntityConfidence,
		logger:        slog.Default().With("component", "openai-entity-extractor"),
	}, nil
}

// NewEntityExtractor creates a new entity extractor using the provided configuration.
//
// Returns ai.EntityExtractor interface to enforce abstraction.
func NewEntityExtractor(config *ai.Config) (ai.EntityExtractor, error) {
	return newEntityExtractor(config)
}

// ExtractEntities extracts typed entities from document text. The
// pattern pre-pass runs first and never fails; if the model call fails
// the pattern results are returned alongside the error so callers can
// decide whether partial results are acceptable.
func (e *EntityExtractor) ExtractEntities(ctx context.Context, text string) ([]core.Entity, error) {
	patternHits := ai.PatternEntities(text)

	modelHits, err := e.modelEntities(ctx, truncateForPrompt(text, entityPromptBudget))
	if err != nil {
		e.logger.Error("model entity extraction failed", "patternHits", len(patternHits), "err", err)
		return patternHits, err
	}

	merged := ai.MergeEntities(patternHits, modelHits)
	e.logger.Debug("extracted entities",
		"pattern", len(patternHits),
		"model", len(modelHits),
		"merged", len(merged))
	return merged, nil
}

// modelEntities performs the LLM extraction leg.
func (e *EntityExtractor) modelEntities(ctx context.Context, text string) ([]core.Entity, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(buildEntityPrompt())},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(text)},
		},
	}

	// Try up to 3 times in case of malformed JSON
	var result entityResponse
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		response, err := e.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			return nil, wrapModelErr(core.ErrEntityExtraction, err)
		}

		if len(response.Choices) < 1 {
			e.logger.Debug("no choices returned from model")
			return []core.Entity{}, nil
		}

		responseText := repairJSON(stripCodeFences(response.Choices[0].Content))
		if err := json.Unmarshal([]byte(responseText), &result); err != nil {
			lastErr = err
			e.logger.Warn("error parsing entity response",
				"attempt", attempt+1,
				"response", responseText,
				"err", err)
			continue
		}

		lastErr = nil
		break
	}

	if lastErr != nil {
		e.logger.Error("failed to parse entity response after retries", "err", lastErr)
		return nil, wrapModelErr(core.ErrEntityExtraction, lastErr)
	}

	extracted := make([]core.Entity, 0, len(result.Entities))
	for _, ent := range result.Entities {
		conf := clampConfidence(ent.Confidence)
		if conf < e.minConfidence {
			continue
		}
		extracted = append(extracted, core.Entity{
			Type:       strings.ReplaceAll(strings.TrimSpace(ent.Type), " ", "_"),
			Value:      strings.TrimSpace(ent.Value),
			Confidence: conf,
		})
	}
	return extracted, nil
}
