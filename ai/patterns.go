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


package ai

import (
	"regexp"
	"strings"

	"github.com/poiesic/docflow/core"
)

// PatternConfidence is assigned to every pattern-matched entity. The
// patterns are precise enough that a hit is near-certain, but not
// validated against any registry.
const PatternConfidence = 0.9

// entityPatterns pairs an entity type with the expressions that recognize
// it directly in text. Pattern extraction runs before any model call and
// its results win over model output for the same value.
var entityPatterns = []struct {
	entityType string
	patterns   []*regexp.Regexp
}{
	{
		// Tag numbers for tanks, pumps, valves, exchangers, compressors.
		entityType: "equipment_id",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b[TPVEC]-\d{3,4}[A-Z]?\b`),
			regexp.MustCompile(`\bTK-\d{2,4}\b`),
		},
	},
	{
		entityType: "certificate_number",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\bCERT[-/]\d{4,8}\b`),
			regexp.MustCompile(`\b[A-Z]{2,4}-\d{4}-\d{3,6}\b`),
		},
	},
	{
		entityType: "measurement",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b\d+(?:\.\d+)?\s?(?:psig?|bar|kPa|MPa|ppm|ppb|bbl|gal|L|m3|kg|lbs?|tonnes?)\b`),
			regexp.MustCompile(`\b\d+(?:\.\d+)?\s?°\s?[CF]\b`),
		},
	},
	{
		entityType: "date_time",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
			regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
		},
	},
	{
		entityType: "chemical_name",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(benzene|toluene|xylene|methanol|ethanol|naphtha|propane|butane|ammonia|chlorine|sulfuric acid|hydrochloric acid|sodium hydroxide|diesel|gasoline|kerosene|crude oil)\b`),
		},
	},
}

// PatternEntities extracts entities recognizable by pattern alone.
// Results are deduplicated by (type, value) and carry PatternConfidence.
// The scan is deterministic: same text, same entities, same order.
func PatternEntities(text string) []core.Entity {
	var out []core.Entity
	seen := make(map[string]bool)
	for _, ep := range entityPatterns {
		for _, re := range ep.patterns {
			for _, match := range re.FindAllString(text, -1) {
				value := strings.TrimSpace(match)
				key := ep.entityType + "\x00" + strings.ToLower(value)
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, core.Entity{
					Type:       ep.entityType,
					Value:      value,
					Confidence: PatternConfidence,
				})
			}
		}
	}
	return out
}

// MergeEntities combines pattern and model entities, preferring the
// pattern result when both report the same (type, value) pair. Model
// entities with unknown types are flagged rather than dropped.
func MergeEntities(pattern, model []core.Entity) []core.Entity {
	merged := make([]core.Entity, 0, len(pattern)+len(model))
	seen := make(map[string]bool, len(pattern))
	for _, e := range pattern {
		seen[e.Type+"\x00"+strings.ToLower(e.Value)] = true
		merged = append(merged, e)
	}
	for _, e := range model {
		key := e.Type + "\x00" + strings.ToLower(e.Value)
		if seen[key] {
			continue
		}
		seen[key] = true
		if !KnownEntityType(e.Type) {
			e.Flagged = true
		}
		merged = append(merged, e)
	}
	return merged
}
