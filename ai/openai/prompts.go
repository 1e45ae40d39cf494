package openai

import (
	"fmt"
	"strings"

	"github.com/poiesic/docflow/ai"
)

const classificationResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "category": {
      "type": "string"
    },
    "subcategory": {
      "type": "string"
    },
    "confidence": {
      "type": "number",
      "minimum": 0,
      "maximum": 1
    }
  },
  "required": ["category", "confidence"],
  "additionalProperties": false
}`

const classificationPromptTemplate = `Classify the given document text into exactly one category and return the result as JSON.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- The category field must be exactly one of: %s.
- The subcategory field, if present, should refine the category (e.g. "msds" for safety, "maintenance" for equipment). Leave it empty if unsure.
- Confidence is a number from 0.0 (guess) to 1.0 (certain). Base it on how clearly the text fits the category.
- If the text fits no category, use "unknown" with low confidence.
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

Example:
Input: "MATERIAL SAFETY DATA SHEET - Benzene. Section 1: Identification. Flash point -11C..."
Output:
{
  "category": "safety",
  "subcategory": "msds",
  "confidence": 0.97
}

Example:
Input: "Monthly calibration record for flow meter FM-204. Calibrated against reference standard..."
Output:
{
  "category": "equipment",
  "subcategory": "calibration",
  "confidence": 0.9
}`

const entityResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "entities": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "type": {
            "type": "string"
          },
          "value": {
            "type": "string"
          },
          "confidence": {
            "type": "number",
            "minimum": 0,
            "maximum": 1
          }
        },
        "required": ["type", "value", "confidence"],
        "additionalProperties": false
      }
    }
  },
  "required": ["entities"],
  "additionalProperties": false
}`

const entityPromptTemplate = `Extract the domain entities mentioned in the given document text and return them as JSON.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- The type field must match exactly one of the listed values: %s.
- The value field is the entity text as it appears in the document, trimmed.
- Confidence is a number from 0.0 to 1.0 reflecting how certain the extraction is.
- Include only entities that are explicitly present in the text. Do not hallucinate.
- If no entities can be identified, return "entities": [].
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

Example:
Input: "Operator J. Alvarez transferred 5000 gal of toluene from tank T-101 on 2024-03-15."
Output:
{
  "entities": [
    {"type":"personnel","value":"J. Alvarez","confidence":0.9},
    {"type":"measurement","value":"5000 gal","confidence":0.95},
    {"type":"chemical_name","value":"toluene","confidence":0.95},
    {"type":"equipment_id","value":"T-101","confidence":0.95},
    {"type":"date_time","value":"2024-03-15","confidence":0.95}
  ]
}

Example:
Input: "Wear appropriate PPE. In case of contact flush with water for 15 minutes."
Output:
{
  "entities": [
    {"type":"safety_info","value":"flush with water for 15 minutes","confidence":0.8}
  ]
}`

// buildClassifyPrompt creates the classification system prompt with the
// category vocabulary embedded.
func buildClassifyPrompt() string {
	categories := append(append([]string{}, ai.Categories...), ai.CategoryUnknown)
	return fmt.Sprintf(classificationPromptTemplate,
		classificationResponseSchema,
		strings.Join(categories, ", "))
}

// buildEntityPrompt creates the entity extraction system prompt with the
// entity type vocabulary embedded.
func buildEntityPrompt() string {
	return fmt.Sprintf(entityPromptTemplate,
		entityResponseSchema,
		strings.Join(ai.EntityTypes, ", "))
}
