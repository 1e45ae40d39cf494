package ai

import "strings"

// CategoryUnknown is assigned when classification cannot decide.
const CategoryUnknown = "unknown"

// Categories defines the valid document categories.
// Classifiers must return one of these; anything else is normalized to
// CategoryUnknown.
var Categories = []string{
	"safety",
	"technical",
	"business",
	"equipment",
	"regulatory",
	"operational",
	"environmental",
	"quality",
}

// Subcategories lists the recognized refinements per category. A
// subcategory outside this table is kept as-is; only the top-level
// category is normalized.
var Subcategories = map[string][]string{
	"safety":        {"msds", "incident_report", "inspection", "procedure", "training"},
	"technical":     {"specification", "drawing", "manual", "datasheet"},
	"business":      {"contract", "invoice", "correspondence", "report"},
	"equipment":     {"maintenance", "calibration", "certification", "inventory"},
	"regulatory":    {"permit", "compliance", "audit", "filing"},
	"operational":   {"logbook", "shift_report", "transfer_record", "schedule"},
	"environmental": {"emissions", "waste", "monitoring", "remediation"},
	"quality":       {"test_result", "certificate_of_analysis", "nonconformance"},
}

// EntityTypes defines the valid types for extracted entities. Extractors
// may return other types; those entities are flagged rather than dropped.
var EntityTypes = []string{
	"equipment_id",
	"chemical_name",
	"location",
	"personnel",
	"measurement",
	"date_time",
	"safety_info",
	"certificate_number",
}

// NormalizeCategory lowercases a category and maps anything outside the
// known set to CategoryUnknown.
func NormalizeCategory(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	for _, known := range Categories {
		if c == known {
			return c
		}
	}
	return CategoryUnknown
}

// KnownEntityType reports whether t is in the entity vocabulary.
func KnownEntityType(t string) bool {
	for _, known := range EntityTypes {
		if t == known {
			return true
		}
	}
	return false
}
