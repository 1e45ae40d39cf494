package mock

import (
	"context"
	"strings"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/core"
)

// MockClassifier is a test double for ai.Classifier.
// It allows custom behavior injection via function fields.
type MockClassifier struct {
	// ClassifyFunc is called by Classify if set.
	// If nil, uses default keyword-based behavior.
	ClassifyFunc func(ctx context.Context, text string) (core.Classification, error)

	callCount int
}

// NewMockClassifier creates a mock classifier with default keyword-based behavior.
// Note: Returns concrete type to allow test assertions.
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{}
}

// Classify returns a classification derived from keywords in the text,
// or the injected behavior if set.
func (m *MockClassifier) Classify(ctx context.Context, text string) (core.Classification, error) {
	m.callCount++

	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, text)
	}

	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "safety") || strings.Contains(lower, "msds") || strings.Contains(lower, "hazard"):
		return core.Classification{Category: "safety", Confidence: 0.9}, nil
	case strings.Contains(lower, "calibration") || strings.Contains(lower, "maintenance"):
		return core.Classification{Category: "equipment", Confidence: 0.85}, nil
	case strings.Contains(lower, "invoice") || strings.Contains(lower, "contract"):
		return core.Classification{Category: "business", Confidence: 0.85}, nil
	case strings.Contains(lower, "permit") || strings.Contains(lower, "compliance"):
		return core.Classification{Category: "regulatory", Confidence: 0.85}, nil
	}
	return core.Classification{Category: ai.CategoryUnknown, Confidence: 0.3}, nil
}

// CallCount returns the number of times Classify was called.
func (m *MockClassifier) CallCount() int {
	return m.callCount
}

// Reset clears the call count and injected behavior.
func (m *MockClassifier) Reset() {
	m.callCount = 0
	m.ClassifyFunc = nil
}
