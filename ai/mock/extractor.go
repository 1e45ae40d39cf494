package mock

import (
	"context"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/core"
)

// MockEntityExtractor is a test double for ai.EntityExtractor.
// It allows custom behavior injection via function fields.
type MockEntityExtractor struct {
	// ExtractEntitiesFunc is called by ExtractEntities if set.
	// If nil, uses the deterministic pattern pre-pass only.
	ExtractEntitiesFunc func(ctx context.Context, text string) ([]core.Entity, error)

	callCount int
}

// NewMockEntityExtractor creates a mock extractor with default
// pattern-only behavior.
// Note: Returns concrete type to allow test assertions.
func NewMockEntityExtractor() *MockEntityExtractor {
	return &MockEntityExtractor{}
}

// ExtractEntities returns pattern-matched entities, or the injected
// behavior if set.
func (m *MockEntityExtractor) ExtractEntities(ctx context.Context, text string) ([]core.Entity, error) {
	m.callCount++

	if m.ExtractEntitiesFunc != nil {
		return m.ExtractEntitiesFunc(ctx, text)
	}

	return ai.PatternEntities(text), nil
}

// CallCount returns the number of times ExtractEntities was called.
func (m *MockEntityExtractor) CallCount() int {
	return m.callCount
}

// Reset clears the call count and injected behavior.
func (m *MockEntityExtractor) Reset() {
	m.callCount = 0
	m.ExtractEntitiesFunc = nil
}
