package mock

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/poiesic/notebase/ai"
)

// MockTransformer is a test double for ai.Transformer.
// It allows custom behavior injection via function fields.
type MockTransformer struct {
	// TransformFunc is called by Transform if set.
	// If nil, echoes the prompt and the first line of content.
	TransformFunc func(ctx context.Context, req ai.TransformRequest) (string, error)

	callCount atomic.Int64
	last      atomic.Pointer[ai.TransformRequest]
}

// NewMockTransformer creates a mock transformer with default behavior.
func NewMockTransformer() *MockTransformer {
	return &MockTransformer{}
}

// Transform returns a deterministic insight built from req.
func (m *MockTransformer) Transform(ctx context.Context, req ai.TransformRequest) (string, error) {
	m.callCount.Add(1)
	m.last.Store(&req)

	if m.TransformFunc != nil {
		return m.TransformFunc(ctx, req)
	}

	first, _, _ := strings.Cut(strings.TrimSpace(req.Content), "\n")
	return req.Prompt + ": " + first, nil
}

// CallCount returns the number of times Transform was called.
func (m *MockTransformer) CallCount() int {
	return int(m.callCount.Load())
}

// LastRequest returns the most recent request, or nil before the first call.
func (m *MockTransformer) LastRequest() *ai.TransformRequest {
	return m.last.Load()
}
