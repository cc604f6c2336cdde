package enhance

import (
	"context"
	"strings"
	"time"
)

// MockEnhancer upper-cases the first letter and appends a period when
// missing. Tests can force failures or latency.
type MockEnhancer struct {
	Latency time.Duration
	Err     error
}

func NewMockEnhancer() *MockEnhancer { return &MockEnhancer{} }

func (m *MockEnhancer) Enhance(ctx context.Context, text string) (string, error) {
	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.Latency):
		}
	}
	if m.Err != nil {
		return "", m.Err
	}
	out := strings.TrimSpace(text)
	if out == "" {
		return "", nil
	}
	out = strings.ToUpper(out[:1]) + out[1:]
	if !strings.HasSuffix(out, ".") && !strings.HasSuffix(out, "?") && !strings.HasSuffix(out, "!") {
		out += "."
	}
	return out, nil
}
