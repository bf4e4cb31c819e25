package textgen

import (
	"context"
	"sync"
)

// MockProvider satisfies Provider for tests and local development.
type MockProvider struct {
	Name_        string
	GenerateFunc func(ctx context.Context, prompt string) (string, error)

	mu      sync.Mutex
	Prompts []string
}

func (m *MockProvider) Name() string {
	if m.Name_ == "" {
		return "mock"
	}
	return m.Name_
}

func (m *MockProvider) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, prompt)
	m.mu.Unlock()
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt)
	}
	return defaultMockResponse, nil
}

// Calls reports how many times Generate has been invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

const defaultMockResponse = `[{"title":"Opening","narration":"A placeholder scene for local development.","visual_description":"A quiet village at dawn.","mood":"calm","estimated_duration":8}]`

// NewMockProvider returns a MockProvider with a fixed single-scene response.
func NewMockProvider() *MockProvider {
	return &MockProvider{Name_: "mock"}
}

// NewFailingProvider returns a MockProvider that always returns err.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		GenerateFunc: func(_ context.Context, _ string) (string, error) {
			return "", err
		},
	}
}

// NewScriptedProvider returns a MockProvider that replays results in order:
// each call consumes the next entry, which is either an error or a response.
// Calls past the end repeat the last entry.
func NewScriptedProvider(results ...ScriptedResult) *MockProvider {
	var mu sync.Mutex
	i := 0
	return &MockProvider{
		Name_: "mock-scripted",
		GenerateFunc: func(_ context.Context, _ string) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			if len(results) == 0 {
				return "", nil
			}
			r := results[min(i, len(results)-1)]
			i++
			return r.Text, r.Err
		},
	}
}

// ScriptedResult is one canned outcome for NewScriptedProvider.
type ScriptedResult struct {
	Text string
	Err  error
}

var _ Provider = (*MockProvider)(nil)
