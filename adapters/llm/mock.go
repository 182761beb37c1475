package llm

import (
	"context"
	"sync"
)

// MockOracle is an in-memory oracle for tests. When Script is set it is
// invoked per call; otherwise Response/Err are returned verbatim.
type MockOracle struct {
	mu       sync.Mutex
	calls    int
	Response string
	Err      error
	Script   func(call int, prompt string) (string, error)
}

func (m *MockOracle) Ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	call := m.calls
	m.calls++
	script := m.Script
	m.mu.Unlock()

	if script != nil {
		return script(call, prompt)
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

// Calls reports how many times Ask was invoked.
func (m *MockOracle) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
