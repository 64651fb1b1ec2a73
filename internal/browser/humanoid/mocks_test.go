// FILE: ./internal/browser/humanoid/mocks_test.go
package humanoid

import (
	"context"
	"sync"
	"time"
)

// mockExecutor records keys and sleeps. failOnKey, when positive, makes the
// n-th SendKeys call fail.
type mockExecutor struct {
	mu             sync.Mutex
	sentKeys       []string
	sleepDurations []time.Duration
	failOnKey      int
	keyCalls       int
	returnErr      error
}

func (m *mockExecutor) Sleep(ctx context.Context, d time.Duration) error {
	m.mu.Lock()
	m.sleepDurations = append(m.sleepDurations, d)
	m.mu.Unlock()
	return ctx.Err()
}

func (m *mockExecutor) SendKeys(ctx context.Context, keys string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keyCalls++
	if m.failOnKey > 0 && m.keyCalls == m.failOnKey {
		return m.returnErr
	}
	m.sentKeys = append(m.sentKeys, keys)
	return nil
}

func (m *mockExecutor) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sentKeys))
	copy(out, m.sentKeys)
	return out
}

func (m *mockExecutor) sleeps() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.sleepDurations))
	copy(out, m.sleepDurations)
	return out
}
