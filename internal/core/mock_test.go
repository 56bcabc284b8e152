package core

import (
	"context"
	"errors"
	"sync"
)

type MockLLMClient struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Calls     int
}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", errors.New("mock: no responses queued")
	}
	resp := m.Responses[0]
	m.Responses = m.Responses[1:]
	return resp, nil
}
