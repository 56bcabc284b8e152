package pipeline

import (
	"context"
	"errors"
	"sync"
)

// mockLLM serves queued responses in call order. With Err set every call
// fails; with the queue exhausted it fails too, so a test that expects N
// calls queues exactly N responses.
type mockLLM struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Prompts   []string
}

func (m *mockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prompts = append(m.Prompts, prompt)
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

func (m *mockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

// ctxAwareLLM refuses calls whose context is already done, on top of the
// queued-response behavior.
type ctxAwareLLM struct {
	mockLLM
}

func (m *ctxAwareLLM) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.mockLLM.Generate(ctx, prompt)
}
