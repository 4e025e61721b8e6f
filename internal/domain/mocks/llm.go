package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/ersonp/lore-state/internal/domain/ports"
)

// TextGenerator is a mock implementation of ports.TextGenerator. Responses
// and errors are looked up by request task. It is safe for concurrent use.
type TextGenerator struct {
	Responses map[string]string
	Errors    map[string]error
	// Fragments are streamed in order by Stream.
	Fragments []string
	StreamErr error

	mu       sync.Mutex
	calls    map[string]int
	requests []ports.GenerationRequest
}

// Generate returns the response configured for req.Task.
func (m *TextGenerator) Generate(ctx context.Context, req ports.GenerationRequest) (string, error) {
	m.record(req)
	if err := m.Errors[req.Task]; err != nil {
		return "", err
	}
	resp, ok := m.Responses[req.Task]
	if !ok {
		return "", fmt.Errorf("no response configured for task %q", req.Task)
	}
	return resp, nil
}

// Stream sends the configured fragments to onFragment.
func (m *TextGenerator) Stream(ctx context.Context, req ports.GenerationRequest, onFragment func(string) error) error {
	m.record(req)
	if m.StreamErr != nil {
		return m.StreamErr
	}
	for _, f := range m.Fragments {
		if err := onFragment(f); err != nil {
			return err
		}
	}
	return nil
}

func (m *TextGenerator) record(req ports.GenerationRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[req.Task]++
	m.requests = append(m.requests, req)
}

// CallCount returns how many times task was requested.
func (m *TextGenerator) CallCount(task string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[task]
}

// Requests returns every request received, in arrival order.
func (m *TextGenerator) Requests() []ports.GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.GenerationRequest(nil), m.requests...)
}

// Request returns the last request received for task.
func (m *TextGenerator) Request(task string) (ports.GenerationRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.requests) - 1; i >= 0; i-- {
		if m.requests[i].Task == task {
			return m.requests[i], true
		}
	}
	return ports.GenerationRequest{}, false
}
