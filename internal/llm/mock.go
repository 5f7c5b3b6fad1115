package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockResponse is a canned response for the MockProvider. A response with a
// Purpose is only served to requests made under that purpose; one without
// is served to any request.
type MockResponse struct {
	Purpose string
	Content json.RawMessage
	Usage   Usage
	Err     error
}

// MockProvider is a deterministic Provider for tests. Responses are served
// in FIFO order per purpose and go through the same schema check as the
// real providers, so a canned verdict that breaks its schema fails the way
// a live one would.
type MockProvider struct {
	mu        sync.Mutex
	responses []MockResponse
	Calls     []Request
	purposes  []string
}

// NewMockProvider creates a MockProvider with the given canned responses.
func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{responses: responses}
}

// Generate records the request and answers it with the first queued
// response for its purpose. With nothing queued it fails with
// ErrProviderUnavailable.
func (m *MockProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	purpose := PurposeFrom(ctx)

	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	m.purposes = append(m.purposes, purpose)
	resp, ok := m.next(purpose)
	m.mu.Unlock()

	if !ok {
		return nil, &ErrProviderUnavailable{Err: fmt.Errorf("no canned response for %s", purpose)}
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return finish(req, resp.Content, resp.Usage, "mock", "end")
}

func (m *MockProvider) next(purpose string) (MockResponse, bool) {
	for i, r := range m.responses {
		if r.Purpose == "" || r.Purpose == purpose {
			m.responses = append(m.responses[:i:i], m.responses[i+1:]...)
			return r, true
		}
	}
	return MockResponse{}, false
}

func (m *MockProvider) ModelID() string {
	return "mock"
}

// AddResponse appends a canned response to the queue.
func (m *MockProvider) AddResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

// CallCount returns the number of Generate calls made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// CallsFor returns the requests made under purpose, in order.
func (m *MockProvider) CallsFor(purpose string) []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Request
	for i, p := range m.purposes {
		if p == purpose {
			out = append(out, m.Calls[i])
		}
	}
	return out
}
