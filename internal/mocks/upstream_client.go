package mocks

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
)

// MockUpstreamClient implements clients.UpstreamClient for testing
type MockUpstreamClient struct {
	SendFunc func(ctx context.Context, body []byte) (*http.Response, error)

	mu     sync.Mutex
	bodies [][]byte
}

func (m *MockUpstreamClient) Send(ctx context.Context, body []byte) (*http.Response, error) {
	m.mu.Lock()
	m.bodies = append(m.bodies, append([]byte(nil), body...))
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(ctx, body)
	}
	return NewResponse(http.StatusOK, "application/json", `{}`), nil
}

// Calls returns how many times Send was invoked
func (m *MockUpstreamClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bodies)
}

// LastBody returns the body of the most recent Send call, or nil
func (m *MockUpstreamClient) LastBody() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.bodies) == 0 {
		return nil
	}
	return m.bodies[len(m.bodies)-1]
}

// NewResponse builds an upstream response with a fixed body.
// An empty contentType leaves the header unset.
func NewResponse(status int, contentType, body string) *http.Response {
	header := make(http.Header)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}
