package forwarder

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sleepstars/deepbridge/internal/metrics"
	"github.com/sleepstars/deepbridge/internal/mocks"
	"github.com/sleepstars/deepbridge/internal/modelbridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flushRecorder is a concurrency-safe ResponseWriter that reports every flush
type flushRecorder struct {
	mu      sync.Mutex
	header  http.Header
	status  int
	body    bytes.Buffer
	flushes chan string
	failW   bool
}

func newFlushRecorder() *flushRecorder {
	return &flushRecorder{header: make(http.Header), flushes: make(chan string, 16)}
}

func (r *flushRecorder) Header() http.Header { return r.header }

func (r *flushRecorder) WriteHeader(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
}

func (r *flushRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failW {
		return 0, errors.New("broken pipe")
	}
	return r.body.Write(p)
}

func (r *flushRecorder) Flush() {
	r.mu.Lock()
	snapshot := r.body.String()
	r.mu.Unlock()
	select {
	case r.flushes <- snapshot:
	default:
	}
}

func (r *flushRecorder) Body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.String()
}

// closeTracker records whether the upstream body was closed
type closeTracker struct {
	io.Reader
	mu     sync.Mutex
	closed bool
}

func (c *closeTracker) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if pc, ok := c.Reader.(io.Closer); ok {
		return pc.Close()
	}
	return nil
}

func (c *closeTracker) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestForwarder(m *metrics.Metrics) *Forwarder {
	return New(modelbridge.PassThrough{}, &mocks.MockUpstreamClient{}, m)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/event-stream", ContentType(mocks.NewResponse(200, "text/event-stream", "")))
	assert.Equal(t, "application/json", ContentType(mocks.NewResponse(200, "", "")))
}

func TestRelay_CopiesStatusTypeAndBody(t *testing.T) {
	f := newTestForwarder(nil)
	w := httptest.NewRecorder()
	resp := mocks.NewResponse(http.StatusTeapot, "text/plain; charset=utf-8", "short and stout")

	n, err := f.Relay(context.Background(), w, resp)
	require.NoError(t, err)

	assert.Equal(t, int64(len("short and stout")), n)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "short and stout", w.Body.String())
}

func TestRelay_DefaultsContentType(t *testing.T) {
	f := newTestForwarder(nil)
	w := httptest.NewRecorder()

	_, err := f.Relay(context.Background(), w, mocks.NewResponse(http.StatusOK, "", `{"ok":true}`))
	require.NoError(t, err)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestRelay_StreamsBeforeUpstreamFinishes(t *testing.T) {
	m := metrics.New()
	f := newTestForwarder(m)
	pr, pw := io.Pipe()
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		Body:       pr,
	}
	w := newFlushRecorder()

	done := make(chan error, 1)
	go func() {
		_, err := f.Relay(context.Background(), w, resp)
		done <- err
	}()

	first := "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n"
	_, err := pw.Write([]byte(first))
	require.NoError(t, err)

	// The chunk must reach the caller while the upstream is still open.
	deadline := time.After(2 * time.Second)
	for seen := false; !seen; {
		select {
		case snapshot := <-w.flushes:
			seen = snapshot == first
		case <-deadline:
			t.Fatal("first chunk was not flushed before the upstream finished")
		}
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelaysActive))

	_, err = pw.Write([]byte("data: [DONE]\n\n"))
	require.NoError(t, err)
	require.NoError(t, pw.Close())

	require.NoError(t, <-done)
	assert.Equal(t, first+"data: [DONE]\n\n", w.Body())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RelaysActive))
}

func TestRelay_UpstreamBreaksMidStream(t *testing.T) {
	f := newTestForwarder(nil)
	pr, pw := io.Pipe()
	body := &closeTracker{Reader: pr}
	resp := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: body}
	w := newFlushRecorder()

	go func() {
		_, _ = pw.Write([]byte("data: partial\n\n"))
		pw.CloseWithError(errors.New("connection reset"))
	}()

	_, err := f.Relay(context.Background(), w, resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read upstream")
	assert.Equal(t, "data: partial\n\n", w.Body(), "relay truncates at the last complete read")
	assert.True(t, body.Closed())
}

func TestRelay_ClientGone(t *testing.T) {
	f := newTestForwarder(nil)
	body := &closeTracker{Reader: bytes.NewReader([]byte("data: x\n\n"))}
	resp := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: body}
	w := newFlushRecorder()
	w.failW = true

	_, err := f.Relay(context.Background(), w, resp)
	assert.ErrorIs(t, err, ErrClientGone)
	assert.True(t, body.Closed())
}

func TestRelay_ContextCancelled(t *testing.T) {
	f := newTestForwarder(nil)
	pr, pw := io.Pipe()
	defer pw.Close()
	body := &closeTracker{Reader: pr}
	resp := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: body}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Relay(ctx, newFlushRecorder(), resp)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, body.Closed())
}
