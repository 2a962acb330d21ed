package forwarder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const (
	relayBufferSize    = 32 * 1024
	defaultContentType = "application/json"
)

// ErrClientGone is returned by Relay when writing to the caller fails
var ErrClientGone = errors.New("client connection closed")

// ContentType returns the upstream content type, defaulting to JSON
func ContentType(resp *http.Response) string {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return defaultContentType
}

// Relay copies the upstream status, content type and body to w.
// Every chunk is flushed as soon as it is read so SSE streams reach the caller live.
// The upstream body is always closed. After the header is written, errors can
// only truncate the response, so they are returned for logging.
func (f *Forwarder) Relay(ctx context.Context, w http.ResponseWriter, resp *http.Response) (int64, error) {
	defer resp.Body.Close()
	defer f.metrics.RelayStarted()()

	w.Header().Set("Content-Type", ContentType(resp))
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	buf := make([]byte, relayBufferSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("%w: %v", ErrClientGone, err)
			}
			written += int64(n)
			if flusher != nil {
				flusher.Flush()
			}
		}

		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return written, ctxErr
			}
			return written, fmt.Errorf("read upstream: %w", readErr)
		}
	}
}
