package clients

import (
	"context"
	"net/http"
	"time"
)

// UpstreamClient sends translated chat requests to the upstream endpoint
type UpstreamClient interface {
	// Send posts body and returns the raw response; the caller owns resp.Body
	Send(ctx context.Context, body []byte) (*http.Response, error)
}

// UpstreamClientConfig contains configuration for the upstream client
type UpstreamClientConfig struct {
	URL       string
	UserAgent string
	// Timeout bounds the whole exchange including the streamed body; zero means none
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}
