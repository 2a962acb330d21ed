package clients

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

const (
	contentTypeJSON = "application/json"
	acceptUpstream  = "application/json, text/event-stream"
)

// HTTPUpstreamClient implements UpstreamClient over net/http
type HTTPUpstreamClient struct {
	config UpstreamClientConfig
	client *http.Client
}

// NewUpstreamClient creates a client for the configured upstream
func NewUpstreamClient(config UpstreamClientConfig) *HTTPUpstreamClient {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &HTTPUpstreamClient{
		config: config,
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
	}
}

// Send issues a single POST; no retries. Non-2xx responses are returned, not converted to errors.
func (c *HTTPUpstreamClient) Send(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set("Accept", acceptUpstream)
	httpReq.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	return resp, nil
}

// Close releases idle upstream connections
func (c *HTTPUpstreamClient) Close() {
	c.client.CloseIdleConnections()
}
