package forwarder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sleepstars/deepbridge/internal/clients"
	"github.com/sleepstars/deepbridge/internal/logger"
	"github.com/sleepstars/deepbridge/internal/metrics"
	"github.com/sleepstars/deepbridge/internal/modelbridge"
	"github.com/sleepstars/deepbridge/internal/models"
)

// Payload carries one chat request through the forwarding stages
type Payload struct {
	RequestID     string
	Raw           []byte
	Request       *models.ChatCompletionRequest
	ResolvedModel json.RawMessage
	UpstreamBody  []byte
	Response      *http.Response
}

// Stage is one step of the forwarding pipeline
type Stage interface {
	Execute(ctx context.Context, data *Payload) error
	Name() string
}

// Forwarder turns an inbound chat-completion body into one upstream call
type Forwarder struct {
	stages   []Stage
	resolver modelbridge.Resolver
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// New creates a forwarder using resolver for model ids and upstream for the call.
// m may be nil.
func New(resolver modelbridge.Resolver, upstream clients.UpstreamClient, m *metrics.Metrics) *Forwarder {
	log := logger.GetLogger().WithComponent("forwarder")
	log.Info("Creating forwarder with %s model policy", resolver.Policy())

	return &Forwarder{
		resolver: resolver,
		metrics:  m,
		logger:   log,
		stages: []Stage{
			newDecodeStage(),
			newResolveStage(resolver, m),
			newEncodeStage(),
			newDispatchStage(upstream, m),
		},
	}
}

// Policy reports the model policy the forwarder was built with
func (f *Forwarder) Policy() string {
	return f.resolver.Policy()
}

// Forward runs every stage and returns the upstream response.
// On success the caller must pass the response to Relay or close its body.
// A *modelbridge.ModelNotFoundError in the chain means no upstream call was made.
func (f *Forwarder) Forward(ctx context.Context, requestID string, raw []byte) (*http.Response, error) {
	log := f.logger.WithRequestID(requestID)
	log.Debug("Forwarding chat completion, body size %d", len(raw))

	payload := &Payload{
		RequestID: requestID,
		Raw:       raw,
	}

	for _, stage := range f.stages {
		stageName := stage.Name()

		select {
		case <-ctx.Done():
			log.Warn("Forwarding cancelled before stage %s", stageName)
			return nil, ctx.Err()
		default:
			if err := stage.Execute(ctx, payload); err != nil {
				return nil, fmt.Errorf("stage %s failed: %w", stageName, err)
			}
			log.Debug("Stage %s completed", stageName)
		}
	}

	log.Debug("Upstream answered %d for model %s", payload.Response.StatusCode, payload.ResolvedModel)
	return payload.Response, nil
}
