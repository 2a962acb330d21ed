package forwarder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sleepstars/deepbridge/internal/clients"
	"github.com/sleepstars/deepbridge/internal/logger"
	"github.com/sleepstars/deepbridge/internal/metrics"
	"github.com/sleepstars/deepbridge/internal/modelbridge"
	"github.com/sleepstars/deepbridge/internal/models"
)

// ErrNullBody is returned when the chat body is the JSON literal null
var ErrNullBody = errors.New("request body is null")

// decodeStage parses the inbound body into a ChatCompletionRequest.
// Valid JSON that is not an object carries no fields and decodes to an empty request.
type decodeStage struct{}

func newDecodeStage() *decodeStage {
	return &decodeStage{}
}

func (s *decodeStage) Name() string {
	return "decode"
}

func (s *decodeStage) Execute(ctx context.Context, data *Payload) error {
	trimmed := bytes.TrimSpace(data.Raw)
	if !sonic.Valid(trimmed) {
		return fmt.Errorf("invalid JSON body")
	}

	var req models.ChatCompletionRequest
	switch {
	case string(trimmed) == "null":
		return ErrNullBody
	case trimmed[0] != '{':
		data.Request = &req
		return nil
	}
	if err := sonic.Unmarshal(trimmed, &req); err != nil {
		return fmt.Errorf("unmarshal request: %w", err)
	}
	data.Request = &req
	return nil
}

// resolveStage applies the model policy
type resolveStage struct {
	resolver modelbridge.Resolver
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

func newResolveStage(resolver modelbridge.Resolver, m *metrics.Metrics) *resolveStage {
	return &resolveStage{
		resolver: resolver,
		metrics:  m,
		logger:   logger.GetLogger().WithComponent("model_resolver"),
	}
}

func (s *resolveStage) Name() string {
	return "resolve"
}

func (s *resolveStage) Execute(ctx context.Context, data *Payload) error {
	name, isString := data.Request.ModelName()
	if !isString {
		// A missing or non-string model is sent as it came under pass-through.
		if _, ok := s.resolver.(modelbridge.PassThrough); ok {
			data.ResolvedModel = data.Request.Model
			return nil
		}
		name = string(bytes.TrimSpace(data.Request.Model))
	}

	resolved, err := s.resolver.Resolve(name)
	if err != nil {
		var notFound *modelbridge.ModelNotFoundError
		if errors.As(err, &notFound) {
			s.metrics.RejectModel()
			s.logger.WithRequestID(data.RequestID).Info("Rejected unknown model %q", notFound.Model)
		}
		return err
	}
	data.ResolvedModel = models.StringValue(resolved)
	return nil
}

// encodeStage builds the upstream body; model and stream are kept only when they were sent
type encodeStage struct{}

func newEncodeStage() *encodeStage {
	return &encodeStage{}
}

func (s *encodeStage) Name() string {
	return "encode"
}

func (s *encodeStage) Execute(ctx context.Context, data *Payload) error {
	body, err := sonic.Marshal(models.UpstreamRequest{
		Model:    data.ResolvedModel,
		Messages: data.Request.Messages,
		Stream:   data.Request.Stream,
	})
	if err != nil {
		return fmt.Errorf("marshal upstream request: %w", err)
	}
	data.UpstreamBody = body
	return nil
}

// dispatchStage performs the single upstream call
type dispatchStage struct {
	upstream clients.UpstreamClient
	metrics  *metrics.Metrics
}

func newDispatchStage(upstream clients.UpstreamClient, m *metrics.Metrics) *dispatchStage {
	return &dispatchStage{upstream: upstream, metrics: m}
}

func (s *dispatchStage) Name() string {
	return "dispatch"
}

func (s *dispatchStage) Execute(ctx context.Context, data *Payload) error {
	start := time.Now()
	resp, err := s.upstream.Send(ctx, data.UpstreamBody)
	if err != nil {
		s.metrics.ObserveUpstream(0, time.Since(start))
		return err
	}
	s.metrics.ObserveUpstream(resp.StatusCode, time.Since(start))
	data.Response = resp
	return nil
}
