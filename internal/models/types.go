package models

import (
	"bytes"
	"encoding/json"

	"github.com/bytedance/sonic"
)

const (
	// ObjectModel is the object tag carried by every ModelDescriptor
	ObjectModel = "model"
	// ObjectList is the object tag of the model listing envelope
	ObjectList = "list"
	// DefaultOwner is the owned_by value of the built-in catalog
	DefaultOwner = "system"
)

// ModelDescriptor describes one public model in OpenAI format
type ModelDescriptor struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the body returned by GET /v1/models
type ModelList struct {
	Object string            `json:"object"`
	Data   []ModelDescriptor `json:"data"`
}

// NewModelList builds the catalog for the given ids, all stamped with the same creation time
func NewModelList(ids []string, ownedBy string, created int64) ModelList {
	list := ModelList{
		Object: ObjectList,
		Data:   make([]ModelDescriptor, 0, len(ids)),
	}
	for _, id := range ids {
		list.Data = append(list.Data, ModelDescriptor{
			ID:      id,
			Object:  ObjectModel,
			Created: created,
			OwnedBy: ownedBy,
		})
	}
	return list
}

// ChatCompletionRequest is the part of an inbound OpenAI chat request the gateway reads.
// Fields stay raw so a key that was sent, even as null, is forwarded as sent and a
// missing key stays missing.
type ChatCompletionRequest struct {
	Model    json.RawMessage `json:"model,omitempty"`
	Messages json.RawMessage `json:"messages,omitempty"`
	Stream   json.RawMessage `json:"stream,omitempty"`
}

// ModelName returns the model id when model is a JSON string
func (r *ChatCompletionRequest) ModelName() (string, bool) {
	return stringValue(r.Model)
}

// Streaming reports whether the caller asked for a streamed response
func (r *ChatCompletionRequest) Streaming() bool {
	return isTrue(r.Stream)
}

// UpstreamRequest is the body posted to the upstream endpoint
type UpstreamRequest struct {
	Model    json.RawMessage `json:"model,omitempty"`
	Messages json.RawMessage `json:"messages,omitempty"`
	Stream   json.RawMessage `json:"stream,omitempty"`
}

// ModelName returns the model id when model is a JSON string
func (r *UpstreamRequest) ModelName() (string, bool) {
	return stringValue(r.Model)
}

// Streaming reports whether the upstream is asked to stream
func (r *UpstreamRequest) Streaming() bool {
	return isTrue(r.Stream)
}

// StringValue encodes s as a raw JSON string
func StringValue(s string) json.RawMessage {
	raw, _ := sonic.Marshal(s)
	return raw
}

func stringValue(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return "", false
	}
	var s string
	if err := sonic.Unmarshal(trimmed, &s); err != nil {
		return "", false
	}
	return s, true
}

func isTrue(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "true"
}

// ErrorResponse is the JSON error envelope produced by the gateway itself
type ErrorResponse struct {
	Error string `json:"error"`
}
