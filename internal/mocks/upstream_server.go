package mocks

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"github.com/sleepstars/deepbridge/internal/models"
)

// UpstreamPath is the route the mock upstream answers on
const UpstreamPath = "/api/ai"

// NewUpstreamServer returns a gin engine that imitates the chat upstream.
// It echoes the last user message, as one JSON completion or as SSE chunks
// separated by delay when the request asks for a stream.
func NewUpstreamServer(delay time.Duration) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST(UpstreamPath, func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			c.String(http.StatusBadRequest, "read body: %v", err)
			return
		}
		var req models.UpstreamRequest
		if err := sonic.Unmarshal(raw, &req); err != nil {
			c.String(http.StatusBadRequest, "invalid JSON: %v", err)
			return
		}

		model, _ := req.ModelName()
		content := EchoReply(req)
		id := "chatcmpl-" + uuid.NewString()
		if req.Streaming() {
			streamReply(c, id, model, content, delay)
			return
		}

		c.JSON(http.StatusOK, openai.ChatCompletionResponse{
			ID:      id,
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Model:   model,
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: content,
				},
				FinishReason: openai.FinishReasonStop,
			}},
		})
	})
	return r
}

// EchoReply is the answer the mock upstream gives to req
func EchoReply(req models.UpstreamRequest) string {
	model, _ := req.ModelName()
	var messages []openai.ChatCompletionMessage
	_ = sonic.Unmarshal(req.Messages, &messages)
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == openai.ChatMessageRoleUser {
			return fmt.Sprintf("[%s] you said: %s", model, messages[i].Content)
		}
	}
	return fmt.Sprintf("[%s] hello", model)
}

func streamReply(c *gin.Context, id, model, content string, delay time.Duration) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	send := func(chunk openai.ChatCompletionStreamResponse) bool {
		data, err := sonic.Marshal(chunk)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return false
		}
		c.Writer.Flush()
		return true
	}

	created := time.Now().Unix()
	for i, word := range strings.SplitAfter(content, " ") {
		delta := openai.ChatCompletionStreamChoiceDelta{Content: word}
		if i == 0 {
			delta.Role = openai.ChatMessageRoleAssistant
		}
		if !send(openai.ChatCompletionStreamResponse{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   model,
			Choices: []openai.ChatCompletionStreamChoice{{Delta: delta}},
		}) {
			return
		}

		select {
		case <-c.Request.Context().Done():
			return
		case <-time.After(delay):
		}
	}

	send(openai.ChatCompletionStreamResponse{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []openai.ChatCompletionStreamChoice{{FinishReason: openai.FinishReasonStop}},
	})
	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}
