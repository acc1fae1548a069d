package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jayceecory-tech/ai-qingjia/pkg/llm"
)

const (
	defaultTimeout = 60 * time.Second
	dialTimeout    = 10 * time.Second
	maxErrorBody   = 4096
	maxLineBytes   = 1 << 20
)

// Client implements the llm.Provider interface for OpenAI-compatible APIs.
type Client struct {
	config     *llm.Config
	httpClient *http.Client
}

// New creates a new OpenAI-compatible client with the given configuration.
// The timeout applies to connecting and to waiting for response headers, not
// to the whole stream, so long answers are not cut off.
func New(config *llm.Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: dialTimeout}).DialContext
	transport.ResponseHeaderTimeout = timeout
	transport.MaxIdleConns = 100
	transport.MaxIdleConnsPerHost = 20
	return &Client{
		config:     config,
		httpClient: &http.Client{Transport: transport},
	}
}

// chatRequest is the OpenAI chat completions request body.
type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []requestMessage `json:"messages"`
	Tools       []llm.Tool       `json:"tools,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature *float32         `json:"temperature,omitempty"`
	Stream      bool             `json:"stream"`
}

// requestMessage is the OpenAI message format for requests. Content is null
// for assistant turns that only carry tool calls.
type requestMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// streamChunk is one `data:` record of a streamed chat completion.
type streamChunk struct {
	Choices []streamChoice `json:"choices"`
	Error   *apiError      `json:"error,omitempty"`
}

type streamChoice struct {
	Delta streamDelta `json:"delta"`
}

type streamDelta struct {
	Content   string              `json:"content"`
	ToolCalls []llm.ToolCallDelta `json:"tool_calls"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func toRequestMessages(messages []llm.Message) []requestMessage {
	out := make([]requestMessage, len(messages))
	for i, msg := range messages {
		rm := requestMessage{
			Role:       msg.Role,
			ToolCalls:  msg.ToolCalls,
			ToolCallID: msg.ToolCallID,
		}
		if msg.Content != "" || len(msg.ToolCalls) == 0 {
			content := msg.Content
			rm.Content = &content
		}
		out[i] = rm
	}
	return out
}

// Stream sends a streamed chat completion request and returns a channel of
// incremental deltas decoded from the server-sent event stream.
func (c *Client) Stream(ctx context.Context, messages []llm.Message, tools []llm.Tool) (<-chan llm.Delta, error) {
	reqBody := chatRequest{
		Model:    c.config.Model,
		Messages: toRequestMessages(messages),
		Stream:   true,
	}

	if len(tools) > 0 {
		reqBody.Tools = tools
	}

	if c.config.MaxTokens > 0 {
		reqBody.MaxTokens = c.config.MaxTokens
	}

	if c.config.Temperature != 0 {
		temp := c.config.Temperature
		reqBody.Temperature = &temp
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	ch := make(chan llm.Delta)
	go c.readStream(ctx, resp.Body, ch)
	return ch, nil
}

// readStream decodes SSE records from body until [DONE], EOF, an error, or
// cancellation. It owns body and ch.
func (c *Client) readStream(ctx context.Context, body io.ReadCloser, ch chan<- llm.Delta) {
	defer close(ch)
	defer body.Close()

	send := func(d llm.Delta) bool {
		select {
		case ch <- d:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			send(llm.Delta{Err: fmt.Errorf("decoding stream chunk: %w", err)})
			return
		}
		if chunk.Error != nil {
			send(llm.Delta{Err: fmt.Errorf("API stream error: %s", chunk.Error.Message)})
			return
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := llm.Delta{
			Content:   chunk.Choices[0].Delta.Content,
			ToolCalls: chunk.Choices[0].Delta.ToolCalls,
		}
		if delta.Empty() {
			continue
		}
		if !send(delta) {
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		send(llm.Delta{Err: fmt.Errorf("reading stream: %w", err)})
	}
}
