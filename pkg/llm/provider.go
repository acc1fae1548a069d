package llm

import (
	"context"
	"time"
)

// Provider defines the interface for interacting with LLM backends.
// Implementations handle protocol-specific details such as request formatting,
// authentication, and stream decoding.
type Provider interface {
	// Stream sends a chat completion request and returns a channel of incremental
	// deltas. The channel is closed when the upstream stream ends; a delta with a
	// non-nil Err is always the last one sent. Cancelling ctx releases the
	// upstream connection.
	Stream(ctx context.Context, messages []Message, tools []Tool) (<-chan Delta, error)
}

// Config holds common configuration for LLM providers.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}
