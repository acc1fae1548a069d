// internal/context/engine.go
package context

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jayceecory-tech/ai-qingjia/pkg/llm"
)

// perMessageOverhead approximates the role/separator tokens the chat format
// adds around every message.
const perMessageOverhead = 4

// Build assembles the message list for one exchange: the system prompt, an
// optional session-context system turn, the history verbatim, then the new
// user turn. history is copied, never modified.
func Build(systemPrompt, sessionContext string, history []llm.Message, userText string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+3)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	if sessionContext != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: sessionContext})
	}
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userText})
	return messages
}

// Engine assembles prompts and estimates their size for the LLM.
type Engine struct {
	systemPrompt string
	tokenizer    *tiktoken.Tiktoken
	maxTokens    int
}

// New creates a context engine using systemPrompt for every exchange.
// maxTokens is the model's context window; zero disables the budget check.
func New(systemPrompt string, maxTokens int) *Engine {
	return &Engine{
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
	}
}

// UseTokenizer loads the tokenizer for model (e.g. "gpt-4o"). Until it is
// called, token counts are estimated from rune counts.
func (e *Engine) UseTokenizer(model string) error {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return fmt.Errorf("get tokenizer: %w", err)
		}
	}
	e.tokenizer = enc
	return nil
}

// Build assembles the message list with the engine's system prompt.
func (e *Engine) Build(employeeID string, history []llm.Message, userText string) []llm.Message {
	return Build(e.systemPrompt, SessionContext(employeeID), history, userText)
}

// countTokens returns the token count for a string.
func (e *Engine) countTokens(text string) int {
	if e.tokenizer == nil {
		// CJK text averages close to one token per rune; ASCII closer to four
		// runes per token. Err on the high side.
		return utf8.RuneCountInString(text)
	}
	return len(e.tokenizer.Encode(text, nil, nil))
}

// CountTokens estimates the prompt size of messages.
func (e *Engine) CountTokens(messages []llm.Message) int {
	total := 0
	for _, msg := range messages {
		total += perMessageOverhead + e.countTokens(msg.Content)
		for _, tc := range msg.ToolCalls {
			total += e.countTokens(tc.Function.Name)
			total += e.countTokens(tc.Function.Arguments)
		}
	}
	return total
}

// Fits reports whether messages fit in the context window along with their
// estimated token count.
func (e *Engine) Fits(messages []llm.Message) (int, bool) {
	n := e.CountTokens(messages)
	if e.maxTokens <= 0 {
		return n, true
	}
	return n, n <= e.maxTokens
}
