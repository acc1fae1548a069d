package runtime

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jayceecory-tech/ai-qingjia/pkg/llm"
)

// pendingToolCall is a tool call still being streamed. Fragments only ever
// append to it.
type pendingToolCall struct {
	id        strings.Builder
	name      strings.Builder
	arguments strings.Builder
}

// accumulator reassembles streamed tool-call fragments keyed by index.
type accumulator struct {
	calls map[int]*pendingToolCall
}

func newAccumulator() *accumulator {
	return &accumulator{calls: make(map[int]*pendingToolCall)}
}

// add folds one fragment into the call at its index. The first fragment for
// an index creates the slot even when it carries nothing.
func (a *accumulator) add(d llm.ToolCallDelta) {
	pc, ok := a.calls[d.Index]
	if !ok {
		pc = &pendingToolCall{}
		a.calls[d.Index] = pc
	}
	pc.id.WriteString(d.ID)
	pc.name.WriteString(d.Function.Name)
	pc.arguments.WriteString(d.Function.Arguments)
}

func (a *accumulator) empty() bool {
	return len(a.calls) == 0
}

// finalize returns the completed calls in index order. A call that never
// received an id is rejected.
func (a *accumulator) finalize() ([]llm.ToolCall, error) {
	indexes := make([]int, 0, len(a.calls))
	for idx := range a.calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	out := make([]llm.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		pc := a.calls[idx]
		call := llm.ToolCall{
			ID:   pc.id.String(),
			Type: "function",
			Function: llm.FunctionCall{
				Name:      pc.name.String(),
				Arguments: pc.arguments.String(),
			},
		}
		if call.ID == "" {
			return nil, fmt.Errorf("tool call %d (%s): %w", idx, call.Function.Name, ErrMissingToolCallID)
		}
		out = append(out, call)
	}
	return out, nil
}
