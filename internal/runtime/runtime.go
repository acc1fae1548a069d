package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	ctxengine "github.com/jayceecory-tech/ai-qingjia/internal/context"
	"github.com/jayceecory-tech/ai-qingjia/internal/types"
	"github.com/jayceecory-tech/ai-qingjia/pkg/llm"
)

// State is the position of an exchange in the two-phase flow.
type State int

const (
	StateAwaitingFirstStream State = iota
	StateAccumulatingToolCalls
	StateExecutingTools
	StateAwaitingSecondStream
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAwaitingFirstStream:
		return "awaiting_first_stream"
	case StateAccumulatingToolCalls:
		return "accumulating_tool_calls"
	case StateExecutingTools:
		return "executing_tools"
	case StateAwaitingSecondStream:
		return "awaiting_second_stream"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// errorPrefix is prepended to transport failures reported to the caller.
const errorPrefix = "服务异常: "

// Request is one user turn to answer.
type Request struct {
	ID         types.ExchangeID
	Message    string
	EmployeeID string
	History    []llm.Message
}

// Runtime drives exchanges: stream a completion with the skill catalog,
// run any requested skills, then stream a final answer without tools.
type Runtime struct {
	provider llm.Provider
	engine   *ctxengine.Engine
	skills   Skills
	tracer   trace.Tracer
}

// New creates a Runtime with the given dependencies.
func New(provider llm.Provider, engine *ctxengine.Engine, skills Skills) *Runtime {
	return &Runtime{
		provider: provider,
		engine:   engine,
		skills:   skills,
		tracer:   defaultTracer(),
	}
}

// Exchange answers req, delivering events to sink in order. Unless the
// caller goes away (ErrAbandoned), the last event is always done, preceded
// by a single error event when the provider failed. The returned error is
// the failure that ended the exchange, if any.
func (rt *Runtime) Exchange(ctx context.Context, req Request, sink Sink) (err error) {
	ctx, endSpan := startSpan(rt.tracer, ctx, "Exchange",
		attribute.String("exchange_id", string(req.ID)),
	)
	defer func() { endSpan(err) }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	x := &exchange{
		provider: rt.provider,
		skills:   rt.skills,
		sink:     sink,
		cancel:   cancel,
		log:      slog.With("exchange_id", req.ID),
	}

	messages := rt.engine.Build(req.EmployeeID, req.History, req.Message)
	if n, ok := rt.engine.Fits(messages); !ok {
		x.log.Warn("prompt exceeds context window", "tokens", n)
	}

	return x.run(ctx, messages)
}

// exchange holds the state of one Exchange call.
type exchange struct {
	provider llm.Provider
	skills   Skills
	sink     Sink
	cancel   context.CancelFunc
	log      *slog.Logger

	state State
}

func (x *exchange) run(ctx context.Context, messages []llm.Message) (err error) {
	start := time.Now()
	var (
		acc   = newAccumulator()
		text  strings.Builder
		calls []llm.ToolCall
	)

	defer func() {
		x.state = StateDone
		err = x.finish(err)
		x.log.Debug("exchange finished", "tool_calls", len(calls), "duration", time.Since(start), "error", err)
	}()

	x.state = StateAwaitingFirstStream
	for x.state != StateDone {
		switch x.state {
		case StateAwaitingFirstStream:
			stream, err := x.provider.Stream(ctx, messages, x.skills.Tools())
			if err != nil {
				return x.classify(ctx, err)
			}
			x.state = StateAccumulatingToolCalls
			if err := x.consume(ctx, stream, acc, &text); err != nil {
				return err
			}

		case StateAccumulatingToolCalls:
			if acc.empty() {
				x.state = StateDone
				continue
			}
			calls, err = acc.finalize()
			if err != nil {
				return err
			}
			messages = append(messages, llm.Message{
				Role:      llm.RoleAssistant,
				Content:   text.String(),
				ToolCalls: calls,
			})
			x.state = StateExecutingTools

		case StateExecutingTools:
			for _, call := range calls {
				result, err := x.call(ctx, call)
				if err != nil {
					return err
				}
				messages = append(messages, llm.Message{
					Role:       llm.RoleTool,
					Content:    result,
					ToolCallID: call.ID,
				})
			}
			x.state = StateAwaitingSecondStream

		case StateAwaitingSecondStream:
			// Tools are not offered again, so the model must answer in text.
			stream, err := x.provider.Stream(ctx, messages, nil)
			if err != nil {
				return x.classify(ctx, err)
			}
			if err := x.consume(ctx, stream, nil, &text); err != nil {
				return err
			}
			x.state = StateDone
		}
	}
	return nil
}

// call runs one tool call, bracketed by skill_call and skill_result events.
// The skill itself runs to completion even if the caller leaves meanwhile.
func (x *exchange) call(ctx context.Context, call llm.ToolCall) (string, error) {
	name := call.Function.Name
	if err := x.emit(Event{
		Type:      EventSkillCall,
		Skill:     name,
		Arguments: call.Function.Arguments,
		CallID:    call.ID,
	}); err != nil {
		return "", err
	}

	result := x.skills.Execute(context.WithoutCancel(ctx), name, call.Function.Arguments)
	if err := ctx.Err(); err != nil {
		return "", x.classify(ctx, err)
	}

	if err := x.emit(Event{
		Type:   EventSkillResult,
		Skill:  name,
		Result: result,
		CallID: call.ID,
	}); err != nil {
		return "", err
	}
	return result, nil
}

// consume forwards text deltas as content events until the stream ends.
// Tool-call fragments go to acc; with a nil acc they are dropped.
func (x *exchange) consume(ctx context.Context, stream <-chan llm.Delta, acc *accumulator, text *strings.Builder) error {
	for {
		select {
		case <-ctx.Done():
			return x.classify(ctx, ctx.Err())
		case d, ok := <-stream:
			if !ok {
				if err := ctx.Err(); err != nil {
					return x.classify(ctx, err)
				}
				return nil
			}
			if d.Err != nil {
				return x.classify(ctx, d.Err)
			}
			if d.Content != "" {
				text.WriteString(d.Content)
				if err := x.emit(Event{Type: EventContent, Content: d.Content}); err != nil {
					return err
				}
			}
			for _, tc := range d.ToolCalls {
				if acc == nil {
					x.log.Warn("ignoring tool call fragment after tool execution", "index", tc.Index, "name", tc.Function.Name)
					continue
				}
				acc.add(tc)
			}
		}
	}
}

// emit delivers e. A failed delivery abandons the exchange and cancels the
// upstream request.
func (x *exchange) emit(e Event) error {
	if err := x.sink.Send(e); err != nil {
		x.cancel()
		return fmt.Errorf("%w: send %s: %w", ErrAbandoned, e.Type, err)
	}
	return nil
}

// classify maps a failure to either abandonment (the caller cancelled) or
// a reportable transport error. A context cancelled with a cause of its own,
// such as a server shutdown, is reported with that cause.
func (x *exchange) classify(ctx context.Context, err error) error {
	if errors.Is(err, ErrAbandoned) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
			return cause
		}
		return fmt.Errorf("%w: %w", ErrAbandoned, err)
	}
	return err
}

// finish emits the terminal events for err.
func (x *exchange) finish(err error) error {
	if errors.Is(err, ErrAbandoned) {
		x.log.Info("exchange abandoned", "error", err)
		return err
	}
	if err != nil {
		x.log.Error("exchange failed", "error", err)
		if sendErr := x.emit(Event{Type: EventError, Message: errorPrefix + err.Error()}); sendErr != nil {
			return sendErr
		}
	}
	if sendErr := x.emit(Event{Type: EventDone}); sendErr != nil {
		return sendErr
	}
	return err
}
