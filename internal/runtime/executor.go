package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jayceecory-tech/ai-qingjia/pkg/llm"
)

// Skills is what the orchestrator needs from the skill layer: a catalog to
// offer the model and a way to run one call. Execute always returns a
// payload string, never an error.
type Skills interface {
	Tools() []llm.Tool
	Execute(ctx context.Context, name, arguments string) string
}

// Executor validates tool-call arguments against a skill's schema and runs
// it. Every failure becomes an {"error": ...} payload for the model.
type Executor struct {
	registry *Registry
	tracer   trace.Tracer
}

var _ Skills = (*Executor)(nil)

// NewExecutor creates an executor over registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry, tracer: defaultTracer()}
}

// Registry returns the underlying registry.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Tools returns the skill catalog in LLM tool format.
func (e *Executor) Tools() []llm.Tool {
	return e.registry.Catalog()
}

// Execute runs the named skill with the raw JSON arguments produced by the
// model and returns the JSON payload to hand back.
func (e *Executor) Execute(ctx context.Context, name, arguments string) string {
	ctx, endSpan := startSpan(e.tracer, ctx, "ExecuteSkill",
		attribute.String("skill", name),
	)
	start := time.Now()

	result, err := e.execute(ctx, name, arguments)
	endSpan(err)
	if err != nil {
		slog.Warn("skill failed", "skill", name, "error", err, "duration", time.Since(start))
		return errorPayload(err.Error())
	}
	slog.Debug("skill executed", "skill", name, "duration", time.Since(start))
	return result
}

func (e *Executor) execute(ctx context.Context, name, arguments string) (string, error) {
	args, err := parseArgs(arguments)
	if err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	skill, err := e.registry.Resolve(name)
	if err != nil {
		return "", fmt.Errorf("unknown skill: %s", name)
	}

	if missing := missingFields(skill, args); len(missing) > 0 {
		return "", fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}

	if err := coerce(skill, args); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if err := skill.resolved.Validate(map[string]any(args)); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}

	value, err := invoke(ctx, skill, args)
	if err != nil {
		return "", fmt.Errorf("%s failed: %w", name, err)
	}
	out, err := encodeResult(value)
	if err != nil {
		return "", fmt.Errorf("%s failed: encode result: %w", name, err)
	}
	return out, nil
}

func parseArgs(arguments string) (Args, error) {
	if strings.TrimSpace(arguments) == "" {
		return Args{}, nil
	}
	var args Args
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = Args{}
	}
	return args, nil
}

// missingFields returns required fields that are absent, null, blank
// strings or empty arrays, in schema order.
func missingFields(skill *Skill, args Args) []string {
	var missing []string
	for _, field := range skill.Required() {
		if v, ok := args[field]; !ok || v == nil || isBlank(v) {
			missing = append(missing, field)
		}
	}
	return missing
}

func isBlank(v any) bool {
	switch v := v.(type) {
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	}
	return false
}

// coerce converts string values to the number or boolean a property
// declares. Models often quote numbers.
func coerce(skill *Skill, args Args) error {
	for key, v := range args {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch skill.propertyType(key) {
		case "number", "integer":
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return fmt.Errorf("%s: %q is not a number", key, s)
			}
			args[key] = f
		case "boolean":
			b, err := strconv.ParseBool(strings.TrimSpace(s))
			if err != nil {
				return fmt.Errorf("%s: %q is not a boolean", key, s)
			}
			args[key] = b
		}
	}
	return nil
}

func invoke(ctx context.Context, skill *Skill, args Args) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return skill.Run(ctx, args)
}

func encodeResult(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case json.RawMessage:
		return string(v), nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func errorPayload(msg string) string {
	out, err := encodeResult(map[string]string{"error": msg})
	if err != nil {
		return `{"error":"internal error"}`
	}
	return out
}

// IsErrorPayload reports whether payload is an executor error envelope.
func IsErrorPayload(payload string) bool {
	var v struct {
		Error *string `json:"error"`
	}
	return json.Unmarshal([]byte(payload), &v) == nil && v.Error != nil
}
