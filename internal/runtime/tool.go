package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/jayceecory-tech/ai-qingjia/pkg/llm"
)

// Args holds the validated arguments of one skill invocation.
type Args map[string]any

// String returns the string value of key, or "" when absent or not a string.
func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Float returns the numeric value of key.
func (a Args) Float(key string) (float64, bool) {
	switch v := a[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// Decode converts the arguments into v, typically a request struct.
func (a Args) Decode(v any) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Func is the executor bound to a skill. The returned value is encoded as
// JSON and handed back to the model.
type Func func(ctx context.Context, args Args) (any, error)

// Skill is a named operation the model may invoke.
type Skill struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
	Run         Func

	resolved *jsonschema.Resolved
	raw      json.RawMessage
}

// Required returns the required argument names in schema order.
func (s *Skill) Required() []string {
	if s.Parameters == nil {
		return nil
	}
	return s.Parameters.Required
}

// propertyType returns the declared JSON type of an argument, or "".
func (s *Skill) propertyType(name string) string {
	if s.Parameters == nil {
		return ""
	}
	p, ok := s.Parameters.Properties[name]
	if !ok || p == nil {
		return ""
	}
	return p.Type
}

// Registry holds registered skills and provides lookup. It is built once at
// startup and only read afterwards.
type Registry struct {
	order  []string
	skills map[string]*Skill
}

// NewRegistry creates an empty skill registry.
func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]*Skill)}
}

// Register adds a skill. The parameter schema is resolved here so that
// invocations only validate.
func (r *Registry) Register(s Skill) error {
	if s.Name == "" {
		return fmt.Errorf("register skill: empty name")
	}
	if s.Run == nil {
		return fmt.Errorf("register skill %s: no executor", s.Name)
	}
	if _, ok := r.skills[s.Name]; ok {
		return fmt.Errorf("register skill %s: %w", s.Name, ErrSkillExists)
	}
	if s.Parameters == nil {
		s.Parameters = &jsonschema.Schema{Type: "object"}
	}

	resolved, err := s.Parameters.Resolve(nil)
	if err != nil {
		return fmt.Errorf("register skill %s: resolve schema: %w", s.Name, err)
	}
	raw, err := json.Marshal(s.Parameters)
	if err != nil {
		return fmt.Errorf("register skill %s: encode schema: %w", s.Name, err)
	}
	s.resolved = resolved
	s.raw = raw

	r.skills[s.Name] = &s
	r.order = append(r.order, s.Name)
	return nil
}

// Resolve returns a skill by name.
func (r *Registry) Resolve(name string) (*Skill, error) {
	s, ok := r.skills[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSkillNotFound, name)
	}
	return s, nil
}

// Names returns skill names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of registered skills.
func (r *Registry) Len() int {
	return len(r.order)
}

// Catalog converts registered skills to the LLM tool format, in
// registration order.
func (r *Registry) Catalog() []llm.Tool {
	out := make([]llm.Tool, 0, len(r.order))
	for _, name := range r.order {
		s := r.skills[name]
		out = append(out, llm.Tool{
			Type: "function",
			Function: llm.Function{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.raw,
			},
		})
	}
	return out
}

// Merge combines registries into a new one. A name present in more than one
// input is an error.
func Merge(regs ...*Registry) (*Registry, error) {
	out := NewRegistry()
	for _, reg := range regs {
		if reg == nil {
			continue
		}
		for _, name := range reg.order {
			if _, ok := out.skills[name]; ok {
				return nil, fmt.Errorf("merge skill %s: %w", name, ErrSkillExists)
			}
			out.skills[name] = reg.skills[name]
			out.order = append(out.order, name)
		}
	}
	return out, nil
}
