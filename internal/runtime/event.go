package runtime

import (
	"bytes"
	"encoding/json"
)

// EventType identifies an event delivered to the caller during an exchange.
type EventType string

const (
	EventContent     EventType = "content"
	EventSkillCall   EventType = "skill_call"
	EventSkillResult EventType = "skill_result"
	EventError       EventType = "error"
	EventDone        EventType = "done"
)

// Event is one item of the caller-facing stream. Which fields are set
// depends on Type.
type Event struct {
	Type      EventType `json:"type"`
	Content   string    `json:"content,omitempty"`
	Skill     string    `json:"skill,omitempty"`
	Arguments string    `json:"arguments,omitempty"`
	CallID    string    `json:"call_id,omitempty"`
	Result    string    `json:"result,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// MarshalJSON writes only the fields that belong to the event type, keeping
// empty strings where the type defines them.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventContent:
		return marshal(struct {
			Type    EventType `json:"type"`
			Content string    `json:"content"`
		}{e.Type, e.Content})
	case EventSkillCall:
		return marshal(struct {
			Type      EventType `json:"type"`
			Skill     string    `json:"skill"`
			Arguments string    `json:"arguments"`
			CallID    string    `json:"call_id,omitempty"`
		}{e.Type, e.Skill, e.Arguments, e.CallID})
	case EventSkillResult:
		return marshal(struct {
			Type   EventType `json:"type"`
			Skill  string    `json:"skill"`
			Result string    `json:"result"`
			CallID string    `json:"call_id,omitempty"`
		}{e.Type, e.Skill, e.Result, e.CallID})
	case EventError:
		return marshal(struct {
			Type    EventType `json:"type"`
			Message string    `json:"message"`
		}{e.Type, e.Message})
	default:
		type plain Event
		return marshal(plain(e))
	}
}

// marshal encodes v without escaping HTML characters, so model text such as
// "<b>" reaches the caller unchanged.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Sink receives the events of one exchange in order. A Send error means the
// caller is gone.
type Sink interface {
	Send(Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

func (f SinkFunc) Send(e Event) error { return f(e) }
