package runtime

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	ctxengine "github.com/jayceecory-tech/ai-qingjia/internal/context"
	"github.com/jayceecory-tech/ai-qingjia/internal/types"
	"github.com/jayceecory-tech/ai-qingjia/pkg/llm"
)

// scriptedProvider replays one scripted stream per call, the way the OpenAI
// client feeds its channel from a reader goroutine.
type scriptedProvider struct {
	mu       sync.Mutex
	streams  [][]llm.Delta
	errs     []error
	hang     bool
	tools    [][]llm.Tool
	messages [][]llm.Message
}

func (p *scriptedProvider) Stream(ctx context.Context, messages []llm.Message, tools []llm.Tool) (<-chan llm.Delta, error) {
	p.mu.Lock()
	idx := len(p.tools)
	p.tools = append(p.tools, tools)
	p.messages = append(p.messages, append([]llm.Message(nil), messages...))
	p.mu.Unlock()

	if idx < len(p.errs) && p.errs[idx] != nil {
		return nil, p.errs[idx]
	}
	var deltas []llm.Delta
	if idx < len(p.streams) {
		deltas = p.streams[idx]
	}

	ch := make(chan llm.Delta)
	go func() {
		defer close(ch)
		for _, d := range deltas {
			select {
			case ch <- d:
			case <-ctx.Done():
				return
			}
		}
		if p.hang {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tools)
}

// recorder collects events; failAt makes Send fail on that event number.
type recorder struct {
	mu     sync.Mutex
	events []Event
	failAt int
}

func (r *recorder) Send(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt > 0 && len(r.events)+1 == r.failAt {
		return errors.New("client closed connection")
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func text(s string) llm.Delta { return llm.Delta{Content: s} }

func toolFrag(index int, id, name, args string) llm.Delta {
	return llm.Delta{ToolCalls: []llm.ToolCallDelta{frag(index, id, name, args)}}
}

func echoSkill(name string, delay time.Duration) Skill {
	return Skill{
		Name: name,
		Parameters: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"n": {Type: "number"}},
		},
		Run: func(ctx context.Context, args Args) (any, error) {
			time.Sleep(delay)
			return map[string]any{"skill": name, "n": args["n"]}, nil
		},
	}
}

func newTestRuntime(t *testing.T, provider llm.Provider, skills ...Skill) *Runtime {
	t.Helper()
	reg := NewRegistry()
	for _, s := range skills {
		require.NoError(t, reg.Register(s))
	}
	return New(provider, ctxengine.New("sys", 0), NewExecutor(reg))
}

func request(msg string) Request {
	return Request{ID: types.NewExchangeID(), Message: msg}
}

func TestExchangeDirectAnswer(t *testing.T) {
	provider := &scriptedProvider{streams: [][]llm.Delta{{
		text("您好"), {}, text("，"), text("请问有什么可以帮您？"),
	}}}
	rt := newTestRuntime(t, provider, echoSkill("a", 0))
	rec := &recorder{}

	require.NoError(t, rt.Exchange(context.Background(), request("你好"), rec))

	events := rec.snapshot()
	require.Len(t, events, 4)
	assert.Equal(t, Event{Type: EventContent, Content: "您好"}, events[0])
	assert.Equal(t, Event{Type: EventContent, Content: "，"}, events[1])
	assert.Equal(t, Event{Type: EventContent, Content: "请问有什么可以帮您？"}, events[2])
	assert.Equal(t, Event{Type: EventDone}, events[3])

	assert.Equal(t, 1, provider.calls(), "no second completion without tool calls")
	require.Len(t, provider.tools[0], 1)
	assert.Equal(t, "a", provider.tools[0][0].Function.Name)
}

func TestExchangeBuildsConversation(t *testing.T) {
	provider := &scriptedProvider{streams: [][]llm.Delta{{text("ok")}}}
	rt := newTestRuntime(t, provider)

	req := request("查一下我的年假")
	req.EmployeeID = "EMP001"
	req.History = []llm.Message{{Role: llm.RoleUser, Content: "hi"}, {Role: llm.RoleAssistant, Content: "hello"}}
	require.NoError(t, rt.Exchange(context.Background(), req, &recorder{}))

	sent := provider.messages[0]
	require.Len(t, sent, 5)
	assert.Equal(t, "sys", sent[0].Content)
	assert.Equal(t, "当前用户的员工编号是: EMP001", sent[1].Content)
	assert.Equal(t, "hi", sent[2].Content)
	assert.Equal(t, "hello", sent[3].Content)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "查一下我的年假"}, sent[4])
	assert.Len(t, req.History, 2)
}

func TestExchangeToolRoundTrip(t *testing.T) {
	provider := &scriptedProvider{streams: [][]llm.Delta{
		{
			text("稍等，"),
			toolFrag(0, "call_", "ec", `{"n"`),
			toolFrag(0, "1", "ho", `:"4"}`),
		},
		{text("查询完成。")},
	}}
	rt := newTestRuntime(t, provider, echoSkill("echo", 0))
	rec := &recorder{}

	require.NoError(t, rt.Exchange(context.Background(), request("go"), rec))

	events := rec.snapshot()
	require.Equal(t, []EventType{EventContent, EventSkillCall, EventSkillResult, EventContent, EventDone}, rec.types())
	assert.Equal(t, Event{Type: EventSkillCall, Skill: "echo", Arguments: `{"n":"4"}`, CallID: "call_1"}, events[1])
	assert.Equal(t, Event{Type: EventSkillResult, Skill: "echo", Result: `{"n":4,"skill":"echo"}`, CallID: "call_1"}, events[2])
	assert.Equal(t, "查询完成。", events[3].Content)

	require.Equal(t, 2, provider.calls())
	assert.Nil(t, provider.tools[1], "tools must not be offered in the second completion")

	second := provider.messages[1]
	require.Len(t, second, 4)
	assistant := second[2]
	assert.Equal(t, llm.RoleAssistant, assistant.Role)
	assert.Equal(t, "稍等，", assistant.Content)
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "call_1", assistant.ToolCalls[0].ID)
	assert.Equal(t, "echo", assistant.ToolCalls[0].Function.Name)

	tool := second[3]
	assert.Equal(t, llm.RoleTool, tool.Role)
	assert.Equal(t, "call_1", tool.ToolCallID)
	assert.Equal(t, `{"n":4,"skill":"echo"}`, tool.Content)
}

func TestExchangeToolOrderIgnoresLatency(t *testing.T) {
	provider := &scriptedProvider{streams: [][]llm.Delta{
		{
			toolFrag(1, "call_fast", "fast", `{}`),
			toolFrag(0, "call_slow", "slow", `{}`),
		},
		{text("done")},
	}}
	rt := newTestRuntime(t, provider, echoSkill("slow", 40*time.Millisecond), echoSkill("fast", 0))
	rec := &recorder{}

	require.NoError(t, rt.Exchange(context.Background(), request("go"), rec))

	var got []string
	for _, e := range rec.snapshot() {
		if e.Type == EventSkillCall || e.Type == EventSkillResult {
			got = append(got, string(e.Type)+":"+e.Skill)
		}
	}
	assert.Equal(t, []string{
		"skill_call:slow", "skill_result:slow",
		"skill_call:fast", "skill_result:fast",
	}, got)

	second := provider.messages[1]
	assert.Equal(t, "call_slow", second[2].ToolCalls[0].ID)
	assert.Equal(t, "call_slow", second[3].ToolCallID)
	assert.Equal(t, "call_fast", second[4].ToolCallID)
}

func TestExchangeFailedSkillDoesNotStopOthers(t *testing.T) {
	provider := &scriptedProvider{streams: [][]llm.Delta{
		{
			toolFrag(0, "c0", "missing_skill", `{}`),
			toolFrag(1, "c1", "echo", `{"n":"x"}`),
			toolFrag(2, "c2", "echo", `{"n":2}`),
		},
		{text("ok")},
	}}
	rt := newTestRuntime(t, provider, echoSkill("echo", 0))
	rec := &recorder{}

	require.NoError(t, rt.Exchange(context.Background(), request("go"), rec))

	var results []string
	for _, e := range rec.snapshot() {
		if e.Type == EventSkillResult {
			results = append(results, e.Result)
		}
	}
	require.Len(t, results, 3)
	assert.Equal(t, `{"error":"unknown skill: missing_skill"}`, results[0])
	assert.Contains(t, results[1], "validation failed")
	assert.Equal(t, `{"n":2,"skill":"echo"}`, results[2])
	assert.Equal(t, EventDone, rec.types()[len(rec.types())-1])
}

func TestExchangeFirstStreamTransportError(t *testing.T) {
	provider := &scriptedProvider{errs: []error{errors.New("API error (status 502): bad gateway")}}
	rt := newTestRuntime(t, provider, echoSkill("a", 0))
	rec := &recorder{}

	err := rt.Exchange(context.Background(), request("hi"), rec)
	require.Error(t, err)

	events := rec.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, Event{Type: EventError, Message: "服务异常: API error (status 502): bad gateway"}, events[0])
	assert.Equal(t, Event{Type: EventDone}, events[1])
}

func TestExchangeMidStreamError(t *testing.T) {
	provider := &scriptedProvider{streams: [][]llm.Delta{{
		text("部分"),
		{Err: errors.New("decoding stream chunk: unexpected EOF")},
		text("never"),
	}}}
	rt := newTestRuntime(t, provider)
	rec := &recorder{}

	require.Error(t, rt.Exchange(context.Background(), request("hi"), rec))
	assert.Equal(t, []EventType{EventContent, EventError, EventDone}, rec.types())
	assert.True(t, strings.HasPrefix(rec.snapshot()[1].Message, "服务异常: decoding stream chunk"))
}

func TestExchangeSecondStreamError(t *testing.T) {
	provider := &scriptedProvider{
		streams: [][]llm.Delta{{toolFrag(0, "c0", "echo", `{}`)}},
		errs:    []error{nil, errors.New("connection reset")},
	}
	rt := newTestRuntime(t, provider, echoSkill("echo", 0))
	rec := &recorder{}

	require.Error(t, rt.Exchange(context.Background(), request("hi"), rec))
	assert.Equal(t, []EventType{EventSkillCall, EventSkillResult, EventError, EventDone}, rec.types())
}

func TestExchangeRejectsToolCallWithoutID(t *testing.T) {
	provider := &scriptedProvider{streams: [][]llm.Delta{{toolFrag(0, "", "echo", `{}`)}}}
	rt := newTestRuntime(t, provider, echoSkill("echo", 0))
	rec := &recorder{}

	err := rt.Exchange(context.Background(), request("hi"), rec)
	require.ErrorIs(t, err, ErrMissingToolCallID)
	assert.Equal(t, []EventType{EventError, EventDone}, rec.types())
	assert.Equal(t, 1, provider.calls())
}

func TestExchangeIgnoresToolFragmentsInSecondStream(t *testing.T) {
	provider := &scriptedProvider{streams: [][]llm.Delta{
		{toolFrag(0, "c0", "echo", `{}`)},
		{text("答"), toolFrag(0, "c9", "echo", `{}`), text("案")},
	}}
	rt := newTestRuntime(t, provider, echoSkill("echo", 0))
	rec := &recorder{}

	require.NoError(t, rt.Exchange(context.Background(), request("hi"), rec))
	assert.Equal(t, []EventType{EventSkillCall, EventSkillResult, EventContent, EventContent, EventDone}, rec.types())
	assert.Equal(t, 2, provider.calls())
}

func TestExchangeSinkFailureAbandons(t *testing.T) {
	defer goleak.VerifyNone(t)

	provider := &scriptedProvider{streams: [][]llm.Delta{{text("a"), text("b"), text("c")}}, hang: true}
	rt := newTestRuntime(t, provider)
	rec := &recorder{failAt: 2}

	err := rt.Exchange(context.Background(), request("hi"), rec)
	require.ErrorIs(t, err, ErrAbandoned)
	assert.Equal(t, []EventType{EventContent}, rec.types(), "nothing is sent after the caller is gone")
}

func TestExchangeCallerCancelMidStream(t *testing.T) {
	defer goleak.VerifyNone(t)

	provider := &scriptedProvider{streams: [][]llm.Delta{{text("a")}}, hang: true}
	rt := newTestRuntime(t, provider)
	ctx, cancel := context.WithCancel(context.Background())

	first := make(chan struct{})
	var once sync.Once
	rec := &recorder{}
	sink := SinkFunc(func(e Event) error {
		once.Do(func() { close(first) })
		return rec.Send(e)
	})

	errc := make(chan error, 1)
	go func() { errc <- rt.Exchange(ctx, request("hi"), sink) }()

	<-first
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrAbandoned)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("exchange did not stop after cancellation")
	}
	assert.Equal(t, []EventType{EventContent}, rec.types())
}

func TestExchangeCancelDuringSkill(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var skillCtxErr error
	blocking := Skill{Name: "slow", Run: func(ctx context.Context, _ Args) (any, error) {
		close(started)
		<-release
		skillCtxErr = ctx.Err()
		return "{}", nil
	}}

	provider := &scriptedProvider{streams: [][]llm.Delta{
		{toolFrag(0, "c0", "slow", `{}`)},
		{text("never")},
	}}
	rt := newTestRuntime(t, provider, blocking)
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}

	errc := make(chan error, 1)
	go func() { errc <- rt.Exchange(ctx, request("hi"), rec) }()

	<-started
	cancel()
	close(release)

	err := <-errc
	require.ErrorIs(t, err, ErrAbandoned)
	assert.NoError(t, skillCtxErr, "the running skill completes on a detached context")
	assert.Equal(t, []EventType{EventSkillCall}, rec.types())
	assert.Equal(t, 1, provider.calls(), "no second completion after the caller left")
}

func TestExchangeCancelWithCauseIsReported(t *testing.T) {
	defer goleak.VerifyNone(t)

	provider := &scriptedProvider{streams: [][]llm.Delta{{text("a")}}, hang: true}
	rt := newTestRuntime(t, provider)
	ctx, cancel := context.WithCancelCause(context.Background())
	errShutdown := errors.New("server shutting down")

	first := make(chan struct{})
	var once sync.Once
	rec := &recorder{}
	sink := SinkFunc(func(e Event) error {
		once.Do(func() { close(first) })
		return rec.Send(e)
	})

	errc := make(chan error, 1)
	go func() { errc <- rt.Exchange(ctx, request("hi"), sink) }()

	<-first
	cancel(errShutdown)

	var err error
	select {
	case err = <-errc:
	case <-time.After(2 * time.Second):
		t.Fatal("exchange did not stop after cancellation")
	}
	require.ErrorIs(t, err, errShutdown)
	assert.NotErrorIs(t, err, ErrAbandoned)

	events := rec.snapshot()
	require.Equal(t, []EventType{EventContent, EventError, EventDone}, rec.types())
	assert.Equal(t, "服务异常: server shutting down", events[1].Message)
}

func TestExchangeDeadlineIsReported(t *testing.T) {
	defer goleak.VerifyNone(t)

	provider := &scriptedProvider{streams: [][]llm.Delta{{text("部分")}}, hang: true}
	rt := newTestRuntime(t, provider)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rec := &recorder{}

	err := rt.Exchange(ctx, request("hi"), rec)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrAbandoned)

	events := rec.snapshot()
	require.Equal(t, []EventType{EventContent, EventError, EventDone}, rec.types())
	assert.Equal(t, "服务异常: context deadline exceeded", events[1].Message)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_first_stream", StateAwaitingFirstStream.String())
	assert.Equal(t, "executing_tools", StateExecutingTools.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "state(42)", State(42).String())
}
