package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	ctxengine "github.com/jayceecory-tech/ai-qingjia/internal/context"
	"github.com/jayceecory-tech/ai-qingjia/internal/gateway"
	"github.com/jayceecory-tech/ai-qingjia/internal/oa"
	"github.com/jayceecory-tech/ai-qingjia/internal/runtime"
	"github.com/jayceecory-tech/ai-qingjia/pkg/llm"
)

// heldProvider streams one greeting, then holds the stream open until
// release is closed or ctx ends.
type heldProvider struct {
	release chan struct{}
}

func (p *heldProvider) Stream(ctx context.Context, _ []llm.Message, _ []llm.Tool) (<-chan llm.Delta, error) {
	ch := make(chan llm.Delta, 2)
	ch <- llm.Delta{Content: "你好"}
	go func() {
		defer close(ch)
		select {
		case <-p.release:
			ch <- llm.Delta{Content: "，再见"}
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

// startHeldServer serves a real gateway over heldProvider and opens one chat
// stream, returning once its first event is on the wire.
func startHeldServer(t *testing.T, grace time.Duration) (*heldProvider, *http.Response, context.CancelFunc, <-chan error) {
	t.Helper()
	backend, err := oa.New("", "")
	if err != nil {
		t.Fatal(err)
	}
	provider := &heldProvider{release: make(chan struct{})}
	rt := runtime.New(provider, ctxengine.New("sys", 0), runtime.NewExecutor(runtime.NewRegistry()))
	srv := New(gateway.New(rt, 1), backend, Options{ShutdownGrace: grace})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()

	resp, err := http.Post("http://"+ln.Addr().String()+"/api/chat/stream", "application/json", strings.NewReader(`{"message":"hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return provider, resp, cancel, served
}

func waitServed(t *testing.T, served <-chan error) {
	t.Helper()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func eventTypes(events []runtime.Event) string {
	kinds := make([]runtime.EventType, len(events))
	for i, e := range events {
		kinds[i] = e.Type
	}
	return fmt.Sprint(kinds)
}

func TestShutdownLetsExchangesFinishWithinGrace(t *testing.T) {
	provider, resp, cancel, served := startHeldServer(t, 5*time.Second)

	cancel()
	time.Sleep(50 * time.Millisecond)
	close(provider.release)

	events := readEvents(t, resp)
	want := fmt.Sprint([]runtime.EventType{runtime.EventContent, runtime.EventContent, runtime.EventDone})
	if got := eventTypes(events); got != want {
		t.Fatalf("event types = %s, want %s", got, want)
	}
	if events[1].Content != "，再见" {
		t.Errorf("unexpected final content: %q", events[1].Content)
	}
	waitServed(t, served)
}

func TestShutdownReportsExchangesCutOffAfterGrace(t *testing.T) {
	_, resp, cancel, served := startHeldServer(t, 50*time.Millisecond)

	cancel()

	events := readEvents(t, resp)
	want := fmt.Sprint([]runtime.EventType{runtime.EventContent, runtime.EventError, runtime.EventDone})
	if got := eventTypes(events); got != want {
		t.Fatalf("event types = %s, want %s", got, want)
	}
	if events[1].Message != "服务异常: server shutting down" {
		t.Errorf("unexpected error message: %q", events[1].Message)
	}
	waitServed(t, served)
}
