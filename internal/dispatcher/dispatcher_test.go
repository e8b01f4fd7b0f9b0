package dispatcher

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/apexnet/apexcore/internal/hooks"
)

func testDispatcher() *Dispatcher {
	p := hooks.New()
	p.Freeze()
	cfg := Config{
		MaxMessageSize:        1024,
		BufferSize:            4096,
		BackpressureThreshold: 0.9,
		RequestTTL:            time.Minute,
		Retention:             time.Minute,
	}
	return New(p, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDispatch_UnknownMethod(t *testing.T) {
	d := testDispatcher()
	resp := d.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"nope"}`))
	if resp == nil || resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("expected MethodNotFound, got %+v", resp)
	}
}

func TestDispatch_ParseError(t *testing.T) {
	d := testDispatcher()
	resp := d.Dispatch(context.Background(), []byte(`not json`))
	if resp == nil || resp.Error == nil || resp.Error.Code != -32700 {
		t.Fatalf("expected ParseError, got %+v", resp)
	}
}

func TestDispatch_HappyPath(t *testing.T) {
	d := testDispatcher()
	d.Handle("tools/call", func(ctx context.Context, payload *hooks.Payload) (any, error) {
		return map[string]any{"result": "ok"}, nil
	})
	resp := d.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"noop","arguments":{}}}`))
	if resp == nil || resp.Error != nil {
		t.Fatalf("expected success, got %+v", resp)
	}
	var result map[string]any
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result["result"] != "ok" {
		t.Errorf("expected result ok, got %+v", result)
	}
}

func TestDispatch_CriticalHookHalts(t *testing.T) {
	p := hooks.New()
	p.Register(hooks.Descriptor{ID: "blocker", Phase: hooks.PhasePreTool, Priority: 0, Triggers: []string{"*"}, Critical: true},
		blockerHook{})
	p.Freeze()
	cfg := Config{MaxMessageSize: 1024, BufferSize: 4096, BackpressureThreshold: 0.9, RequestTTL: time.Minute, Retention: time.Minute}
	d := New(p, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.Handle("tools/call", func(ctx context.Context, payload *hooks.Payload) (any, error) {
		t.Fatal("handler should not run when PRE_TOOL halts")
		return nil, nil
	})

	resp := d.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"execute_python","arguments":{"code":"import os; os.system('ls')"}}}`))
	if resp == nil || resp.Error == nil {
		t.Fatal("expected halt error response")
	}
}

type blockerHook struct{}

func (blockerHook) ID() string { return "blocker" }
func (blockerHook) Run(ctx context.Context, payload *hooks.Payload) error {
	payload.Halt = true
	payload.AddViolation(hooks.Violation{Kind: "static_analysis_code", HookID: "blocker", Detail: "blocked", Code: -32012})
	return nil
}

func TestDispatch_NotificationProducesNoResponse(t *testing.T) {
	d := testDispatcher()
	d.Handle("tools/call", func(ctx context.Context, payload *hooks.Payload) (any, error) {
		return map[string]any{"result": "ok"}, nil
	})
	resp := d.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"noop"}}`))
	if resp != nil {
		t.Fatalf("expected nil response for a notification, got %+v", resp)
	}
}

func TestRegistry_SweepTimesOutStaleEntries(t *testing.T) {
	r := NewRegistry(10*time.Millisecond, time.Minute)
	r.Register(context.Background(), "req_1", "tools/call", nil)
	time.Sleep(20 * time.Millisecond)
	timedOut := r.Sweep(time.Now())
	if len(timedOut) != 1 || timedOut[0] != "req_1" {
		t.Fatalf("expected req_1 to time out, got %v", timedOut)
	}
	entry, ok := r.Get("req_1")
	if !ok || entry.Status != StatusTimedOut {
		t.Fatalf("expected req_1 status timed_out, got %+v", entry)
	}
}

func TestRegistry_CancelStopsActiveRequest(t *testing.T) {
	r := NewRegistry(time.Minute, time.Minute)
	ctx := r.Register(context.Background(), "req_1", "tools/call", nil)
	if !r.Cancel("req_1") {
		t.Fatal("expected cancel to succeed on active request")
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected request context to be cancelled")
	}
}
