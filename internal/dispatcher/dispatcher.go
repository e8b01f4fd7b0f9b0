package dispatcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/apexnet/apexcore/internal/apexerr"
	"github.com/apexnet/apexcore/internal/hooks"
)

// Handler executes one method's business logic against already-validated
// params, returning a JSON-serializable result or a typed *apexerr.Error.
type Handler func(ctx context.Context, payload *hooks.Payload) (any, error)

// methodPhase names which hook phases wrap a given method.
type methodPhase struct {
	pre  hooks.Phase
	post hooks.Phase
}

var phasesByMethod = map[string]methodPhase{
	"tools/call": {pre: hooks.PhasePreTool, post: hooks.PhasePostTool},
}

// Dispatcher parses framed JSON-RPC messages, tracks them in a Registry,
// and routes each to a registered Handler through the hook pipeline.
type Dispatcher struct {
	pipeline *hooks.Pipeline
	registry *Registry
	handlers map[string]Handler
	logger   *slog.Logger

	maxMessageSize        int
	bufferSize            int
	backpressureThreshold float64
}

// MaxMessageSize, BufferSize, and BackpressureThreshold expose the
// dispatcher's framing tunables to a transport's FrameReader.
func (d *Dispatcher) MaxMessageSize() int            { return d.maxMessageSize }
func (d *Dispatcher) BufferSize() int                { return d.bufferSize }
func (d *Dispatcher) BackpressureThreshold() float64 { return d.backpressureThreshold }

// Config bundles the dispatcher's tunables, mirroring the configuration
// surface in internal/config.
type Config struct {
	MaxMessageSize        int
	BufferSize            int
	BackpressureThreshold float64
	RequestTTL            time.Duration
	Retention             time.Duration
	SweepInterval         time.Duration
}

// New builds a Dispatcher wired to pipeline and logger, with an empty
// method table; call Handle to register methods before serving traffic.
func New(pipeline *hooks.Pipeline, cfg Config, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		pipeline:              pipeline,
		registry:              NewRegistry(cfg.RequestTTL, cfg.Retention),
		handlers:              make(map[string]Handler),
		logger:                logger,
		maxMessageSize:        cfg.MaxMessageSize,
		bufferSize:            cfg.BufferSize,
		backpressureThreshold: cfg.BackpressureThreshold,
	}
}

// Handle registers a Handler for method.
func (d *Dispatcher) Handle(method string, h Handler) {
	d.handlers[method] = h
}

// Registry exposes the request registry for registry/listActive and tests.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// StartSweeper launches the timeout sweep goroutine; onTimeout is invoked
// with each request id that aged past request_ttl.
func (d *Dispatcher) StartSweeper(ctx context.Context, interval time.Duration, onTimeout func(requestID string)) {
	go d.registry.RunSweeper(ctx, interval, onTimeout)
}

// Dispatch parses and handles a single framed message, returning the
// Response to write (nil for a notification with no error). Cancellation
// requests ($/cancelRequest) are handled inline and never reach a Handler.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) *Response {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ptr(newError(nil, apexerr.CodeParseError, "parse error: "+err.Error(), nil))
	}
	if msg.JSONRPC != "2.0" || msg.Method == "" {
		return ptr(newError(msg.ID, apexerr.CodeInvalidRequest, "invalid request", nil))
	}

	if msg.Method == "$/cancelRequest" {
		d.handleCancel(msg)
		return nil
	}

	handler, ok := d.handlers[msg.Method]
	if !ok {
		if msg.IsNotification() {
			return nil
		}
		return ptr(newError(msg.ID, apexerr.CodeMethodNotFound, "method not found: "+msg.Method, nil))
	}

	requestID := string(msg.ID)
	if requestID == "" {
		requestID = msg.Method // notifications get a synthetic, non-unique id for registry bookkeeping
	}
	reqCtx := d.registry.Register(ctx, requestID, msg.Method, msg.Params)

	var params map[string]any
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			d.registry.Fail(requestID)
			return ptr(newError(msg.ID, apexerr.CodeInvalidParams, "invalid params: "+err.Error(), nil))
		}
	}
	if params == nil {
		params = map[string]any{}
	}
	agentID, _ := params["agent_id"].(string)
	payload := hooks.NewPayload(msg.Method, agentID, params)
	payload.Context["request_id"] = requestID

	phases := phasesByMethod[msg.Method]
	if phases.pre != "" {
		d.pipeline.Run(reqCtx, phases.pre, payload)
	} else {
		d.pipeline.Run(reqCtx, hooks.PhasePrePrompt, payload)
	}

	if payload.Halt {
		d.registry.Fail(requestID)
		code, message := translateViolations(payload.Violations)
		return ptr(newError(msg.ID, code, message, map[string]any{"violations": payload.Violations}))
	}

	start := time.Now()
	result, err := handler(reqCtx, payload)
	payload.Params["execution_time_ms"] = time.Since(start).Milliseconds()

	if phases.post != "" {
		if result != nil {
			if m, ok := result.(map[string]any); ok {
				payload.Params["result"] = m["result"]
			}
		}
		d.pipeline.Run(reqCtx, phases.post, payload)
	}

	if err != nil {
		d.registry.Fail(requestID)
		return ptr(errorToResponse(msg.ID, err))
	}

	if payload.Halt {
		d.registry.Fail(requestID)
		code, message := translateViolations(payload.Violations)
		return ptr(newError(msg.ID, code, message, map[string]any{"violations": payload.Violations}))
	}

	d.registry.Complete(requestID)
	if msg.IsNotification() {
		return nil
	}
	return ptr(newResult(msg.ID, result))
}

func (d *Dispatcher) handleCancel(msg Message) {
	var params struct {
		RequestID string `json:"request_id"`
	}
	_ = json.Unmarshal(msg.Params, &params)
	d.registry.Cancel(params.RequestID)
}

func errorToResponse(id RequestID, err error) Response {
	if ae, ok := apexerr.As(err); ok {
		return newError(id, ae.Code, ae.Message, ae.Data)
	}
	return newError(id, apexerr.CodeInternalError, "internal error: "+err.Error(), nil)
}

// translateViolations picks the code of the first violation that carries
// one for the wire response; audit context carries the full list.
func translateViolations(violations []hooks.Violation) (int, string) {
	for _, v := range violations {
		if v.Code != 0 {
			return v.Code, v.Detail
		}
	}
	return apexerr.CodeInternalError, "request halted by hook pipeline"
}

func ptr(r Response) *Response { return &r }
