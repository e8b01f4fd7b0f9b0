// Command apexd is the control plane host process: it wires the ledger,
// verifier, pricing, hook pipeline, and dispatcher together, then serves
// the configured transport until signaled to stop.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apexnet/apexcore/internal/apexerr"
	"github.com/apexnet/apexcore/internal/circuitbreaker"
	"github.com/apexnet/apexcore/internal/config"
	"github.com/apexnet/apexcore/internal/dispatcher"
	"github.com/apexnet/apexcore/internal/health"
	"github.com/apexnet/apexcore/internal/hooks"
	"github.com/apexnet/apexcore/internal/hooks/builtins"
	"github.com/apexnet/apexcore/internal/ids"
	"github.com/apexnet/apexcore/internal/ledger"
	"github.com/apexnet/apexcore/internal/logging"
	"github.com/apexnet/apexcore/internal/memsearch"
	"github.com/apexnet/apexcore/internal/metrics"
	"github.com/apexnet/apexcore/internal/money"
	"github.com/apexnet/apexcore/internal/pagination"
	"github.com/apexnet/apexcore/internal/persona"
	"github.com/apexnet/apexcore/internal/pricing"
	"github.com/apexnet/apexcore/internal/sandbox"
	"github.com/apexnet/apexcore/internal/syncutil"
	"github.com/apexnet/apexcore/internal/traces"
	"github.com/apexnet/apexcore/internal/validation"
	"github.com/apexnet/apexcore/internal/txn"
	"github.com/apexnet/apexcore/internal/verifier"
)

// Build info, set by ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logFormat := "text"
	if cfg.IsProduction() {
		logFormat = "json"
	}
	logger := logging.New(cfg.LogLevel, logFormat)
	logger.Info("starting apexd",
		"version", Version, "commit", Commit, "build_time", BuildTime,
		"env", cfg.Env, "transport", cfg.Transport,
	)

	if cfg.InitialAgentBalance != "" {
		if amt, ok := money.Parse(cfg.InitialAgentBalance); ok {
			ledger.InitialBalance = amt
		}
	}
	if cfg.DebtCeilingDefault != "" {
		if amt, ok := money.Parse(cfg.DebtCeilingDefault); ok {
			ledger.DefaultDebtCeiling = amt
		}
	}
	initialBankBalance := money.MustParse(cfg.InitialBankBalance)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTraces(context.Background()) }()

	store, err := ledger.OpenFileStore(cfg.LedgerPath, ledger.SystemBank{Balance: initialBankBalance})
	if err != nil {
		logger.Error("failed to open ledger store", "error", err)
		switch {
		case errors.Is(err, ledger.ErrLockHeld):
			os.Exit(10)
		case errors.Is(err, ledger.ErrWALReplayFailed):
			os.Exit(11)
		}
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	var mirror *ledger.PostgresMirror
	if cfg.MirrorDatabaseURL != "" {
		mirror, err = ledger.NewPostgresMirror(cfg.MirrorDatabaseURL, ledger.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			logger.Error("failed to open postgres mirror", "error", err)
			os.Exit(1)
		}
		defer func() { _ = mirror.Close() }()
		go metrics.StartDBStatsCollector(ctx, mirror.DB(), 15*time.Second)
	} else if cfg.IsProduction() {
		logger.Warn("running without a durable postgres mirror")
	}

	ledgr := ledger.New(store, verifier.New(), mirrorOrNil(mirror))

	personaLoader := persona.NewLoader(cfg.PersonaDir)
	records, err := personaLoader.Load()
	if err != nil {
		logger.Error("failed to load personas", "error", err)
		os.Exit(1)
	}
	personaRegistry := persona.NewRegistry(records)
	logger.Info("personas loaded", "count", len(records))

	audit, err := builtins.NewAuditEmit(cfg.LedgerPath + "/audit.log")
	if err != nil {
		logger.Error("failed to open audit log", "error", err)
		os.Exit(1)
	}

	pipeline := hooks.New()
	registry := hooks.NewRegistry()
	builtins.Register(
		registry,
		builtins.NewFiscalContext(ledgr),
		builtins.NewMemoryContext(memsearch.Noop{}, 5),
		builtins.NewPermissionCheck(personaRegistry),
		builtins.NewRetryTransient(retryExecAdapter{sandbox.NoopExecutor{}}, 3, 100*time.Millisecond),
		audit,
		ledgr,
	)
	descs, err := hooks.LoadManifest(cfg.HookManifestPath)
	if err != nil {
		logger.Error("failed to load hook manifest", "error", err)
		os.Exit(1)
	}
	if err := registry.Build(pipeline, descs); err != nil {
		logger.Error("failed to build hook pipeline", "error", err)
		os.Exit(1)
	}
	logger.Info("hook pipeline built", "hooks", len(descs))

	disp := dispatcher.New(pipeline, dispatcher.Config{
		MaxMessageSize:        cfg.MaxMessageSizeBytes,
		BufferSize:            cfg.BufferSizeBytes,
		BackpressureThreshold: cfg.BackpressureThresholdRatio,
		RequestTTL:            cfg.RequestTTL(),
		Retention:             30 * time.Second,
		SweepInterval:         cfg.TimeoutSweepInterval(),
	}, logger)

	tokenTaxRate := money.FromCents(int64(cfg.TokenTaxRate*100 + 0.5))
	registerHandlers(disp, ledgr, sandbox.NoopExecutor{}, personaRegistry, tokenTaxRate)
	disp.StartSweeper(ctx, cfg.TimeoutSweepInterval(), func(requestID string) {
		logger.Warn("request timed out", "request_id", requestID)
	})

	healthRegistry := health.NewRegistry()
	healthRegistry.Register("ledger", func(ctx context.Context) health.Status {
		return health.Status{Name: "ledger", Healthy: true}
	})
	if mirror != nil {
		healthRegistry.Register("postgres_mirror", func(ctx context.Context) health.Status {
			if err := mirror.DB().PingContext(ctx); err != nil {
				return health.Status{Name: "postgres_mirror", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "postgres_mirror", Healthy: true}
		})
	}

	go serveDiagnostics(ctx, cfg, logger, healthRegistry)
	go snapshotLoop(ctx, store, logger)

	if err := serveTransport(ctx, cfg, disp, logger); err != nil {
		logger.Error("transport error", "error", err)
		os.Exit(1)
	}

	logger.Info("apexd shut down cleanly")
}

func mirrorOrNil(m *ledger.PostgresMirror) ledger.Mirror {
	if m == nil {
		return nil
	}
	return m
}

// retryExecAdapter adapts sandbox.Executor's typed Result onto the plain
// `any` return builtins.TransientExecutor expects, since the retry hook
// only cares about the value round-tripping back onto payload.Params.
type retryExecAdapter struct {
	exec sandbox.Executor
}

func (a retryExecAdapter) Execute(ctx context.Context, name string, arguments map[string]any) (any, error) {
	result, err := a.exec.Execute(ctx, name, arguments)
	if err != nil {
		return nil, err
	}
	return result.Output, nil
}

// registerHandlers wires the five dispatcher methods every deployment must
// expose.
func registerHandlers(disp *dispatcher.Dispatcher, ledgr *ledger.Ledger, exec sandbox.Executor, personaRegistry *persona.Registry, tokenTaxRate money.Money) {
	toolBreaker := circuitbreaker.New(5, 30*time.Second)
	agentLocks := syncutil.NewContextShardedMutex()
	disp.Handle("ledger/getAgent", func(ctx context.Context, payload *hooks.Payload) (any, error) {
		agentID, _ := payload.Params["agent_id"].(string)
		if agentID == "" || !validation.IsValidAgentID(agentID) {
			return nil, apexerr.InvalidParams("agent_id is required and must match the control plane's identifier shape")
		}
		agent, err := ledgr.GetAgent(ids.AgentId(agentID))
		if err != nil {
			return nil, err
		}
		return agentRecordToWire(agent), nil
	})

	disp.Handle("ledger/transfer", func(ctx context.Context, payload *hooks.Payload) (any, error) {
		from, _ := payload.Params["from"].(string)
		to, _ := payload.Params["to"].(string)
		amountStr, _ := payload.Params["amount"].(string)
		kindStr, _ := payload.Params["kind"].(string)
		taskRef, _ := payload.Params["task_ref"].(string)
		if from == "" || to == "" || amountStr == "" {
			return nil, apexerr.InvalidParams("from, to, and amount are required")
		}
		if !validation.IsValidAgentID(from) || !validation.IsValidAgentID(to) {
			return nil, apexerr.InvalidParams("from and to must match the control plane's identifier shape")
		}
		amount, ok := money.Parse(amountStr)
		if !ok {
			return nil, apexerr.InvalidParams("amount is not a valid APX value")
		}
		kind := txn.KindTransfer
		if kindStr != "" {
			kind = txn.Kind(kindStr)
		}
		txID, err := ledgr.Transfer(ctx, ids.AgentId(from), ids.AgentId(to), amount, kind, taskRef)
		if err != nil {
			return nil, err
		}
		return map[string]any{"tx_id": string(txID)}, nil
	})

	disp.Handle("ledger/snapshot", func(ctx context.Context, payload *hooks.Payload) (any, error) {
		view := ledgr.Snapshot()
		agents := make([]map[string]any, 0, len(view.Agents))
		for _, a := range view.Agents {
			agents = append(agents, agentRecordToWire(a))
		}
		return map[string]any{
			"bank":       map[string]any{"balance": view.Bank.Balance.String()},
			"agents":     agents,
			"log_length": view.LogLength,
			"last_tx_id": string(view.LastTxID),
		}, nil
	})

	disp.Handle("registry/listActive", func(ctx context.Context, payload *hooks.Payload) (any, error) {
		cursorStr, _ := payload.Params["cursor"].(string)
		limit := 50
		if v, ok := payload.Params["limit"].(float64); ok && v > 0 {
			limit = int(v)
		}
		entries := disp.Registry().ListActive()
		_, _ = pagination.Decode(cursorStr) // cursor carried for forward compatibility; ListActive returns entries oldest first
		if len(entries) > limit {
			entries = entries[:limit]
		}
		out := make([]map[string]any, 0, len(entries))
		for _, e := range entries {
			out = append(out, map[string]any{
				"request_id": e.RequestID,
				"method":     e.Method,
				"status":     string(e.Status),
				"age_ms":     time.Since(e.RegisteredAt).Milliseconds(),
			})
		}
		return map[string]any{"requests": out}, nil
	})

	disp.Handle("tools/call", func(ctx context.Context, payload *hooks.Payload) (any, error) {
		name, _ := payload.Params["name"].(string)
		arguments, _ := payload.Params["arguments"].(map[string]any)
		if name == "" {
			return nil, apexerr.InvalidParams("name is required")
		}
		if !toolBreaker.Allow(name) {
			return nil, apexerr.New(apexerr.KindResource, apexerr.CodeInternalError, "tool temporarily unavailable: "+name, nil)
		}

		// Serialize concurrent tool calls from the same agent so two
		// in-flight requests never race on the same fiscal context.
		unlock, err := agentLocks.LockContext(ctx, payload.AgentID)
		if err != nil {
			requestID, _ := payload.Context["request_id"].(string)
			return nil, apexerr.Timeout(requestID)
		}
		defer unlock()

		result, err := exec.Execute(ctx, name, arguments)
		if err != nil {
			toolBreaker.RecordFailure(name)
			if errors.Is(err, sandbox.ErrEscapeAttempt) {
				return nil, apexerr.SecurityViolation(apexerr.CodeSandboxEscapeAttempt, "sandbox escape attempt detected")
			}
			payload.Annotations["transient"] = result.Transient
			return nil, err
		}
		toolBreaker.RecordSuccess(name)

		reward, tax, err := settleToolCall(ctx, ledgr, personaRegistry, tokenTaxRate, payload, name)
		if err != nil {
			return nil, err
		}

		return map[string]any{
			"result":            result.Output,
			"execution_time_ms": result.ExecutionTime.Milliseconds(),
			"reward":            reward.String(),
			"tax":               tax.String(),
		}, nil
	})
}

// settleToolCall applies the pricing policy's gross compensation and
// token-tax legs for a successful tool call, committing each as its own
// ledger transaction: a REWARD transfer from the bank to the agent, then a
// separate TAX transfer back, never netted into one transfer (spec §2).
func settleToolCall(ctx context.Context, ledgr *ledger.Ledger, personaRegistry *persona.Registry, tokenTaxRate money.Money, payload *hooks.Payload, toolName string) (money.Money, money.Money, error) {
	agentID := ids.AgentId(payload.AgentID)
	agent, err := ledgr.GetAgent(agentID)
	if err != nil {
		return money.Zero(), money.Zero(), err
	}

	baseRate := money.Zero()
	if rec, ok := personaRegistry.Get(payload.AgentID); ok {
		if parsed, valid := money.Parse(rec.BaseRate); valid {
			baseRate = parsed
		}
	}

	complexity := pricing.Complexity(paramString(payload.Params, "complexity", string(pricing.ComplexitySimple)))
	gross := pricing.Compensation(baseRate, complexity, agent.Performance.Streak, 0, money.Zero(), money.Zero())

	taskKind := pricing.TaskKind(paramString(payload.Params, "task_kind", ""))
	tokenCount := paramInt(payload.Params, "token_count", 0)
	tax := pricing.TokenTax(taskKind, tokenCount, tokenTaxRate)

	taskRef := fmt.Sprintf("tools/call:%s", toolName)

	if gross.Sign() > 0 {
		if _, err := ledgr.Transfer(ctx, ids.SystemBank, agentID, gross, txn.KindReward, taskRef); err != nil {
			return money.Zero(), money.Zero(), err
		}
	}
	if tax.Sign() > 0 {
		if _, err := ledgr.Transfer(ctx, agentID, ids.SystemBank, tax, txn.KindTax, taskRef); err != nil {
			return gross, money.Zero(), err
		}
	}
	return gross, tax, nil
}

// paramString reads a string tools/call param, falling back to def when the
// key is absent or not a string.
func paramString(params map[string]any, key, def string) string {
	if s, ok := params[key].(string); ok && s != "" {
		return s
	}
	return def
}

// paramInt reads an int tools/call param carried as JSON's float64, falling
// back to def when the key is absent or not a number.
func paramInt(params map[string]any, key string, def int) int {
	if v, ok := params[key].(float64); ok {
		return int(v)
	}
	return def
}

func agentRecordToWire(a ledger.AgentRecord) map[string]any {
	return map[string]any{
		"id":                string(a.ID),
		"display_name":      a.Metadata.DisplayName,
		"tier":              string(a.Metadata.Tier),
		"active":            a.Metadata.Active,
		"balance":           a.Financials.Balance.String(),
		"escrow":            a.Financials.Escrow.String(),
		"debt_ceiling":      a.Financials.DebtCeiling.String(),
		"lifetime_earnings": a.Financials.LifetimeEarnings.String(),
		"streak":            a.Performance.Streak,
		"success_rate":      a.Performance.SuccessRate,
		"reputation":        a.Performance.Reputation,
	}
}

// serveTransport blocks serving the configured transport until ctx is done.
func serveTransport(ctx context.Context, cfg *config.Config, disp *dispatcher.Dispatcher, logger *slog.Logger) error {
	switch cfg.Transport {
	case "stdio":
		return disp.Serve(ctx, dispatcher.Stdio())
	case "tcp":
		logger.Info("listening", "addr", cfg.ListenAddr, "transport", "tcp")
		return dispatcher.ListenTCP(ctx, cfg.ListenAddr, disp, logger)
	case "ws":
		mux := http.NewServeMux()
		mux.Handle("/ws", dispatcher.ServeWS(ctx, disp, logger))
		srv := &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      mux,
			ReadTimeout:  cfg.HTTPReadTimeout,
			WriteTimeout: cfg.HTTPWriteTimeout,
			IdleTimeout:  cfg.HTTPIdleTimeout,
		}
		logger.Info("listening", "addr", cfg.ListenAddr, "transport", "ws")
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// serveDiagnostics runs the metrics + health HTTP server on a separate
// listen address from the dispatcher's own transport.
func serveDiagnostics(ctx context.Context, cfg *config.Config, logger *slog.Logger, healthRegistry *health.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		healthy, statuses := healthRegistry.CheckAll(r.Context())
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = writeJSON(w, map[string]any{"healthy": healthy, "checks": statuses})
	})

	srv := &http.Server{
		Addr:         cfg.MetricsListenAddr,
		Handler:      validation.RequestSizeMiddleware(validation.MaxRequestSize, mux),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("diagnostics server listening", "addr", cfg.MetricsListenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("diagnostics server error", "error", err)
	}
}

// snapshotLoop forces a durable ledger checkpoint on a fixed interval. It
// is the only periodic snapshot trigger; the FileStore counts commits but
// takes no snapshots on its own.
func snapshotLoop(ctx context.Context, store *ledger.FileStore, logger *slog.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Snapshot(); err != nil {
				logger.Error("periodic snapshot failed", "error", err)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) error {
	return json.NewEncoder(w).Encode(v)
}
