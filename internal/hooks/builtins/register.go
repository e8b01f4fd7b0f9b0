package builtins

import (
	"fmt"

	"github.com/apexnet/apexcore/internal/hooks"
)

// Register installs the eight built-in hook builders onto registry. Hooks
// requiring a collaborator take it as a constructor argument supplied by
// the caller (typically cmd/apexd's wiring step) rather than resolved here,
// since Registry.Build only has access to each descriptor's static config.
func Register(registry *hooks.Registry, fiscal *FiscalContext, memory *MemoryContext, permission *PermissionCheck, retryExec *RetryTransient, audit *AuditEmit, tiers BalanceReader) {
	registry.MustRegister("fiscal_context", func(cfg map[string]any) (hooks.Hook, error) {
		if fiscal == nil {
			return nil, fmt.Errorf("fiscal_context: no ledger reader configured")
		}
		return fiscal, nil
	})
	registry.MustRegister("memory_context", func(cfg map[string]any) (hooks.Hook, error) {
		if memory == nil {
			return nil, fmt.Errorf("memory_context: no searcher configured")
		}
		return memory, nil
	})
	registry.MustRegister("static_analysis", func(cfg map[string]any) (hooks.Hook, error) {
		return NewStaticAnalysis(cfg)
	})
	registry.MustRegister("resource_meter", func(cfg map[string]any) (hooks.Hook, error) {
		return NewResourceMeterFromConfig(tiers, cfg)
	})
	registry.MustRegister("permission_check", func(cfg map[string]any) (hooks.Hook, error) {
		if permission == nil {
			return nil, fmt.Errorf("permission_check: no permission source configured")
		}
		return permission, nil
	})
	registry.MustRegister("sanitize_output", func(cfg map[string]any) (hooks.Hook, error) {
		return NewSanitizeOutput(), nil
	})
	registry.MustRegister("retry_transient", func(cfg map[string]any) (hooks.Hook, error) {
		if retryExec == nil {
			return nil, fmt.Errorf("retry_transient: no executor configured")
		}
		return retryExec, nil
	})
	registry.MustRegister("audit_emit", func(cfg map[string]any) (hooks.Hook, error) {
		if audit == nil {
			return nil, fmt.Errorf("audit_emit: no audit log configured")
		}
		return audit, nil
	})
}
