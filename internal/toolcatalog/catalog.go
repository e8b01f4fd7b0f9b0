// Package toolcatalog declares the mcp-go tool schemas exposed by
// tools/call. It holds definitions only; routing and execution live in
// the dispatcher and sandbox packages.
package toolcatalog

import "github.com/mark3labs/mcp-go/mcp"

// ToolGetAgent reports an agent's current financial and performance record.
var ToolGetAgent = mcp.NewTool("get_agent",
	mcp.WithDescription("Look up an agent's balance, escrow, debt ceiling, tier, and performance stats."),
	mcp.WithString("agent_id",
		mcp.Required(),
		mcp.Description("The agent identifier to look up")),
)

// ToolTransfer requests a ledger transfer between two agents, subject to
// the verifier and the PRE_TOOL hook pipeline.
var ToolTransfer = mcp.NewTool("transfer",
	mcp.WithDescription("Move APX between two agents. Subject to solvency and debt-ceiling checks before it commits."),
	mcp.WithString("from",
		mcp.Required(),
		mcp.Description("Sending agent id, or \"system_bank\"")),
	mcp.WithString("to",
		mcp.Required(),
		mcp.Description("Receiving agent id, or \"system_bank\"")),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Amount in APX, e.g. \"5.00\"")),
	mcp.WithString("kind",
		mcp.Description("Transaction kind: TRANSFER, REWARD, TAX, BOND_LOCK, BOND_RETURN, BOND_FORFEIT, ROYALTY, PENALTY"),
		mcp.Enum("TRANSFER", "REWARD", "TAX", "BOND_LOCK", "BOND_RETURN", "BOND_FORFEIT", "ROYALTY", "PENALTY")),
	mcp.WithString("task_ref",
		mcp.Description("Optional opaque reference to the task that motivated this transfer")),
)

// ToolListActiveRequests reports in-flight registry entries for observability.
var ToolListActiveRequests = mcp.NewTool("list_active_requests",
	mcp.WithDescription("List requests currently tracked by the dispatcher's registry, with their status and age."),
)

// ToolExecutePython runs a short Python snippet in the sandbox collaborator.
// Every invocation passes through the static_analysis PRE_TOOL hook first.
var ToolExecutePython = mcp.NewTool("execute_python",
	mcp.WithDescription("Execute a short Python snippet in an isolated sandbox and return stdout/stderr."),
	mcp.WithString("code",
		mcp.Required(),
		mcp.Description("Python source to execute")),
)

// ToolNoop is a zero-effect tool used for pipeline smoke tests and as the
// happy-path example in integration tests.
var ToolNoop = mcp.NewTool("noop",
	mcp.WithDescription("Does nothing. Useful for exercising the hook pipeline without side effects."),
)

// All returns every declared tool, for registration against an mcp-go server.
func All() []mcp.Tool {
	return []mcp.Tool{
		ToolGetAgent,
		ToolTransfer,
		ToolListActiveRequests,
		ToolExecutePython,
		ToolNoop,
	}
}
