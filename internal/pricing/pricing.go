// Package pricing implements the pure compensation and policy formulas
// consumed by PRE_TOOL and POST_TOOL hooks. Every function here is
// deterministic and side-effect free: no global state, no I/O.
package pricing

import (
	"math"

	"github.com/apexnet/apexcore/internal/ledger"
	"github.com/apexnet/apexcore/internal/money"
)

// Complexity is the task complexity class a tool invocation is rated at.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
	ComplexityExpert  Complexity = "expert"
)

// complexityMultiplier maps a complexity class to its C factor.
var complexityMultiplier = map[Complexity]float64{
	ComplexitySimple:  1.0,
	ComplexityMedium:  1.5,
	ComplexityComplex: 2.5,
	ComplexityExpert:  5.0,
}

// Multiplier returns complexity's C factor, or 0 if unrecognized.
func Multiplier(c Complexity) float64 {
	return complexityMultiplier[c]
}

// StreakBonus computes S(s) = min(2.0, 1.0 + log10(s + 1)).
func StreakBonus(streak int) float64 {
	if streak < 0 {
		streak = 0
	}
	bonus := 1.0 + math.Log10(float64(streak)+1)
	if bonus > 2.0 {
		return 2.0
	}
	return bonus
}

// Compensation computes P = (B * C * S(s)) - (T * mu) - sum(fines).
// baseRate is B in APX; tokenCount is T; perTokenTax is mu in APX.
func Compensation(baseRate money.Money, complexity Complexity, streak int, tokenCount int, perTokenTax money.Money, fines money.Money) money.Money {
	gross := baseRate.MulRate(Multiplier(complexity) * StreakBonus(streak))
	tax := perTokenTax.MulRate(float64(tokenCount))
	return gross.Sub(tax).Sub(fines)
}

// complexityRank orders complexity classes against the tier ceiling table:
// novice <= 2, established <= 3, advanced <= 4, expert <= 5, master <= 5.
var complexityRank = map[Complexity]int{
	ComplexitySimple:  1,
	ComplexityMedium:  2,
	ComplexityComplex: 3,
	ComplexityExpert:  5,
}

// tierCeiling is the maximum complexityRank each tier may attempt.
var tierCeiling = map[ledger.Tier]int{
	ledger.TierNovice:      2,
	ledger.TierEstablished: 3,
	ledger.TierAdvanced:    4,
	ledger.TierExpert:      5,
	ledger.TierMaster:      5,
}

// TierAllows reports whether tier may attempt a task of the given
// complexity.
func TierAllows(tier ledger.Tier, complexity Complexity) bool {
	ceiling, ok := tierCeiling[tier]
	if !ok {
		return false
	}
	rank, ok := complexityRank[complexity]
	if !ok {
		return false
	}
	return rank <= ceiling
}

// DefaultTokenTaxRate is the per-token tax rate absent an explicit
// configuration override (spec §6: token_tax_rate, default 0.01).
const DefaultTokenTaxRate = 0.01

// TaskKind names a task type for token-benchmark lookup.
type TaskKind string

const (
	TaskPythonUnitTest        TaskKind = "python_unit_test"
	TaskBugFix                TaskKind = "bug_fix"
	TaskFeatureImplementation TaskKind = "feature_implementation"
)

// tokenBenchmark maps a task kind to its reference token count.
var tokenBenchmark = map[TaskKind]int{
	TaskPythonUnitTest:        450,
	TaskBugFix:                300,
	TaskFeatureImplementation: 800,
}

// Benchmark returns the reference token count for kind, or 0 if kind is
// unrecognized (no tax benchmark applies).
func Benchmark(kind TaskKind) int {
	return tokenBenchmark[kind]
}

// TokenTax computes tax(type, actual) = max(0, actual - benchmark(type)) * rate.
// rate is expressed in APX per token.
func TokenTax(kind TaskKind, actualTokens int, rate money.Money) money.Money {
	benchmark := Benchmark(kind)
	over := actualTokens - benchmark
	if over <= 0 {
		return money.Zero()
	}
	return rate.MulRate(float64(over))
}
