package pricing

import (
	"math"
	"testing"

	"github.com/apexnet/apexcore/internal/ledger"
	"github.com/apexnet/apexcore/internal/money"
)

func TestStreakBonus_Boundaries(t *testing.T) {
	cases := []struct {
		streak int
		want   float64
	}{
		{0, 1.0},
		{10, 1.0 + math.Log10(11)},
		{99, 2.0},
		{10000, 2.0},
	}
	for _, c := range cases {
		got := StreakBonus(c.streak)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("StreakBonus(%d) = %v, want %v", c.streak, got, c.want)
		}
	}
}

func TestCompensation_SimpleNoStreak(t *testing.T) {
	base := money.MustParse("10.00")
	got := Compensation(base, ComplexitySimple, 0, 0, money.Zero(), money.Zero())
	if got.String() != "10.00" {
		t.Errorf("expected 10.00, got %s", got)
	}
}

func TestCompensation_SubtractsTaxAndFines(t *testing.T) {
	base := money.MustParse("10.00")
	tax := money.MustParse("0.01")
	fines := money.MustParse("1.00")
	got := Compensation(base, ComplexitySimple, 0, 50, tax, fines)
	// 10.00 - (50 * 0.01) - 1.00 = 10.00 - 0.50 - 1.00 = 8.50
	if got.String() != "8.50" {
		t.Errorf("expected 8.50, got %s", got)
	}
}

func TestCompensation_ComplexityMultiplier(t *testing.T) {
	base := money.MustParse("10.00")
	got := Compensation(base, ComplexityExpert, 0, 0, money.Zero(), money.Zero())
	if got.String() != "50.00" {
		t.Errorf("expected 50.00 at expert multiplier 5.0, got %s", got)
	}
}

func TestTierAllows(t *testing.T) {
	cases := []struct {
		tier       ledger.Tier
		complexity Complexity
		want       bool
	}{
		{ledger.TierNovice, ComplexitySimple, true},
		{ledger.TierNovice, ComplexityMedium, true},
		{ledger.TierNovice, ComplexityComplex, false},
		{ledger.TierNovice, ComplexityExpert, false},
		{ledger.TierEstablished, ComplexityComplex, true},
		{ledger.TierEstablished, ComplexityExpert, false},
		{ledger.TierAdvanced, ComplexityExpert, false},
		{ledger.TierExpert, ComplexityExpert, true},
		{ledger.TierMaster, ComplexityExpert, true},
	}
	for _, c := range cases {
		got := TierAllows(c.tier, c.complexity)
		if got != c.want {
			t.Errorf("TierAllows(%s, %s) = %v, want %v", c.tier, c.complexity, got, c.want)
		}
	}
}

func TestTokenTax_UnderBenchmarkIsZero(t *testing.T) {
	rate := money.MustParse("0.01")
	got := TokenTax(TaskBugFix, 200, rate)
	if !got.IsZero() {
		t.Errorf("expected zero tax under benchmark, got %s", got)
	}
}

func TestTokenTax_OverBenchmark(t *testing.T) {
	rate := money.MustParse("0.01")
	got := TokenTax(TaskBugFix, 400, rate) // 100 tokens over 300 benchmark
	if got.String() != "1.00" {
		t.Errorf("expected tax 1.00, got %s", got)
	}
}

func TestTokenTax_UnknownKindIsZero(t *testing.T) {
	rate := money.MustParse("0.01")
	got := TokenTax(TaskKind("unknown"), 10000, rate)
	if !got.IsZero() {
		t.Errorf("expected zero tax for unbenchmarked kind, got %s", got)
	}
}
