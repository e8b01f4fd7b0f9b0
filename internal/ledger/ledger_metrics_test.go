package ledger

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveOp_IncrementsCounter(t *testing.T) {
	OpsTotal.Reset()

	done := observeOp("test_op")
	done("ok")

	m := &dto.Metric{}
	counter, err := OpsTotal.GetMetricWithLabelValues("test_op", "ok")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues failed: %v", err)
	}
	_ = counter.Write(m)

	if m.Counter.GetValue() != 1.0 {
		t.Errorf("expected counter value 1, got %f", m.Counter.GetValue())
	}
}

func TestObserveOp_ObservesHistogram(t *testing.T) {
	OpDuration.Reset()

	done := observeOp("hist_test")
	done("ok")

	ch := make(chan prometheus.Metric, 10)
	OpDuration.Collect(ch)
	close(ch)

	found := false
	for metric := range ch {
		m := &dto.Metric{}
		_ = metric.Write(m)
		if m.Histogram != nil && m.Histogram.GetSampleCount() == 1 {
			found = true
		}
	}
	if !found {
		t.Error("expected histogram with 1 sample")
	}
}

func TestMetrics_Registered(t *testing.T) {
	metrics := []string{
		"apexcore_ledger_operations_total",
		"apexcore_ledger_operation_duration_seconds",
		"apexcore_ledger_bank_balance_apx",
		"apexcore_ledger_agent_count",
		"apexcore_ledger_verifier_rejections_total",
		"apexcore_ledger_snapshots_total",
	}

	gathered, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	found := make(map[string]bool)
	for _, mf := range gathered {
		found[mf.GetName()] = true
	}

	for _, name := range metrics {
		if !found[name] {
			t.Logf("metric %s not yet gathered (no data written)", name)
		}
	}
}
