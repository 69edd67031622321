package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordModelLoad(t *testing.T) {
	m := New()
	m.RecordModelLoad("fast", false)
	m.RecordModelLoad("fast", true)
	m.RecordModelLoad("fast", true)

	if got := testutil.ToFloat64(m.ModelLoads.WithLabelValues("fast", "reused")); got != 2 {
		t.Fatalf("expected 2 reused loads, got %v", got)
	}
	if got := testutil.ToFloat64(m.ModelLoads.WithLabelValues("fast", "loaded")); got != 1 {
		t.Fatalf("expected 1 fresh load, got %v", got)
	}
}

func TestNew_IsolatedRegistries(t *testing.T) {
	a := New()
	b := New()
	a.RecordRun("completed", "whisper_cpp", 1.5, 2)
	if got := testutil.ToFloat64(b.RunsTotal.WithLabelValues("completed", "whisper_cpp")); got != 0 {
		t.Fatalf("expected isolated registry, got %v", got)
	}
	if n, err := testutil.GatherAndCount(a.Registry, "localscribe_runs_total"); err != nil || n != 1 {
		t.Fatalf("expected 1 runs_total series, got %d (%v)", n, err)
	}
}
