package metrics

import (
	"testing"

	"PriceOpt/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordTraining("elasticity", false)
	r.RecordTraining("elasticity", false)
	r.RecordTraining("demand", true)
	r.RecordOptimization("PROD001", models.SourceTrained, 4.2)
	r.RecordExperimentUpdate("t1", models.TestRunning)

	if got := testutil.ToFloat64(r.trainings.WithLabelValues("elasticity", "false")); got != 2 {
		t.Fatalf("expected 2 elasticity trainings, got %v", got)
	}
	if got := testutil.ToFloat64(r.revenueLift.WithLabelValues("PROD001")); got != 4.2 {
		t.Fatalf("expected lift gauge 4.2, got %v", got)
	}
	if got := testutil.ToFloat64(r.experiments.WithLabelValues("running")); got != 1 {
		t.Fatalf("expected 1 running update, got %v", got)
	}
}
