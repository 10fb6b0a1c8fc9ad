package obs

import (
	"errors"
	"testing"
	"time"

	"github.com/Skryldev/oipipe/pipeline"
)

func TestMetricsHookAccumulatesPerStage(t *testing.T) {
	m := NewInMemoryMetrics()
	h := NewMetricsHook(m)

	h.OnStage("job-1", pipeline.StageObservation{StageUID: 7, Elapsed: 10 * time.Millisecond, Bytes: 100}, nil)
	h.OnStage("job-2", pipeline.StageObservation{StageUID: 7, Elapsed: 20 * time.Millisecond, Bytes: 50}, nil)
	h.OnStage("job-3", pipeline.StageObservation{StageUID: 7, Elapsed: 5 * time.Millisecond}, errors.New("boom"))

	snap := m.Snapshot()
	if snap.StageCalls[7] != 3 {
		t.Fatalf("expected 3 calls recorded, got %d", snap.StageCalls[7])
	}
	if snap.StageErrors[7] != 1 {
		t.Fatalf("expected 1 error recorded, got %d", snap.StageErrors[7])
	}
	if snap.TotalBytes != 150 {
		t.Fatalf("expected 150 total bytes, got %d", snap.TotalBytes)
	}
	if snap.StageDurationsMs[7] != 35 {
		t.Fatalf("expected 35ms cumulative duration, got %d", snap.StageDurationsMs[7])
	}
}
