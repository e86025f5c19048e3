package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorders(t *testing.T) {
	RecordPoll("metrics-test", "ok", 20*time.Millisecond)
	RecordEmitted("metrics-test", 3)
	RecordDedupSkipped("metrics-test", 0)
	RecordDedupSkipped("metrics-test", 2)
	SetWindowSize("metrics-test", 5)

	if got := testutil.ToFloat64(PollsTotal.WithLabelValues("metrics-test", "ok")); got != 1 {
		t.Errorf("polls = %v", got)
	}
	if got := testutil.ToFloat64(IncidentsEmitted.WithLabelValues("metrics-test")); got != 3 {
		t.Errorf("emitted = %v", got)
	}
	if got := testutil.ToFloat64(DedupSkipped.WithLabelValues("metrics-test")); got != 2 {
		t.Errorf("skipped = %v", got)
	}
	if got := testutil.ToFloat64(CursorWindowSize.WithLabelValues("metrics-test")); got != 5 {
		t.Errorf("window = %v", got)
	}
}
