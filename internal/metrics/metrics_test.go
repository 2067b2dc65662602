package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(SessionsEnded.WithLabelValues("disconnect"))
	SessionsEnded.WithLabelValues("disconnect").Inc()
	if got := testutil.ToFloat64(SessionsEnded.WithLabelValues("disconnect")); got != before+1 {
		t.Fatalf("expected %v, got %v", before+1, got)
	}

	WSConnections.Set(0)
	WSConnections.Inc()
	WSConnections.Inc()
	WSConnections.Dec()
	if got := testutil.ToFloat64(WSConnections); got != 1 {
		t.Fatalf("expected gauge at 1, got %v", got)
	}
}
