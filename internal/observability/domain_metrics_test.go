package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveAnalystRequestCountsByOutcome(t *testing.T) {
	beforeOK := testutil.ToFloat64(analystRequestsTotal.WithLabelValues(OutcomeSuccess))
	beforeErr := testutil.ToFloat64(analystRequestsTotal.WithLabelValues(OutcomeError))

	ObserveAnalystRequest(nil, 120*time.Millisecond)
	ObserveAnalystRequest(errors.New("boom"), time.Second)
	ObserveAnalystRequest(errors.New("boom"), time.Second)

	if got := testutil.ToFloat64(analystRequestsTotal.WithLabelValues(OutcomeSuccess)) - beforeOK; got != 1 {
		t.Fatalf("success delta = %v", got)
	}
	if got := testutil.ToFloat64(analystRequestsTotal.WithLabelValues(OutcomeError)) - beforeErr; got != 2 {
		t.Fatalf("error delta = %v", got)
	}
}

func TestSessionCounters(t *testing.T) {
	before := testutil.ToFloat64(sessionResetsTotal)
	IncrementSessionReset()
	if got := testutil.ToFloat64(sessionResetsTotal) - before; got != 1 {
		t.Fatalf("reset delta = %v", got)
	}

	before = testutil.ToFloat64(renderCacheHitsTotal)
	IncrementRenderCacheHit()
	if got := testutil.ToFloat64(renderCacheHitsTotal) - before; got != 1 {
		t.Fatalf("cache hit delta = %v", got)
	}
}
