package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOrdersPlacedCounterByResult(t *testing.T) {
	before := testutil.ToFloat64(OrdersPlacedTotal.WithLabelValues(ResultOutOfStock))
	OrdersPlacedTotal.WithLabelValues(ResultOutOfStock).Inc()
	after := testutil.ToFloat64(OrdersPlacedTotal.WithLabelValues(ResultOutOfStock))
	if after-before != 1 {
		t.Fatalf("expected counter to grow by one, got %v -> %v", before, after)
	}
}
