package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 下单结果标签
const (
	ResultSuccess             = "success"
	ResultOutOfStock          = "out_of_stock"
	ResultInsufficientBalance = "insufficient_balance"
	ResultPriceMismatch       = "price_mismatch"
	ResultInvalid             = "invalid"
	ResultDuplicate           = "duplicate"
	ResultError               = "error"
)

var (
	OrdersPlacedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_orders_placed_total",
		Help: "Order placement attempts by result",
	}, []string{"result"})

	OrderStageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_order_stage_latency_seconds",
		Help:    "Latency of each order placement stage",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	CredentialsClaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_credentials_claimed_total",
		Help: "Credentials moved from available to reserved",
	})

	CredentialClaimConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_credential_claim_conflicts_total",
		Help: "Claim attempts that lost a race and were retried",
	})

	CredentialsReleasedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_credentials_released_total",
		Help: "Reserved credentials returned to the pool",
	}, []string{"reason"})

	ChargesAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_charges_applied_total",
		Help: "External charges applied to balances by result",
	}, []string{"result"})

	LedgerEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_ledger_entries_total",
		Help: "Balance ledger entries written by type",
	}, []string{"type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

// 凭证释放原因标签
const (
	ReleaseReasonRollback = "rollback"
	ReleaseReasonManual   = "manual"
	ReleaseReasonSweep    = "sweep"
)
