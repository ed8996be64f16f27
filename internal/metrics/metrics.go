// Package metrics exposes daemon counters on the control plane.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BytesTransferred counts payload bytes moved per direction.
	BytesTransferred = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transfer_manager",
		Name:      "bytes_transferred_total",
		Help:      "Payload bytes moved, by transfer type.",
	}, []string{"type"})

	// WorkOrdersCompleted counts work orders reaching a terminal status.
	WorkOrdersCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transfer_manager",
		Name:      "work_orders_completed_total",
		Help:      "Work orders reaching a terminal status, by type and status.",
	}, []string{"type", "status"})

	// WorkOrderRetries counts per-attempt retries inside the worker loops.
	WorkOrderRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transfer_manager",
		Name:      "work_order_retries_total",
		Help:      "Retried work-order attempts, by transfer type.",
	}, []string{"type"})

	// QueueWorkers tracks live workers per queue, including ramp-up and
	// back-off on the upload queue.
	QueueWorkers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "transfer_manager",
		Name:      "queue_workers",
		Help:      "Live workers per queue.",
	}, []string{"type"})
)

// Handler returns the /metrics handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
