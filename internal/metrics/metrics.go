package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all skill exchange metrics
const namespace = "skillexchange"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo is a gauge that exposes application version information as labels
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// Commitment lifecycle metrics

// CommitmentTransitions counts accepted state machine transitions
var CommitmentTransitions = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commitment_transitions_total",
		Help:      "Total number of commitment status transitions",
	},
	[]string{"from", "to"},
)

// CommitmentTransitionsRejected counts refused transitions by reason
var CommitmentTransitionsRejected = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commitment_transitions_rejected_total",
		Help:      "Total number of refused commitment transitions",
	},
	[]string{"reason"}, // reason: invalid_transition|forbidden|not_participant|conflict
)

// UsernameCacheLookups counts username cache lookups by result
var UsernameCacheLookups = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "username_cache_lookups_total",
		Help:      "Total number of username cache lookups",
	},
	[]string{"result"}, // result: hit|miss|error
)

// Init initializes the metrics registry and sets version information
func Init(version, commit, buildDate string) {
	// Register default Go metrics (memory, goroutines, GC, etc.)
	Registry.MustRegister(collectors.NewGoCollector())

	// Register process metrics (CPU, memory, file descriptors)
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
