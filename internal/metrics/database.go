package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Database pool and statement metrics
var (
	// DBConnections reports pool connections by state
	DBConnections = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections",
			Help:      "Database pool connections by state (total, acquired, idle, max)",
		},
		[]string{"state"},
	)

	// DBEmptyAcquires counts acquires that had to wait for a connection
	DBEmptyAcquires = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_empty_acquires",
			Help:      "Cumulative pool acquires that waited because no idle connection was available",
		},
	)

	// DBQueryDuration records statement latency by verb
	DBQueryDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database statement duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	// DBErrors counts failed statements by verb and error class
	DBErrors = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_errors_total",
			Help:      "Total number of failed database statements",
		},
		[]string{"operation", "error_type"},
	)
)

// PoolCollector samples pgxpool statistics on an interval.
type PoolCollector struct {
	pool *pgxpool.Pool
}

func NewPoolCollector(pool *pgxpool.Pool) *PoolCollector {
	return &PoolCollector{pool: pool}
}

// Run samples until ctx is cancelled.
func (c *PoolCollector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-ctx.Done():
			return
		}
	}
}

func (c *PoolCollector) collect() {
	if c.pool == nil {
		return
	}
	stat := c.pool.Stat()
	DBConnections.WithLabelValues("total").Set(float64(stat.TotalConns()))
	DBConnections.WithLabelValues("acquired").Set(float64(stat.AcquiredConns()))
	DBConnections.WithLabelValues("idle").Set(float64(stat.IdleConns()))
	DBConnections.WithLabelValues("max").Set(float64(stat.MaxConns()))
	DBEmptyAcquires.Set(float64(stat.EmptyAcquireCount()))
}

// QueryTracer is a pgx.QueryTracer that feeds DBQueryDuration and DBErrors.
// Install it on the pool's ConnConfig so every repository statement is
// observed, including those run inside transactions.
type QueryTracer struct{}

var _ pgx.QueryTracer = QueryTracer{}

type queryStartKey struct{}

type queryStart struct {
	operation string
	at        time.Time
}

func (QueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{operation: statementVerb(data.SQL), at: time.Now()})
}

func (QueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	RecordQuery(start.operation, start.at, data.Err)
}

// RecordQuery observes one statement. pgx.ErrNoRows is not counted as an error.
func RecordQuery(operation string, start time.Time, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		return
	}
	DBErrors.WithLabelValues(operation, errorType(err)).Inc()
}

// statementVerb keeps the operation label bounded to the leading SQL keyword.
func statementVerb(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "other"
	}
	switch verb := strings.ToLower(fields[0]); verb {
	case "select", "insert", "update", "delete", "with":
		return verb
	default:
		return "other"
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgerrcode.IsIntegrityConstraintViolation(pgErr.Code):
			return "constraint"
		case pgerrcode.IsTransactionRollback(pgErr.Code):
			return "rollback"
		case pgerrcode.IsConnectionException(pgErr.Code):
			return "connection"
		}
	}
	return "query_error"
}
