package refactor

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mamaar/goextract/pkg/types"
)

// tracerName is the OTel tracer shared by every engine phase.
const tracerName = "goextract.refactor"

var (
	// refactoringsTotal counts finished transactions.
	//
	// Labels:
	//   - refactoring: "extract_struct", "extract_interface"
	//   - outcome: "ok", "warning", "error", "fatal", "cancelled", "failed"
	refactoringsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "goextract",
			Subsystem: "engine",
			Name:      "refactorings_total",
			Help:      "Refactoring transactions by outcome.",
		},
		[]string{"refactoring", "outcome"},
	)

	refactoringDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "goextract",
			Subsystem: "engine",
			Name:      "refactoring_duration_seconds",
			Help:      "Duration of refactoring transactions in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"refactoring"},
	)

	// editsTotal counts edits of built changes per category.
	editsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "goextract",
			Subsystem: "engine",
			Name:      "edits_total",
			Help:      "Edits produced by refactorings, by category.",
		},
		[]string{"category"},
	)
)

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// recordOutcome closes the transaction span and updates the metrics.
func recordOutcome(span trace.Span, refactoring string, start time.Time, status *types.RefactoringStatus, err error) {
	outcome := outcomeOf(status, err)
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if status != nil && status.HasFatal() {
		span.SetStatus(codes.Error, "fatal precondition")
	}
	refactoringsTotal.WithLabelValues(refactoring, outcome).Inc()
	refactoringDuration.WithLabelValues(refactoring).Observe(time.Since(start).Seconds())
}

func outcomeOf(status *types.RefactoringStatus, err error) string {
	switch {
	case err != nil:
		return "failed"
	case status.Cancelled():
		return "cancelled"
	}
	switch status.Severity() {
	case types.SeverityFatal:
		return "fatal"
	case types.SeverityError:
		return "error"
	case types.SeverityWarning:
		return "warning"
	}
	return "ok"
}
