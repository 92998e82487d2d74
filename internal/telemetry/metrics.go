package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ServerMetrics holds metric instruments for HTTP server telemetry.
// Initialize once at startup and reuse for the process lifetime.
type ServerMetrics struct {
	RequestCounter  metric.Int64Counter     // total HTTP requests
	RequestDuration metric.Float64Histogram // HTTP request latency
	ErrorCounter    metric.Int64Counter     // total 5xx responses
}

// NewServerMetrics creates pre-configured HTTP instruments.
func NewServerMetrics() (*ServerMetrics, error) {
	meter := otel.Meter("msapi/http")

	requestCounter, err := meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"http.server.error.count",
		metric.WithDescription("Total number of HTTP server errors (5xx)"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &ServerMetrics{
		RequestCounter:  requestCounter,
		RequestDuration: requestDuration,
		ErrorCounter:    errorCounter,
	}, nil
}

// RecordRequest records one HTTP request with method, route, status and
// duration. Called from middleware at the end of every request.
func (m *ServerMetrics) RecordRequest(ctx context.Context, method, route, status string, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.String("http.status_code", status),
	)

	m.RequestCounter.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, durationMs, attrs)

	if len(status) > 0 && status[0] == '5' {
		m.ErrorCounter.Add(ctx, 1, attrs)
	}
}

// AuthMetrics holds metric instruments for authentication operations.
type AuthMetrics struct {
	AuthAttempts metric.Int64Counter
	AuthFailures metric.Int64Counter
}

// NewAuthMetrics creates pre-configured authentication instruments.
func NewAuthMetrics() (*AuthMetrics, error) {
	meter := otel.Meter("msapi/auth")

	attempts, err := meter.Int64Counter(
		"auth.attempt.count",
		metric.WithDescription("Total number of authentication attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"auth.failure.count",
		metric.WithDescription("Total number of failed authentication attempts"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{AuthAttempts: attempts, AuthFailures: failures}, nil
}

// RecordAuth records one authentication attempt.
// method is the credential kind: session, bearer or client_credentials.
func (a *AuthMetrics) RecordAuth(ctx context.Context, method string, success bool) {
	attrs := metric.WithAttributes(
		attribute.String("auth.method", method),
		attribute.Bool("auth.success", success),
	)
	a.AuthAttempts.Add(ctx, 1, attrs)
	if !success {
		a.AuthFailures.Add(ctx, 1, attrs)
	}
}
