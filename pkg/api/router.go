// Package api implements the HTTP surface of the lease broker: five JSON
// endpoints (spec §6.1), envelope discriminator and JSON-schema validation
// (spec §6.4, §7), and per-IP rate limiting ahead of the engine.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/sbgisen/resource-broker/pkg/clock"
	"github.com/sbgisen/resource-broker/pkg/engine"
)

// Tracer is the subset of pkg/observability.Provider the router records
// against. Kept as a small interface, like expirer.Metrics, so api doesn't
// hard-depend on the OTel wiring. NewRouter substitutes noopTracer when it
// is given a nil Tracer.
type Tracer interface {
	StartSpan(ctx context.Context, op string) (context.Context, trace.Span)
	RecordRegistration(ctx context.Context, success bool)
	RecordRelease(ctx context.Context, success bool)
}

type noopTracer struct{}

func (noopTracer) StartSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}
func (noopTracer) RecordRegistration(context.Context, bool) {}
func (noopTracer) RecordRelease(context.Context, bool)      {}

// Router wires the lease engine to net/http.
type Router struct {
	engine  *engine.LeaseEngine
	clock   clock.Clock
	logger  *slog.Logger
	tracer  Tracer
	schemas *schemaSet
}

// NewRouter builds a Router. tracer may be nil, in which case spans and
// metrics are no-ops.
func NewRouter(eng *engine.LeaseEngine, clk clock.Clock, logger *slog.Logger, tracer Tracer) (*Router, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = noopTracer{}
	}
	schemas, err := newSchemaSet()
	if err != nil {
		return nil, fmt.Errorf("build request schemas: %w", err)
	}
	return &Router{
		engine:  eng,
		clock:   clk,
		logger:  logger.With("component", "api"),
		tracer:  tracer,
		schemas: schemas,
	}, nil
}

// Handler returns the full HTTP handler, with rate limiting applied ahead of
// every route.
func (rt *Router) Handler(limiter *GlobalRateLimiter) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/registration", rt.handleRegistration)
	mux.HandleFunc("POST /api/release", rt.handleRelease)
	mux.HandleFunc("POST /api/request_resource_status", rt.handleResourceStatus)
	mux.HandleFunc("POST /api/robot_status", rt.handleRobotStatus)
	mux.HandleFunc("GET /api/all_data", rt.handleAllData)

	if limiter == nil {
		return mux
	}
	return limiter.Middleware(mux)
}
