//go:build property
// +build property

package engine_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sbgisen/resource-broker/pkg/clock"
	"github.com/sbgisen/resource-broker/pkg/engine"
	"github.com/sbgisen/resource-broker/pkg/resource"
)

func newPropertyEngine(t *testing.T) *engine.LeaseEngine {
	t.Helper()
	store, err := resource.OpenSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Seed(context.Background(), resource.Definition{
		BldgID: "bldg1", ResourceID: "dock-1", ResourceType: resource.TypeAllowOne,
		MaxTimeoutMs: 1_000_000, DefaultTimeoutMs: 10000,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return engine.New(store, clock.NewVirtual(1000), nil)
}

// TestMutualExclusion verifies P1: at most one robot ever holds a resource at
// a time, regardless of registration order.
func TestMutualExclusion(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("only the first registration against an unleased resource succeeds", prop.ForAll(
		func(robotA, robotB string) bool {
			if robotA == robotB {
				return true
			}
			e := newPropertyEngine(t)
			ctx := context.Background()

			r1 := e.Registration(ctx, engine.RegistrationRequest{
				BldgID: "bldg1", ResourceID: "dock-1", RobotID: robotA,
				TimeoutMs: 5000, RequestID: "r1", TimestampMs: 1000,
			})
			r2 := e.Registration(ctx, engine.RegistrationRequest{
				BldgID: "bldg1", ResourceID: "dock-1", RobotID: robotB,
				TimeoutMs: 5000, RequestID: "r2", TimestampMs: 1000,
			})

			return r1.Result == engine.ResultSuccess && r2.Result == engine.ResultFailure
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestIdempotentReleaseOfWrongHolder verifies P3: releasing with any robot_id
// other than the current holder is always FAILURE, never a mutation.
func TestIdempotentReleaseOfWrongHolder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("release by a non-holder never succeeds and never mutates state", prop.ForAll(
		func(holder, impostor string) bool {
			if holder == impostor {
				return true
			}
			e := newPropertyEngine(t)
			ctx := context.Background()

			e.Registration(ctx, engine.RegistrationRequest{
				BldgID: "bldg1", ResourceID: "dock-1", RobotID: holder,
				TimeoutMs: 5000, RequestID: "r1", TimestampMs: 1000,
			})

			before := e.RequestResourceStatus(ctx, engine.StatusRequest{BldgID: "bldg1", ResourceID: "dock-1", RequestID: "s1"})
			release := e.Release(ctx, engine.ReleaseRequest{BldgID: "bldg1", ResourceID: "dock-1", RobotID: impostor, RequestID: "r2"})
			after := e.RequestResourceStatus(ctx, engine.StatusRequest{BldgID: "bldg1", ResourceID: "dock-1", RequestID: "s2"})

			return release.Result == engine.ResultFailure &&
				before.RobotID == after.RobotID &&
				before.ExpirationTime == after.ExpirationTime
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestStatusReadPurity verifies P4: RequestResourceStatus never changes what
// a subsequent read observes.
func TestStatusReadPurity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("repeated status reads are stable", prop.ForAll(
		func(robotID string) bool {
			e := newPropertyEngine(t)
			ctx := context.Background()
			e.Registration(ctx, engine.RegistrationRequest{
				BldgID: "bldg1", ResourceID: "dock-1", RobotID: robotID,
				TimeoutMs: 5000, RequestID: "r1", TimestampMs: 1000,
			})

			first := e.RequestResourceStatus(ctx, engine.StatusRequest{BldgID: "bldg1", ResourceID: "dock-1", RequestID: "s1"})
			second := e.RequestResourceStatus(ctx, engine.StatusRequest{BldgID: "bldg1", ResourceID: "dock-1", RequestID: "s2"})

			return first.ResourceState == second.ResourceState &&
				first.RobotID == second.RobotID &&
				first.ExpirationTime == second.ExpirationTime
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
