package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sbgisen/resource-broker/pkg/clock"
	"github.com/sbgisen/resource-broker/pkg/policy"
	"github.com/sbgisen/resource-broker/pkg/resource"
)

// LeaseEngine orchestrates the four client-visible operations over a
// resource.Store. It holds no lease state of its own — every write is a
// single resource.Store.UpdateLease call carrying its own preconditions, so
// concurrent callers for the same key race at the store, not in the engine
// (spec §5, §9).
type LeaseEngine struct {
	store  resource.Store
	clock  clock.Clock
	logger *slog.Logger
}

// New builds a LeaseEngine over store, reading time from clk.
func New(store resource.Store, clk clock.Clock, logger *slog.Logger) *LeaseEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeaseEngine{store: store, clock: clk, logger: logger.With("component", "lease_engine")}
}

// Registration implements spec §4.4.1.
func (e *LeaseEngine) Registration(ctx context.Context, req RegistrationRequest) RegistrationResponse {
	key := resource.Key{BldgID: req.BldgID, ResourceID: req.ResourceID}

	current, err := e.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return RegistrationResponse{Result: ResultOthers, RequestID: req.RequestID}
		}
		e.logger.ErrorContext(ctx, "registration: store get failed", "bldg_id", req.BldgID, "resource_id", req.ResourceID, "error", err)
		return RegistrationResponse{Result: ResultOthers, RequestID: req.RequestID}
	}

	if current.Leased() {
		return RegistrationResponse{Result: ResultFailure, RequestID: req.RequestID}
	}

	exp := policy.ComputeExpiration(req.TimestampMs, current.DefaultTimeoutMs, current.MaxTimeoutMs, req.TimeoutMs, e.clock.Now())
	if exp == policy.InvalidExpiration {
		e.logger.InfoContext(ctx, "registration: invalid timeout or stale timestamp",
			"bldg_id", req.BldgID, "resource_id", req.ResourceID, "robot_id", req.RobotID)
		return RegistrationResponse{Result: ResultOthers, RequestID: req.RequestID}
	}

	err = e.store.UpdateLease(ctx, key,
		resource.Preconditions{RequireUnleased: true},
		resource.Assignments{LockedBy: req.RobotID, LockedTimeMs: req.TimestampMs, ExpirationTimeMs: exp},
	)
	switch {
	case err == nil:
		return RegistrationResponse{
			Result:            ResultSuccess,
			MaxExpirationTime: resource.MaxExpiration(req.TimestampMs, current.MaxTimeoutMs),
			ExpirationTime:    exp,
			RequestID:         req.RequestID,
		}
	case errors.Is(err, resource.ErrPreconditionFailed):
		return RegistrationResponse{Result: ResultFailure, RequestID: req.RequestID}
	case errors.Is(err, resource.ErrNotFound):
		return RegistrationResponse{Result: ResultOthers, RequestID: req.RequestID}
	default:
		e.logger.ErrorContext(ctx, "registration: store update failed", "bldg_id", req.BldgID, "resource_id", req.ResourceID, "error", err)
		return RegistrationResponse{Result: ResultOthers, RequestID: req.RequestID}
	}
}

// Release implements spec §4.4.2.
func (e *LeaseEngine) Release(ctx context.Context, req ReleaseRequest) ReleaseResponse {
	key := resource.Key{BldgID: req.BldgID, ResourceID: req.ResourceID}

	current, err := e.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return ReleaseResponse{Result: ResultFailure, ResourceID: req.ResourceID, RequestID: req.RequestID}
		}
		e.logger.ErrorContext(ctx, "release: store get failed", "bldg_id", req.BldgID, "resource_id", req.ResourceID, "error", err)
		return ReleaseResponse{Result: ResultOthers, ResourceID: req.ResourceID, RequestID: req.RequestID}
	}

	// The broker intentionally does not distinguish "unleased" from
	// "leased by someone else" — both are FAILURE (spec §4.4.2).
	if current.LockedBy != req.RobotID {
		return ReleaseResponse{Result: ResultFailure, ResourceID: req.ResourceID, RequestID: req.RequestID}
	}

	err = e.store.UpdateLease(ctx, key,
		resource.Preconditions{RequireLockedBy: req.RobotID},
		resource.Unleased(),
	)
	switch {
	case err == nil:
		return ReleaseResponse{Result: ResultSuccess, ResourceID: req.ResourceID, RequestID: req.RequestID}
	case errors.Is(err, resource.ErrPreconditionFailed), errors.Is(err, resource.ErrNotFound):
		return ReleaseResponse{Result: ResultFailure, ResourceID: req.ResourceID, RequestID: req.RequestID}
	default:
		e.logger.ErrorContext(ctx, "release: store update failed", "bldg_id", req.BldgID, "resource_id", req.ResourceID, "error", err)
		return ReleaseResponse{Result: ResultOthers, ResourceID: req.ResourceID, RequestID: req.RequestID}
	}
}

// RequestResourceStatus implements spec §4.4.3. It is a pure read: no store
// mutation happens here.
func (e *LeaseEngine) RequestResourceStatus(ctx context.Context, req StatusRequest) StatusResponse {
	key := resource.Key{BldgID: req.BldgID, ResourceID: req.ResourceID}

	current, err := e.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return StatusResponse{Result: ResultFailure, ResourceID: req.ResourceID, ResourceState: ResourceStateUnknown, RequestID: req.RequestID}
		}
		e.logger.ErrorContext(ctx, "request_resource_status: store get failed", "bldg_id", req.BldgID, "resource_id", req.ResourceID, "error", err)
		return StatusResponse{Result: ResultOthers, ResourceID: req.ResourceID, ResourceState: ResourceStateUnknown, RequestID: req.RequestID}
	}

	if !current.Leased() {
		return StatusResponse{
			Result:        ResultSuccess,
			ResourceID:    req.ResourceID,
			ResourceState: ResourceStateAvailable,
			RobotID:       "",
			RequestID:     req.RequestID,
		}
	}
	return StatusResponse{
		Result:            ResultSuccess,
		ResourceID:        req.ResourceID,
		ResourceState:     ResourceStateOccupied,
		RobotID:           current.LockedBy,
		ExpirationTime:    current.ExpirationTimeMs,
		MaxExpirationTime: resource.MaxExpiration(current.LockedTimeMs, current.MaxTimeoutMs),
		RequestID:         req.RequestID,
	}
}

// RobotStatus implements spec §4.4.4. Only RobotStateCancel mutates state;
// every other state is accepted and returns SUCCESS as a no-op, reserved for
// forward wire compatibility (spec §9) — implementers MUST NOT infer further
// behavior for ENTERING/EXITED/USING.
func (e *LeaseEngine) RobotStatus(ctx context.Context, req RobotStatusRequest) RobotStatusResponse {
	if req.State != RobotStateCancel {
		return RobotStatusResponse{Result: ResultSuccess, RequestID: req.RequestID}
	}

	// The store contract (§4.2) has no "find by holder" query; list_all is
	// the debug-enumeration operation the spec already grants us, so CANCEL
	// reuses it to locate the unique row this robot currently holds.
	all, err := e.store.ListAll(ctx)
	if err != nil {
		e.logger.ErrorContext(ctx, "robot_status: store list failed", "robot_id", req.RobotID, "error", err)
		return RobotStatusResponse{Result: ResultOthers, RequestID: req.RequestID}
	}

	var held *resource.Record
	for i := range all {
		if all[i].LockedBy == req.RobotID {
			held = &all[i]
			break
		}
	}
	if held == nil {
		return RobotStatusResponse{Result: ResultFailure, RequestID: req.RequestID}
	}

	key := resource.Key{BldgID: held.BldgID, ResourceID: held.ResourceID}
	err = e.store.UpdateLease(ctx, key, resource.Preconditions{RequireLockedBy: req.RobotID}, resource.Unleased())
	switch {
	case err == nil:
		e.logger.InfoContext(ctx, "robot_status: cancel released lease", "robot_id", req.RobotID, "resource_id", held.ResourceID)
		return RobotStatusResponse{Result: ResultSuccess, RequestID: req.RequestID}
	case errors.Is(err, resource.ErrPreconditionFailed), errors.Is(err, resource.ErrNotFound):
		// Raced with a release/expiry between the list and the update.
		return RobotStatusResponse{Result: ResultFailure, RequestID: req.RequestID}
	default:
		e.logger.ErrorContext(ctx, "robot_status: store update failed", "robot_id", req.RobotID, "error", err)
		return RobotStatusResponse{Result: ResultOthers, RequestID: req.RequestID}
	}
}

// ListAll exposes the debug enumeration for /api/all_data.
func (e *LeaseEngine) ListAll(ctx context.Context) ([]resource.Record, error) {
	records, err := e.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list all resources: %w", err)
	}
	return records, nil
}
