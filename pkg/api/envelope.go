package api

import "github.com/sbgisen/resource-broker/pkg/engine"

// The wire envelopes below are the JSON shape of spec §6.1. Field names are
// exactly the spec's; conversion to/from pkg/engine's request/response types
// happens in handlers.go.

type registrationRequest struct {
	API        string `json:"api"`
	BldgID     string `json:"bldg_id"`
	ResourceID string `json:"resource_id"`
	RobotID    string `json:"robot_id"`
	TimeoutMs  int64  `json:"timeout"`
	RequestID  string `json:"request_id"`
	TimestampMs int64 `json:"timestamp"`
}

type registrationResponse struct {
	API               string `json:"api"`
	Result            int    `json:"result"`
	MaxExpirationTime int64  `json:"max_expiration_time"`
	ExpirationTime    int64  `json:"expiration_time"`
	RequestID         string `json:"request_id"`
	Timestamp         int64  `json:"timestamp"`
}

type releaseRequest struct {
	API        string `json:"api"`
	BldgID     string `json:"bldg_id"`
	ResourceID string `json:"resource_id"`
	RobotID    string `json:"robot_id"`
	RequestID  string `json:"request_id"`
	TimestampMs int64 `json:"timestamp"`
}

type releaseResponse struct {
	API        string `json:"api"`
	Result     int    `json:"result"`
	ResourceID string `json:"resource_id"`
	RequestID  string `json:"request_id"`
	Timestamp  int64  `json:"timestamp"`
}

type resourceStatusRequest struct {
	API        string `json:"api"`
	BldgID     string `json:"bldg_id"`
	ResourceID string `json:"resource_id"`
	RequestID  string `json:"request_id"`
	TimestampMs int64 `json:"timestamp"`
}

type resourceStatusResponse struct {
	API               string `json:"api"`
	Result            int    `json:"result"`
	ResourceID        string `json:"resource_id"`
	ResourceState     int    `json:"resource_state"`
	RobotID           string `json:"robot_id"`
	MaxExpirationTime int64  `json:"max_expiration_time"`
	ExpirationTime    int64  `json:"expiration_time"`
	RequestID         string `json:"request_id"`
	Timestamp         int64  `json:"timestamp"`
}

type robotStatusRequest struct {
	API         string `json:"api"`
	RobotID     string `json:"robot_id"`
	ResourceID  string `json:"resource_id"`
	State       int    `json:"state"`
	StateDetail *int   `json:"state_detail,omitempty"`
	RequestID   string `json:"request_id"`
	TimestampMs int64  `json:"timestamp"`
}

type robotStatusResponse struct {
	API       string `json:"api"`
	Result    int    `json:"result"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
}

type allDataEntry struct {
	BldgID           string `json:"bldg_id"`
	ResourceID       string `json:"resource_id"`
	ResourceType     int    `json:"resource_type"`
	MaxTimeout       int64  `json:"max_timeout"`
	DefaultTimeout   int64  `json:"default_timeout"`
	LockedBy         string `json:"locked_by"`
	LockedTime       int64  `json:"locked_time"`
	ExpirationTime   int64  `json:"expiration_time"`
}

func toRegistrationRequest(r registrationRequest) engine.RegistrationRequest {
	return engine.RegistrationRequest{
		BldgID:      r.BldgID,
		ResourceID:  r.ResourceID,
		RobotID:     r.RobotID,
		TimeoutMs:   r.TimeoutMs,
		RequestID:   r.RequestID,
		TimestampMs: r.TimestampMs,
	}
}

func fromRegistrationResponse(api string, ts int64, resp engine.RegistrationResponse) registrationResponse {
	return registrationResponse{
		API:               api,
		Result:            int(resp.Result),
		MaxExpirationTime: resp.MaxExpirationTime,
		ExpirationTime:    resp.ExpirationTime,
		RequestID:         resp.RequestID,
		Timestamp:         ts,
	}
}

func toReleaseRequest(r releaseRequest) engine.ReleaseRequest {
	return engine.ReleaseRequest{
		BldgID:     r.BldgID,
		ResourceID: r.ResourceID,
		RobotID:    r.RobotID,
		RequestID:  r.RequestID,
	}
}

func fromReleaseResponse(api string, ts int64, resp engine.ReleaseResponse) releaseResponse {
	return releaseResponse{
		API:        api,
		Result:     int(resp.Result),
		ResourceID: resp.ResourceID,
		RequestID:  resp.RequestID,
		Timestamp:  ts,
	}
}

func toStatusRequest(r resourceStatusRequest) engine.StatusRequest {
	return engine.StatusRequest{
		BldgID:     r.BldgID,
		ResourceID: r.ResourceID,
		RequestID:  r.RequestID,
	}
}

func fromStatusResponse(api string, ts int64, resp engine.StatusResponse) resourceStatusResponse {
	return resourceStatusResponse{
		API:               api,
		Result:            int(resp.Result),
		ResourceID:        resp.ResourceID,
		ResourceState:     int(resp.ResourceState),
		RobotID:           resp.RobotID,
		MaxExpirationTime: resp.MaxExpirationTime,
		ExpirationTime:    resp.ExpirationTime,
		RequestID:         resp.RequestID,
		Timestamp:         ts,
	}
}

func toRobotStatusRequest(r robotStatusRequest) engine.RobotStatusRequest {
	req := engine.RobotStatusRequest{
		RobotID:    r.RobotID,
		ResourceID: r.ResourceID,
		State:      engine.RobotState(r.State),
		RequestID:  r.RequestID,
	}
	if r.StateDetail != nil {
		req.HasDetail = true
		req.StateDetail = engine.RobotStateDetail(*r.StateDetail)
	}
	return req
}

func fromRobotStatusResponse(api string, ts int64, resp engine.RobotStatusResponse) robotStatusResponse {
	return robotStatusResponse{
		API:       api,
		Result:    int(resp.Result),
		RequestID: resp.RequestID,
		Timestamp: ts,
	}
}
