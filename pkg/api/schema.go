package api

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaSet holds one compiled JSON Schema per endpoint, validated against
// the raw decoded body before it is mapped onto an engine request (spec
// §6.1, §7: "malformed envelopes never reach the engine").
type schemaSet struct {
	registration   *jsonschema.Schema
	release        *jsonschema.Schema
	resourceStatus *jsonschema.Schema
	robotStatus    *jsonschema.Schema
}

const (
	registrationSchemaID   = "https://resource-broker.local/schema/registration.json"
	releaseSchemaID        = "https://resource-broker.local/schema/release.json"
	resourceStatusSchemaID = "https://resource-broker.local/schema/resource_status.json"
	robotStatusSchemaID    = "https://resource-broker.local/schema/robot_status.json"
)

const registrationSchemaJSON = `{
  "type": "object",
  "required": ["api", "bldg_id", "resource_id", "robot_id", "request_id", "timestamp"],
  "properties": {
    "api": {"const": "Registration"},
    "bldg_id": {"type": "string", "minLength": 1},
    "resource_id": {"type": "string", "minLength": 1},
    "robot_id": {"type": "string", "minLength": 1},
    "timeout": {"type": "integer", "minimum": 0},
    "request_id": {"type": "string", "minLength": 1},
    "timestamp": {"type": "integer"}
  }
}`

const releaseSchemaJSON = `{
  "type": "object",
  "required": ["api", "bldg_id", "resource_id", "robot_id", "request_id"],
  "properties": {
    "api": {"const": "Release"},
    "bldg_id": {"type": "string", "minLength": 1},
    "resource_id": {"type": "string", "minLength": 1},
    "robot_id": {"type": "string", "minLength": 1},
    "request_id": {"type": "string", "minLength": 1}
  }
}`

const resourceStatusSchemaJSON = `{
  "type": "object",
  "required": ["api", "bldg_id", "resource_id", "request_id"],
  "properties": {
    "api": {"const": "RequestResourceStatus"},
    "bldg_id": {"type": "string", "minLength": 1},
    "resource_id": {"type": "string", "minLength": 1},
    "request_id": {"type": "string", "minLength": 1}
  }
}`

const robotStatusSchemaJSON = `{
  "type": "object",
  "required": ["api", "robot_id", "resource_id", "state", "request_id"],
  "properties": {
    "api": {"const": "RobotStatus"},
    "robot_id": {"type": "string", "minLength": 1},
    "resource_id": {"type": "string", "minLength": 1},
    "state": {"type": "integer"},
    "state_detail": {"type": "integer"},
    "request_id": {"type": "string", "minLength": 1}
  }
}`

func newSchemaSet() (*schemaSet, error) {
	compile := func(id, src string) (*jsonschema.Schema, error) {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(id, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("load schema %s: %w", id, err)
		}
		schema, err := c.Compile(id)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", id, err)
		}
		return schema, nil
	}

	reg, err := compile(registrationSchemaID, registrationSchemaJSON)
	if err != nil {
		return nil, err
	}
	rel, err := compile(releaseSchemaID, releaseSchemaJSON)
	if err != nil {
		return nil, err
	}
	status, err := compile(resourceStatusSchemaID, resourceStatusSchemaJSON)
	if err != nil {
		return nil, err
	}
	robot, err := compile(robotStatusSchemaID, robotStatusSchemaJSON)
	if err != nil {
		return nil, err
	}
	return &schemaSet{registration: reg, release: rel, resourceStatus: status, robotStatus: robot}, nil
}
