// Package bootstrap loads the YAML-seeded resource catalog into a
// resource.Store at startup (spec §4.7, §6.2). It is the only code that
// knows about the on-disk configuration format; everything downstream of it
// deals exclusively in validated resource.Definition records.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sbgisen/resource-broker/pkg/resource"
)

// seedEntry mirrors one mapping in the YAML list (spec §6.2). Timeout fields
// are authored in seconds; Load converts them to milliseconds at ingest.
type seedEntry struct {
	BldgID          string `yaml:"bldg_id"`
	ResourceID      string `yaml:"resource_id"`
	ResourceType    int    `yaml:"resource_type"`
	MaxTimeoutSec   int64  `yaml:"max_timeout"`
	DefaultTimeoutSec int64 `yaml:"default_timeout"`
}

// Load reads the YAML file at path, validates every entry, and returns the
// resulting resource.Definition records. It rejects the whole file (returns
// an error, no partial result) if any single entry fails validation — spec
// §4.7(b): "on any validation failure, aborts startup".
func Load(path string) ([]resource.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file %s: %w", path, err)
	}

	var entries []seedEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	defs := make([]resource.Definition, 0, len(entries))
	for _, e := range entries {
		def, err := validate(e)
		if err != nil {
			return nil, fmt.Errorf("validate resource %q: %w", e.ResourceID, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func validate(e seedEntry) (resource.Definition, error) {
	if e.BldgID == "" {
		return resource.Definition{}, fmt.Errorf("bldg_id must not be empty")
	}
	if e.ResourceID == "" {
		return resource.Definition{}, fmt.Errorf("resource_id must not be empty")
	}
	rtype := resource.Type(e.ResourceType)
	if !rtype.Valid() {
		return resource.Definition{}, fmt.Errorf("resource_type %d is not a recognized resource type", e.ResourceType)
	}
	if e.MaxTimeoutSec <= 0 {
		return resource.Definition{}, fmt.Errorf("max_timeout must be positive, got %d", e.MaxTimeoutSec)
	}
	if e.DefaultTimeoutSec <= 0 {
		return resource.Definition{}, fmt.Errorf("default_timeout must be positive, got %d", e.DefaultTimeoutSec)
	}
	return resource.Definition{
		BldgID:           e.BldgID,
		ResourceID:       e.ResourceID,
		ResourceType:     rtype,
		MaxTimeoutMs:     e.MaxTimeoutSec * 1000,
		DefaultTimeoutMs: e.DefaultTimeoutSec * 1000,
	}, nil
}

// Run loads path and idempotently seeds every definition into store. Existing
// rows (and any lease they hold) are preserved — the store's Seed is
// ON CONFLICT DO NOTHING, never a blanket reset (spec §9's rejected
// before-first-request wipe).
func Run(ctx context.Context, path string, store resource.Store, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "bootstrap", "run_id", uuid.NewString())

	if path == "" {
		return fmt.Errorf("RESOURCE_YAML_PATH environment variable is not set")
	}

	defs, err := Load(path)
	if err != nil {
		return err
	}

	for _, def := range defs {
		if err := store.Seed(ctx, def); err != nil {
			return fmt.Errorf("seed resource %s/%s: %w", def.BldgID, def.ResourceID, err)
		}
	}
	logger.InfoContext(ctx, "bootstrap complete", "path", path, "resource_count", len(defs))
	return nil
}
