// Package schema validates event payloads against the JSON schema registered
// for their event name.
package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Validator checks an event payload against the schema registered for its
// event name. A nil return means the payload passed; a *ValidationFailure
// describes a schema mismatch.
type Validator interface {
	Validate(eventName string, payload []byte) error
}

// ValidationFailure is a per-payload schema mismatch. It is recorded and
// aggregated by the batch validator, never surfaced as an infrastructure
// error.
type ValidationFailure struct {
	EventName string
	Reasons   []string
}

func (f *ValidationFailure) Error() string {
	return fmt.Sprintf("schema validation failed for '%s': %s", f.EventName, strings.Join(f.Reasons, "; "))
}

// Registry holds compiled JSON schemas keyed by event name.
type Registry struct {
	schemas map[string]*gojsonschema.Schema
}

// NewRegistry creates an empty schema registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*gojsonschema.Schema)}
}

// NewRegistryFromDir loads every *.json file in dir as the schema for the
// event named after the file (base name without extension).
func NewRegistryFromDir(dir string) (*Registry, error) {
	registry := NewRegistry()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read schema file %s: %w", entry.Name(), err)
		}
		eventName := strings.TrimSuffix(entry.Name(), ".json")
		if err := registry.Register(eventName, data); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// Register compiles and stores a schema for an event name.
func (r *Registry) Register(eventName string, schemaJSON []byte) error {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return fmt.Errorf("failed to compile schema for '%s': %w", eventName, err)
	}
	r.schemas[eventName] = compiled
	return nil
}

// Validate checks a payload against the schema for its event name. Events
// without a registered schema fail validation: a published event whose
// schema is unknown cannot be proven well-formed.
func (r *Registry) Validate(eventName string, payload []byte) error {
	compiled, ok := r.schemas[eventName]
	if !ok {
		return &ValidationFailure{
			EventName: eventName,
			Reasons:   []string{"no schema registered for event name"},
		}
	}

	res, err := compiled.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return &ValidationFailure{
			EventName: eventName,
			Reasons:   []string{fmt.Sprintf("payload is not valid JSON: %v", err)},
		}
	}
	if !res.Valid() {
		reasons := make([]string, 0, len(res.Errors()))
		for _, desc := range res.Errors() {
			reasons = append(reasons, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return &ValidationFailure{EventName: eventName, Reasons: reasons}
	}
	return nil
}
