package schema

import (
	"errors"
	"testing"
)

const recipeAddedSchema = `{
	"type": "object",
	"properties": {
		"recipeId": {"type": "string"},
		"name": {"type": "string"},
		"glutenFree": {"type": "boolean"}
	},
	"required": ["recipeId", "name"],
	"additionalProperties": false
}`

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	registry := NewRegistry()
	if err := registry.Register("cakeshop.events.recipe-added", []byte(recipeAddedSchema)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return registry
}

func TestValidate_Pass(t *testing.T) {
	registry := newTestRegistry(t)

	payload := []byte(`{"recipeId": "163af847-effb-46a9-96bc-32cefbe13d7c", "name": "Chocolate Cake", "glutenFree": false}`)
	if err := registry.Validate("cakeshop.events.recipe-added", payload); err != nil {
		t.Errorf("expected payload to pass, got: %v", err)
	}
}

func TestValidate_Fail(t *testing.T) {
	registry := newTestRegistry(t)

	payload := []byte(`{"dodgyProperty": "this event is dodgy"}`)
	err := registry.Validate("cakeshop.events.recipe-added", payload)
	if err == nil {
		t.Fatal("expected validation failure")
	}

	var failure *ValidationFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *ValidationFailure, got %T", err)
	}
	if failure.EventName != "cakeshop.events.recipe-added" {
		t.Errorf("unexpected event name: %s", failure.EventName)
	}
	if len(failure.Reasons) == 0 {
		t.Error("expected at least one reason")
	}
}

func TestValidate_MissingSchemaFails(t *testing.T) {
	registry := newTestRegistry(t)

	err := registry.Validate("cakeshop.events.unknown", []byte(`{}`))
	var failure *ValidationFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *ValidationFailure for missing schema, got %v", err)
	}
}

func TestValidate_MalformedPayloadFails(t *testing.T) {
	registry := newTestRegistry(t)

	err := registry.Validate("cakeshop.events.recipe-added", []byte(`{not json`))
	var failure *ValidationFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *ValidationFailure for malformed payload, got %v", err)
	}
}
