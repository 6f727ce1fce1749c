// Package validator provides JSON schema validation for workflow graphs,
// workflow documents and node metadata catalogs.
package validator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator validates documents against the embedded schemas.
type Validator struct {
	graphSchema    *jsonschema.Schema
	workflowSchema *jsonschema.Schema
	catalogSchema  *jsonschema.Schema
}

// ValidationError represents a validation failure.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationResult holds the result of a validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Err returns nil for a valid result, or an error summarising the failures.
func (r *ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		path := e.Path
		if path == "" {
			path = "$"
		}
		msgs = append(msgs, path+": "+e.Message)
	}
	return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
}

// New creates a new validator with embedded schemas.
func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	resources := map[string]string{
		"graph.json":    graphSchemaJSON,
		"workflow.json": workflowSchemaJSON,
		"catalog.json":  catalogSchemaJSON,
	}
	for name, schema := range resources {
		if err := compiler.AddResource(name, strings.NewReader(schema)); err != nil {
			return nil, fmt.Errorf("add %s schema: %w", name, err)
		}
	}

	graphSchema, err := compiler.Compile("graph.json")
	if err != nil {
		return nil, fmt.Errorf("compile graph schema: %w", err)
	}
	workflowSchema, err := compiler.Compile("workflow.json")
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}
	catalogSchema, err := compiler.Compile("catalog.json")
	if err != nil {
		return nil, fmt.Errorf("compile catalog schema: %w", err)
	}

	return &Validator{
		graphSchema:    graphSchema,
		workflowSchema: workflowSchema,
		catalogSchema:  catalogSchema,
	}, nil
}

// ValidateGraphJSON validates a JSON-encoded graph document.
func (v *Validator) ValidateGraphJSON(data []byte) *ValidationResult {
	return v.validateJSON(v.graphSchema, data)
}

// ValidateWorkflowJSON validates a JSON-encoded workflow document, such as
// one produced by a workflow export.
func (v *Validator) ValidateWorkflowJSON(data []byte) *ValidationResult {
	return v.validateJSON(v.workflowSchema, data)
}

// ValidateCatalogJSON validates a JSON-encoded node metadata catalog.
func (v *Validator) ValidateCatalogJSON(data []byte) *ValidationResult {
	return v.validateJSON(v.catalogSchema, data)
}

// ValidateCatalog implements registry.CatalogValidator.
func (v *Validator) ValidateCatalog(data []byte) error {
	return v.ValidateCatalogJSON(data).Err()
}

// ValidateValue validates an already-encoded value against the graph schema
// by round-tripping it through JSON.
func (v *Validator) ValidateValue(value any) *ValidationResult {
	data, err := json.Marshal(value)
	if err != nil {
		return invalid(fmt.Sprintf("unencodable value: %v", err))
	}
	return v.ValidateGraphJSON(data)
}

func (v *Validator) validateJSON(schema *jsonschema.Schema, data []byte) *ValidationResult {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return invalid(fmt.Sprintf("invalid JSON: %v", err))
	}
	return v.validate(schema, doc)
}

// validate runs schema validation and converts errors.
func (v *Validator) validate(schema *jsonschema.Schema, data any) *ValidationResult {
	err := schema.Validate(data)
	if err == nil {
		return &ValidationResult{Valid: true}
	}

	if verr, ok := err.(*jsonschema.ValidationError); ok {
		return &ValidationResult{Valid: false, Errors: extractErrors(verr)}
	}
	return invalid(err.Error())
}

func invalid(msg string) *ValidationResult {
	return &ValidationResult{
		Valid:  false,
		Errors: []ValidationError{{Path: "$", Message: msg}},
	}
}

// extractErrors flattens the leaf causes of a validation error.
func extractErrors(verr *jsonschema.ValidationError) []ValidationError {
	if len(verr.Causes) == 0 {
		return []ValidationError{{Path: verr.InstanceLocation, Message: verr.Message}}
	}

	var errs []ValidationError
	for _, cause := range verr.Causes {
		errs = append(errs, extractErrors(cause)...)
	}
	return errs
}
