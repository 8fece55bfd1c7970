package validator

import (
	"embed"
	"fmt"
	"sort"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// Kind names a payload schema.
type Kind string

const (
	KindLocation       Kind = "location"
	KindNotification   Kind = "notification"
	KindAdvisorRequest Kind = "advisor_request"
	KindInventoryItems Kind = "inventory_items"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Result reports the outcome of a validation.
type Result struct {
	Valid       bool      `json:"valid"`
	Errors      []string  `json:"errors,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Validator checks request payloads against the embedded JSON schemas.
type Validator struct {
	schemas map[Kind]*gojsonschema.Schema
}

// New compiles the embedded schemas.
func New() (*Validator, error) {
	v := &Validator{schemas: make(map[Kind]*gojsonschema.Schema)}
	for _, kind := range []Kind{KindLocation, KindNotification, KindAdvisorRequest, KindInventoryItems} {
		data, err := schemaFS.ReadFile("schemas/" + string(kind) + ".json")
		if err != nil {
			return nil, fmt.Errorf("failed to read %s schema: %w", kind, err)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s schema: %w", kind, err)
		}
		v.schemas[kind] = schema
	}
	return v, nil
}

// Validate checks payload against the schema of kind.
func (v *Validator) Validate(kind Kind, payload []byte) Result {
	result := Result{Valid: true, GeneratedAt: time.Now().UTC()}

	schema, ok := v.schemas[kind]
	if !ok {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("unknown payload kind %q", kind))
		return result
	}
	if len(payload) == 0 {
		result.Valid = false
		result.Errors = append(result.Errors, "payload missing")
		return result
	}

	schemaResult, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("schema validation error: %v", err))
		return result
	}
	if !schemaResult.Valid() {
		result.Valid = false
		for _, e := range schemaResult.Errors() {
			result.Errors = append(result.Errors, e.String())
		}
		sort.Strings(result.Errors)
	}
	return result
}
