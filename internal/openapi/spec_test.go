package openapi

import (
	"encoding/json"
	"testing"
)

func TestJSONDocument(t *testing.T) {
	t.Parallel()

	data, err := JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var doc struct {
		OpenAPI string                     `json:"openapi"`
		Paths   map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.OpenAPI == "" {
		t.Fatalf("openapi version missing")
	}
	for _, path := range []string{"/advisor/stream", "/jobs/{id}/location/stream", "/notifications/stream"} {
		if _, ok := doc.Paths[path]; !ok {
			t.Fatalf("path %s not documented", path)
		}
	}
	if len(YAML()) == 0 {
		t.Fatalf("raw document empty")
	}
}
