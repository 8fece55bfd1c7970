// Package openapi embeds the HTTP API description.
package openapi

import (
	_ "embed"
	"sync"

	"sigs.k8s.io/yaml"
)

//go:embed spec.yaml
var specYAML []byte

var (
	jsonOnce sync.Once
	jsonDoc  []byte
	jsonErr  error
)

// JSON returns the document converted to JSON. The conversion runs once per
// process.
func JSON() ([]byte, error) {
	jsonOnce.Do(func() {
		jsonDoc, jsonErr = yaml.YAMLToJSON(specYAML)
	})
	return jsonDoc, jsonErr
}

// YAML returns the raw document.
func YAML() []byte {
	return specYAML
}
