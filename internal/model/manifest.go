package model

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

// FormatVersion is the only container layout this package reads.
const FormatVersion = 1

// ManifestName is the container entry that describes the model.
const ManifestName = "manifest.yaml"

var validate = validator.New()

// Manifest describes a packaged model.
type Manifest struct {
	FormatVersion int      `yaml:"format_version" validate:"eq=1"`
	Name          string   `yaml:"name"`
	Backend       string   `yaml:"backend" validate:"required"`
	InputWidth    int      `yaml:"input_width" validate:"gt=0"`
	Outputs       []string `yaml:"outputs,omitempty"`
	Payload       string   `yaml:"payload,omitempty"`
}

// payloadName returns the container entry holding the model itself.
func (m Manifest) payloadName() string {
	if m.Payload != "" {
		return m.Payload
	}
	switch m.Backend {
	case BackendONNX:
		return "model.onnx"
	default:
		return "network.json"
	}
}

func parseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("manifest: %w", err)
	}
	if err := validate.Struct(m); err != nil {
		return Manifest{}, fmt.Errorf("manifest: %w", err)
	}
	if _, ok := backends[m.Backend]; !ok {
		return Manifest{}, fmt.Errorf("manifest: unsupported backend %q", m.Backend)
	}
	return m, nil
}
