package ontology

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLLoader reads a Graph serialised as
//
//	kpis:
//	  - {id: working_time, atomic: true}
//	machines:
//	  - {id: Laser Cutter, produces: [working_time]}
//
// JSON is valid YAML, so .json files go through the same loader.
type YAMLLoader struct{}

func (l *YAMLLoader) SupportedFormats() []string { return []string{"yaml", "yml", "json"} }

func (l *YAMLLoader) Load(ctx context.Context, path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading YAML: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes a Graph from YAML or JSON bytes.
func ParseYAML(data []byte) (*Graph, error) {
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decoding YAML: %w", err)
	}
	return &g, nil
}
