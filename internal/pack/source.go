package pack

import (
	"encoding/json"
	"fmt"

	"sigs.k8s.io/yaml"
)

// NormalizeSource accepts a payload source document as JSON or YAML and
// returns JSON bytes ready for AddPayload. JSON input passes through
// untouched so authored documents keep their exact bytes.
func NormalizeSource(data []byte) ([]byte, error) {
	if json.Valid(data) {
		return data, nil
	}
	out, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("source is neither JSON nor YAML: %w", err)
	}
	return out, nil
}
