package plan

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/felixgeelhaar/releasekit/internal/fsutil"
)

// Load reads a ReleasePlan from a JSON file
func Load(path string) (*ReleasePlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	return Decode(data)
}

// Decode parses and structurally validates a serialized plan.
func Decode(data []byte) (*ReleasePlan, error) {
	var p ReleasePlan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("validate plan: %w", err)
	}
	return &p, nil
}

// Save writes a ReleasePlan to a JSON file
func Save(p *ReleasePlan, path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write plan file: %w", err)
	}
	return nil
}
