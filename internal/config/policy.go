package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zaqqye/seb_proctoring/internal/proctoring"
)

// LoadPolicy reads the enforcement policy from path on top of the defaults.
// An empty path or a missing file yields the defaults unchanged. Map entries
// in the file are merged into the default maps.
func LoadPolicy(path string) (proctoring.Policy, error) {
	p := proctoring.DefaultPolicy()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read policy %s: %w", path, err)
	}
	if err := ParsePolicy(data, &p); err != nil {
		return p, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// ParsePolicy decodes YAML into p and validates the result.
func ParsePolicy(data []byte, p *proctoring.Policy) error {
	if err := yaml.Unmarshal(data, p); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	return p.Validate()
}

// DumpPolicy renders p as YAML.
func DumpPolicy(p proctoring.Policy) ([]byte, error) {
	return yaml.Marshal(p)
}
