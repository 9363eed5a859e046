package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed routes.yml
var defaultRoutes []byte

// DefaultRoutes returns the built-in Keio route definitions.
func DefaultRoutes() (*RouteFile, error) {
	return Parse(defaultRoutes)
}

// LoadRoutes reads and validates a routes file. An empty path selects the
// built-in definitions.
func LoadRoutes(path string) (*RouteFile, error) {
	if path == "" {
		return DefaultRoutes()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a routes document.
func Parse(data []byte) (*RouteFile, error) {
	var f RouteFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse routes: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("invalid routes: %w", err)
	}
	if err := f.checkReferences(); err != nil {
		return nil, fmt.Errorf("invalid routes: %w", err)
	}
	return &f, nil
}

func (f *RouteFile) checkReferences() error {
	seen := make(map[string]bool, len(f.Routes))
	for _, r := range f.Routes {
		if seen[r.Key] {
			return fmt.Errorf("duplicate route key %q", r.Key)
		}
		seen[r.Key] = true
	}

	through := make(map[string]bool, len(f.ThroughRoutes))
	for _, t := range f.ThroughRoutes {
		if through[t.Key] {
			return fmt.Errorf("duplicate through route key %q", t.Key)
		}
		through[t.Key] = true
		if !seen[t.Upstream] {
			return fmt.Errorf("through route %q: unknown upstream route %q", t.Key, t.Upstream)
		}
		if t.Downstream != "" && !seen[t.Downstream] {
			return fmt.Errorf("through route %q: unknown downstream route %q", t.Key, t.Downstream)
		}
	}
	return nil
}
