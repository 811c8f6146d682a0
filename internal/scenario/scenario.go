// Package scenario loads the declarative endpoint × parameter matrices the
// search and landing-page suites iterate over.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Case is one declared request with its expected outcome and references.
type Case struct {
	Name     string            `yaml:"name"`
	Path     string            `yaml:"path"`
	Method   string            `yaml:"method"`
	Query    map[string]string `yaml:"query"`
	Status   int               `yaml:"status"`
	Schema   string            `yaml:"schema"`
	Snapshot string            `yaml:"snapshot"`

	// VerifyFilters runs the slug filter decoder over the results.
	VerifyFilters bool `yaml:"verify_filters"`
}

// Suite is a named group of cases sharing an area tag.
type Suite struct {
	Area  string `yaml:"area"`
	Cases []Case `yaml:"cases"`
}

// Load reads a suite file. Defaults: GET, expected status 200.
func Load(path string) (Suite, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Suite{}, fmt.Errorf("loading scenario suite %s: %w", path, err)
	}
	var s Suite
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Suite{}, fmt.Errorf("scenario suite %s is not valid YAML: %w", path, err)
	}
	for i := range s.Cases {
		if s.Cases[i].Method == "" {
			s.Cases[i].Method = "GET"
		}
		if s.Cases[i].Status == 0 {
			s.Cases[i].Status = 200
		}
		if s.Cases[i].Name == "" {
			s.Cases[i].Name = s.Cases[i].Path
		}
	}
	return s, nil
}
