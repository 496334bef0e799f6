package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/couchcryptid/sighting-density-etl/internal/domain"
)

// sourcesDocument is the shape of SOURCES_FILE.
type sourcesDocument struct {
	Sources []domain.SourceConfig `yaml:"sources"`
}

// Sources returns the cleaning configuration for each sighting source, keyed
// by name. Entries in SOURCES_FILE replace the built-in ufo and bigfoot
// definitions of the same name.
func (c *Config) Sources() (map[string]domain.SourceConfig, error) {
	sources := map[string]domain.SourceConfig{
		StepUFO:     domain.UFOSource(),
		StepBigfoot: domain.BigfootSource(),
	}
	if c.SourcesFile == "" {
		return sources, nil
	}

	overrides, err := LoadSources(c.SourcesFile)
	if err != nil {
		return nil, err
	}
	for _, s := range overrides {
		sources[s.Name] = s
	}
	return sources, nil
}

// LoadSources reads and validates source definitions from a YAML file.
func LoadSources(path string) ([]domain.SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var doc sourcesDocument
	if err := yaml.UnmarshalWithOptions(data, &doc, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("parse sources file %s: %w", path, err)
	}

	seen := make(map[string]bool, len(doc.Sources))
	for _, s := range doc.Sources {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("sources file %s: %w", path, err)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("sources file %s: duplicate source %q", path, s.Name)
		}
		seen[s.Name] = true
	}
	return doc.Sources, nil
}
