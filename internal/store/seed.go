package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/linspirer/proxy/internal/models"
	"gopkg.in/yaml.v3"
)

type tacticsSeedFile struct {
	Templates []struct {
		Name      string                 `yaml:"name"`
		IsDefault bool                   `yaml:"is_default"`
		Tactics   map[string]interface{} `yaml:"tactics"`
	} `yaml:"templates"`
}

// LoadTacticsSeedFile reads a tactics-seed.yaml describing a starter set of
// tactics templates and seeds them, skipping any name that already exists.
// A missing path is not an error — the seed file is optional.
func (s *Store) LoadTacticsSeedFile(path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: load tactics seed: %w", err)
	}

	var file tacticsSeedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("store: load tactics seed: %w", err)
	}

	seeds := make([]models.TacticsTemplate, 0, len(file.Templates))
	for _, t := range file.Templates {
		templateJSON, err := yamlValueToJSON(t.Tactics)
		if err != nil {
			return fmt.Errorf("store: load tactics seed: template %q: %w", t.Name, err)
		}
		seeds = append(seeds, models.TacticsTemplate{
			Name:         t.Name,
			TemplateJSON: templateJSON,
			IsDefault:    t.IsDefault,
		})
	}
	return s.SeedTemplates(seeds)
}

func yamlValueToJSON(v map[string]interface{}) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
