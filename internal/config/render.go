package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Render marshals cfg to YAML, matching the yaml-tagged config files the
// teacher's evaluation suites use (foundation_suite.go, judging.go): a
// plain struct-to-YAML dump an operator can read, edit and feed back in
// via NewLoader's configPath.
func Render(cfg RuntimeConfig) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: render yaml: %w", err)
	}
	return out, nil
}

// WriteDefault writes Defaults() to path as YAML, for bootstrapping a new
// deployment's config file.
func WriteDefault(path string) error {
	data, err := Render(Defaults())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
