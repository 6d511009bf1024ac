package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// sectionApplier decodes one top-level section and stores it on a Config.
type sectionApplier func(c *Config, section []byte) error

// replaceSection decodes section into a zero T and hands it to set, so the
// previous value of the field is dropped entirely.
func replaceSection[T any](set func(*Config, T)) sectionApplier {
	return func(c *Config, section []byte) error {
		var v T
		if err := yaml.Unmarshal(section, &v); err != nil {
			return err
		}
		set(c, v)
		return nil
	}
}

// mergeFlows replaces only the environment lists present in section.
func mergeFlows(c *Config, section []byte) error {
	var v FlowsConfig
	if err := yaml.Unmarshal(section, &v); err != nil {
		return err
	}
	if v.Production != nil {
		c.Flows.Production = v.Production
	}
	if v.Sandbox != nil {
		c.Flows.Sandbox = v.Sandbox
	}
	return nil
}

// sectionAppliers maps config file sections to their Config fields.
// Sections missing from this table are ignored.
//
//nolint:gochecknoglobals // Fixed lookup table.
var sectionAppliers = map[string]sectionApplier{
	"auth":    replaceSection(func(c *Config, v AuthConfig) { c.Auth = v }),
	"batch":   replaceSection(func(c *Config, v BatchSettings) { c.Batch = v }),
	"logging": replaceSection(func(c *Config, v LoggingConfig) { c.Logging = v }),
	"cli":     replaceSection(func(c *Config, v CLIConfig) { c.CLI = v }),
	"api":     replaceSection(func(c *Config, v APIConfig) { c.API = v }),
	"cache":   replaceSection(func(c *Config, v CacheConfig) { c.Cache = v }),
	"flows":   mergeFlows,
}

// ShallowMergeYAML overlays the sections of a YAML or JSON file onto target.
// A section in the file replaces the whole section of target, except flows,
// where each environment list is replaced on its own.
func ShallowMergeYAML(target *Config, overlayPath string) error {
	if target == nil {
		return errors.New("nil target *Config in ShallowMergeYAML")
	}

	data, err := os.ReadFile(overlayPath)
	if err != nil {
		return fmt.Errorf("reading overlay file %s: %w", overlayPath, err)
	}

	var overlay map[string]yaml.Node
	if err = yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing overlay YAML from %s: %w", overlayPath, err)
	}

	for key, node := range overlay {
		apply, ok := sectionAppliers[key]
		if !ok {
			continue
		}
		if err = applySection(target, apply, &node); err != nil {
			return fmt.Errorf("applying overlay section %q: %w", key, err)
		}
	}
	return nil
}

func applySection(c *Config, apply sectionApplier, node *yaml.Node) error {
	section, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	return apply(c, section)
}

// LoadFlowsFile merges the flows section of a YAML or JSON file into c.
// Other sections in the file are ignored.
func (c *Config) LoadFlowsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to load flows configuration from %s: %w", path, err)
	}

	var doc struct {
		Flows yaml.Node `yaml:"flows"`
	}
	if err = yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to load flows configuration from %s: %w", path, err)
	}
	if doc.Flows.Kind == 0 {
		return nil
	}

	if err = applySection(c, mergeFlows, &doc.Flows); err != nil {
		return fmt.Errorf("failed to load flows configuration from %s: %w", path, err)
	}
	return nil
}
