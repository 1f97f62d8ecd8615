package config

import (
	"fmt"
	"os"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// configRelPath is the config file location relative to the XDG config dirs.
const configRelPath = "wlanlogin/config.yaml"

// findConfigFile returns the config file to load, or "" when there is none.
// XDWLAN_CONFIG wins; a path given there must exist.
func findConfigFile() (string, error) {
	if p := os.Getenv("XDWLAN_CONFIG"); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("config: %s: %w", p, err)
		}
		return p, nil
	}
	p, err := xdg.SearchConfigFile(configRelPath)
	if err != nil {
		// Not found anywhere in the XDG search path.
		return "", nil
	}
	return p, nil
}

// loadFile decodes a YAML file over cfg. Keys missing from the file keep
// their current values.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}
