package process

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CommandConfig binds an action name to a trusted local command.
type CommandConfig struct {
	Action      string            `yaml:"action" json:"action"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Dir         string            `yaml:"dir" json:"dir"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile is the structure of capabilities.yaml.
type ConfigFile struct {
	Capabilities []CommandConfig `yaml:"capabilities" json:"capabilities"`
}

// LoadConfig reads a capability file (YAML or JSON) and returns the
// commands keyed by action name. A missing file yields an empty map.
func LoadConfig(path string) (map[string]CommandConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]CommandConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read capabilities config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	commands := make(map[string]CommandConfig, len(cfg.Capabilities))
	for _, c := range cfg.Capabilities {
		if c.Action == "" {
			continue
		}
		if c.Command == "" {
			return nil, fmt.Errorf("capability %q has no command", c.Action)
		}
		if _, dup := commands[c.Action]; dup {
			return nil, fmt.Errorf("capability %q is defined twice", c.Action)
		}
		commands[c.Action] = c
	}
	return commands, nil
}
