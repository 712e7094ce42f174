package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Layer represents a configuration layer source.
type Layer string

const (
	// LayerDefaults represents default configuration values.
	LayerDefaults Layer = "defaults"

	// LayerFile represents configuration from a YAML file.
	LayerFile Layer = "file"

	// LayerEnv represents configuration from environment variables.
	LayerEnv Layer = "env"
)

// LayeredLoader loads ServerConfig with precedence defaults < file < env;
// each layer overrides values set by the previous one.
type LayeredLoader struct {
	enabledLayers map[Layer]bool
}

// NewLayeredLoader creates a loader with all layers enabled.
func NewLayeredLoader() *LayeredLoader {
	return &LayeredLoader{
		enabledLayers: map[Layer]bool{
			LayerDefaults: true,
			LayerFile:     true,
			LayerEnv:      true,
		},
	}
}

// DisableLayer disables a specific configuration layer (mainly for tests).
func (l *LayeredLoader) DisableLayer(layer Layer) {
	l.enabledLayers[layer] = false
}

// Load loads a ServerConfig applying defaults, then configPath (if non-empty
// and present on disk), then the process environment.
func (l *LayeredLoader) Load(configPath string) (*ServerConfig, error) {
	var cfg *ServerConfig
	if l.enabledLayers[LayerDefaults] {
		cfg = DefaultServerConfig()
	} else {
		cfg = &ServerConfig{}
	}

	if l.enabledLayers[LayerFile] && configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath) // #nosec G304 - operator supplied path
			if err != nil {
				return nil, fmt.Errorf("read config file %s: %w", configPath, err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file %s: %w", configPath, err)
		}
	}

	if l.enabledLayers[LayerEnv] {
		if err := LoadFromEnv(cfg); err != nil {
			return nil, fmt.Errorf("load config from environment: %w", err)
		}
	}

	if v, ok := any(cfg).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}
