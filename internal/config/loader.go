package config

import (
	"log/slog"
	"os"
	"path/filepath"
)

// ProjectConfigFile is the name of the project-level config file.
const ProjectConfigFile = ".ecsig.yaml"

// Loader finds and loads the project config.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a new configuration loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load returns the defaults merged with the config at explicitPath, or,
// when explicitPath is empty, with the nearest .ecsig.yaml found walking
// up from startDir. A missing project config is not an error; an
// explicit path that cannot be read is.
func (l *Loader) Load(explicitPath, startDir string) (*Config, error) {
	config := DefaultConfig()

	path := explicitPath
	if path == "" {
		path = l.FindProjectConfig(startDir)
	}
	if path == "" {
		l.logger.Debug("No project config found", slog.String("start", startDir))
	} else {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded project config", slog.String("path", path))
		config = fileConfig
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// FindProjectConfig searches for .ecsig.yaml in startDir and its parents.
func (l *Loader) FindProjectConfig(startDir string) string {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}
