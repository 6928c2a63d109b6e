package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ConfigFileName is the name searched for by ResolveConfigPath.
const ConfigFileName = "toolgate.yaml"

// ErrNoConfig is returned by ResolveConfigPath when no file exists.
var ErrNoConfig = errors.New("no configuration file found")

// ResolveConfigPath searches for a config file in standard locations.
// Search order: ./toolgate.yaml → $XDG_CONFIG_HOME/toolgate/toolgate.yaml →
// ~/.config/toolgate/toolgate.yaml.
func ResolveConfigPath() (string, error) {
	candidates := []string{ConfigFileName}

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "toolgate", ConfigFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "toolgate", ConfigFileName))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w (searched: %v)", ErrNoConfig, candidates)
}
