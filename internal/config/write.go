package config

import (
	"os"
	"path/filepath"

	"github.com/rileyhilliard/beacon/internal/errors"
	"gopkg.in/yaml.v3"
)

// Write serializes cfg to path as YAML, creating parent directories as
// needed. Used by 'beacon init' to lay down a starter config.
func Write(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't serialize the config",
			"This is a bug; please report it.")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't create the config directory "+dir,
			"Check directory permissions")
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't write the config file "+path,
			"Check file permissions")
	}
	return nil
}
