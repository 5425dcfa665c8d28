package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// SupportedFormats lists the config file formats we support
var SupportedFormats = []string{"yaml", "toml", "json"}

// GenerateConfig writes a default configuration file for the app into dir.
// An empty dir means the user config directory.
func GenerateConfig(appName, format, dir string) (string, error) {
	if !isValidFormat(format) {
		return "", fmt.Errorf("unsupported format %q, supported: %v", format, SupportedFormats)
	}

	if dir == "" {
		d, err := UserConfigDir(appName)
		if err != nil {
			return "", err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(dir, "config."+format)
	if _, err := os.Stat(configPath); err == nil {
		return configPath, fmt.Errorf("config file already exists: %s", configPath)
	}

	var defaults any
	switch appName {
	case AppDsf:
		defaults = DefaultDsfConfig()
	case AppDsfd:
		defaults = DefaultDsfdConfig()
	default:
		return "", fmt.Errorf("unknown app: %s", appName)
	}

	v := NewViperFromConfig(defaults)
	v.SetConfigType(format)
	if err := v.WriteConfigAs(configPath); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return configPath, nil
}

// GenerateConfigIfNotExists creates a default config file if one doesn't exist.
// Returns the path to the config file and whether it was created.
func GenerateConfigIfNotExists(appName, format, dir string) (string, bool, error) {
	if dir == "" {
		d, err := UserConfigDir(appName)
		if err != nil {
			return "", false, err
		}
		dir = d
	}

	for _, ext := range SupportedFormats {
		path := filepath.Join(dir, "config."+ext)
		if _, err := os.Stat(path); err == nil {
			return path, false, nil
		}
	}

	path, err := GenerateConfig(appName, format, dir)
	if err != nil {
		return "", false, err
	}
	return path, true, nil
}

func isValidFormat(format string) bool {
	for _, f := range SupportedFormats {
		if f == format {
			return true
		}
	}
	return false
}
