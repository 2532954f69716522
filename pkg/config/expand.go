package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands ~ to the home directory and environment variables.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}

	return filepath.Clean(os.ExpandEnv(path)), nil
}

// ResolvePath expands path and makes it absolute relative to base.
func ResolvePath(base, path string) (string, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return "", err
	}
	if expanded == "" || filepath.IsAbs(expanded) {
		return expanded, nil
	}
	return filepath.Join(base, expanded), nil
}

// ExpandEnv expands environment variables in a string.
func ExpandEnv(s string) string {
	return os.ExpandEnv(s)
}
