package config

import (
	"os"
	"path/filepath"
)

// findUp returns the first dir/name, dir/../name, ... that exists.
func findUp(dir, name string) (string, error) {
	for {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

// FindFile searches for name starting at the working directory and walking
// up to the filesystem root. Absolute paths are only checked as given.
func FindFile(name string) (string, error) {
	if name == "" {
		name = ".env"
	}
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", err
		}
		return name, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return findUp(wd, name)
}
