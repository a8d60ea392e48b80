package testutil

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrNoModule is returned when no go.mod exists above the start directory
var ErrNoModule = errors.New("go.mod not found in any parent directory")

// ProjectRoot returns the closest directory at or above the working directory
// that contains go.mod. Tests run with the package directory as working
// directory, so this resolves to the module root.
func ProjectRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return findModuleRoot(wd)
}

func findModuleRoot(dir string) (string, error) {
	for {
		if info, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil && !info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoModule
		}
		dir = parent
	}
}
