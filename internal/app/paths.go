package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Paths stores resolved runtime file locations for config, logs and the
// device database.
type Paths struct {
	RootDir    string
	ConfigFile string
	DBFile     string
	LogFile    string
}

func ResolvePaths() (Paths, error) {
	cfgRoot, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve config dir: %w", err)
	}

	return PathsIn(filepath.Join(cfgRoot, Name))
}

// PathsIn lays the runtime files out below root, creating it if needed.
func PathsIn(root string) (Paths, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return Paths{}, fmt.Errorf("app root dir is empty")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return Paths{}, fmt.Errorf("create app config dir: %w", err)
	}

	return Paths{
		RootDir:    root,
		ConfigFile: filepath.Join(root, ConfigFilename),
		DBFile:     filepath.Join(root, DBFilename),
		LogFile:    filepath.Join(root, LogFilename),
	}, nil
}

// WithConfigFile points the config at an explicit file. Database and log
// stay next to it.
func (p Paths) WithConfigFile(path string) (Paths, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return p, nil
	}
	next, err := PathsIn(filepath.Dir(path))
	if err != nil {
		return Paths{}, err
	}
	next.ConfigFile = path

	return next, nil
}
