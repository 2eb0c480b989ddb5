package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// AppDirName is the directory created under the user's config directory.
const AppDirName = "CicadaGallery"

// LicenseFileName is the default name of the persisted activation file.
const LicenseFileName = "license.key"

// Paths contains the resolved application paths
type Paths struct {
	ConfigDir   string
	LicenseFile string
	LogsDir     string
	LogFile     string
}

// ResolvePaths returns absolute paths, filling anything left empty in p from
// os.UserConfigDir.
func ResolvePaths(p PathsConfig) (*Paths, error) {
	configDir := p.ConfigDir
	if configDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user config dir: %w", err)
		}
		configDir = filepath.Join(base, AppDirName)
	}

	configDir, err := filepath.Abs(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config dir: %w", err)
	}

	paths := &Paths{
		ConfigDir:   configDir,
		LicenseFile: p.LicenseFile,
		LogsDir:     p.LogsDir,
	}
	if paths.LicenseFile == "" {
		paths.LicenseFile = filepath.Join(configDir, LicenseFileName)
	}
	if paths.LogsDir == "" {
		paths.LogsDir = filepath.Join(configDir, "logs")
	}
	paths.LogFile = filepath.Join(paths.LogsDir, "cicadagallery.log")

	return paths, nil
}

// EnsureDirectories creates the directories that hold the license and logs.
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.ConfigDir, filepath.Dir(p.LicenseFile), p.LogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// FileExists reports whether path exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
