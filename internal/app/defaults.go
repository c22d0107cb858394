package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cms-go/internal/config"
)

// Paths are the locations used before a config file exists.
//
// Environment overrides:
//   - CMS_CONFIG_PATH: config file (default ~/.config/cms.toml)
//   - CMS_HOME: data directory (default ~/.local/share/cms)
//   - CMS_CONTENT_DIR: content root (default <data dir>/content); a
//     relative value is taken from the data directory
type Paths struct {
	ConfigPath string
	BaseDir    string
	ContentDir string
}

// DefaultPaths resolves Paths from the environment. The home directory is
// only consulted for values the environment leaves unset.
func DefaultPaths() (Paths, error) {
	r := pathResolver{}

	configPath, err := r.lookup("CMS_CONFIG_PATH", ".config", "cms.toml")
	if err != nil {
		return Paths{}, err
	}
	baseDir, err := r.lookup("CMS_HOME", ".local", "share", "cms")
	if err != nil {
		return Paths{}, err
	}

	contentDir := filepath.Join(baseDir, "content")
	if dir := os.Getenv("CMS_CONTENT_DIR"); dir != "" {
		if contentDir, err = r.expand(dir); err != nil {
			return Paths{}, err
		}
		if !filepath.IsAbs(contentDir) {
			contentDir = filepath.Join(baseDir, contentDir)
		}
	}

	return Paths{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		ContentDir: filepath.Clean(contentDir),
	}, nil
}

// NewConfig returns a default config laid out under these paths.
func (p Paths) NewConfig() *config.Config {
	cfg := config.NewConfig(p.BaseDir)
	cfg.Sandbox.Root = p.ContentDir
	return cfg
}

type pathResolver struct {
	home string
}

// lookup returns the named variable, expanded, or home joined with def.
func (r *pathResolver) lookup(name string, def ...string) (string, error) {
	if v := os.Getenv(name); v != "" {
		return r.expand(v)
	}
	home, err := r.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{home}, def...)...), nil
}

// expand replaces a leading ~ with the home directory.
func (r *pathResolver) expand(v string) (string, error) {
	if v != "~" && !strings.HasPrefix(v, "~/") {
		return v, nil
	}
	home, err := r.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(v, "~")), nil
}

func (r *pathResolver) homeDir() (string, error) {
	if r.home != "" {
		return r.home, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	r.home = home
	return home, nil
}
