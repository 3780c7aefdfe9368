// Package manifest handles mythos.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file a Mythos project carries at its root.
const FileName = "mythos.toml"

// Manifest represents a mythos.toml project configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Build   Build   `toml:"build"`
	Run     Run     `toml:"run"`

	// Dir is the directory containing the mythos.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Entry   string `toml:"entry"`
}

// Build configures compiled output and the build cache.
type Build struct {
	Output string `toml:"output"`
	Cache  string `toml:"cache"`
}

// Run configures execution.
type Run struct {
	AutoPop   bool `toml:"auto-pop"`
	CallDepth int  `toml:"call-depth"`
	Trace     bool `toml:"trace"`
	UseCache  bool `toml:"use-cache"`
}

// Load parses a mythos.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find a mythos.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) applyDefaults() {
	if m.Project.Entry == "" {
		m.Project.Entry = "main.mythos"
	}
	if m.Build.Output == "" {
		m.Build.Output = "main.mythosb"
	}
	if m.Build.Cache == "" {
		m.Build.Cache = filepath.Join(".mythos", "cache.db")
	}
}

// EntryPath returns the absolute path of the project's entry program.
func (m *Manifest) EntryPath() string {
	return filepath.Join(m.Dir, m.Project.Entry)
}

// OutputPath returns the absolute path of the compiled artifact.
func (m *Manifest) OutputPath() string {
	return filepath.Join(m.Dir, m.Build.Output)
}

// CachePath returns the absolute path of the build cache database.
func (m *Manifest) CachePath() string {
	return filepath.Join(m.Dir, m.Build.Cache)
}
