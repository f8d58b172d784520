// Package manifest handles stackflow.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"

	"github.com/chazu/stackflow/flow"
	"github.com/chazu/stackflow/pkg/bytecode"
)

// FileName is the manifest file looked for in a project directory.
const FileName = "stackflow.toml"

// Manifest represents a stackflow.toml project configuration.
type Manifest struct {
	Project  Project     `toml:"project"`
	Analysis Analysis    `toml:"analysis"`
	Cache    CacheConfig `toml:"cache"`
	Log      LogConfig   `toml:"log"`

	// Include lists further files, as globs relative to Dir, whose types
	// and units are merged into this manifest.
	Include []string `toml:"include"`

	Types []TypeDecl `toml:"types"`
	Units []UnitDecl `toml:"unit"`

	// Dir is the directory containing the stackflow.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
}

// Analysis tunes the flow analysis.
type Analysis struct {
	// Version is the default bytecode version for units that name none.
	Version             string `toml:"version"`
	IterationMultiplier int    `toml:"iteration-multiplier"`
	Workers             int    `toml:"workers"`
}

// CacheConfig configures the persistent summary cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Load parses the stackflow.toml file in dir.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses a manifest at an explicit path. Included files are
// resolved relative to the manifest's directory.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	// Defaults
	if m.Analysis.Version == "" {
		m.Analysis.Version = bytecode.DefaultVersion.String()
	}
	if m.Analysis.IterationMultiplier <= 0 {
		m.Analysis.IterationMultiplier = flow.DefaultMultiplier
	}
	if m.Analysis.Workers <= 0 {
		m.Analysis.Workers = runtime.GOMAXPROCS(0)
	}
	if m.Cache.Path == "" {
		m.Cache.Path = filepath.Join(".stackflow", "cache.db")
	}

	if _, err := bytecode.ParseVersion(m.Analysis.Version); err != nil {
		return nil, fmt.Errorf("%s: [analysis] version: %w", path, err)
	}
	if err := m.resolveIncludes(path); err != nil {
		return nil, err
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a stackflow.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
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

// BytecodeVersion returns the configured default version.
func (m *Manifest) BytecodeVersion() bytecode.Version {
	v, err := bytecode.ParseVersion(m.Analysis.Version)
	if err != nil {
		return bytecode.DefaultVersion
	}
	return v
}

// FlowOptions returns the builder options the manifest asks for.
func (m *Manifest) FlowOptions() flow.Options {
	return flow.Options{Multiplier: m.Analysis.IterationMultiplier}
}

// CachePath returns the absolute path of the cache database.
func (m *Manifest) CachePath() string {
	if filepath.IsAbs(m.Cache.Path) {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}

// LogPath returns the absolute log file path, or nil to log to stderr.
func (m *Manifest) LogPath() *string {
	if m.Log.File == "" {
		return nil
	}
	p := m.Log.File
	if !filepath.IsAbs(p) {
		p = filepath.Join(m.Dir, p)
	}
	return &p
}
