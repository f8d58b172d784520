package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chazu/stackflow/manifest"
	"github.com/chazu/stackflow/types"
	"github.com/chazu/stackflow/wire"
)

// project is everything the inputs describe: the registry to analyze
// against and the units to analyze.
type project struct {
	manifest *manifest.Manifest
	registry *types.Registry
	builtins *types.Builtins
	units    []*wire.Unit
}

// loadProject resolves the configuration and reads every input path. An
// explicit config wins; otherwise a .toml input is used as the manifest,
// and failing that one is searched for upward from the working directory.
// Without any manifest, units are analyzed against the builtins alone.
func loadProject(config string, paths []string) (*project, error) {
	p := &project{}
	var rest []string
	for _, path := range paths {
		if strings.EqualFold(filepath.Ext(path), ".toml") && config == "" {
			config = path
			continue
		}
		rest = append(rest, path)
	}

	var err error
	switch {
	case config != "":
		p.manifest, err = manifest.LoadFile(config)
	default:
		var wd string
		if wd, err = os.Getwd(); err == nil {
			p.manifest, err = manifest.FindAndLoad(wd)
		}
	}
	if err != nil {
		return nil, err
	}

	if p.manifest != nil {
		if p.registry, p.builtins, err = p.manifest.Registry(); err != nil {
			return nil, err
		}
		if p.units, err = p.manifest.WireUnits(); err != nil {
			return nil, err
		}
	} else if p.registry, p.builtins, err = types.NewBuiltinRegistry(); err != nil {
		return nil, err
	}

	for _, path := range rest {
		units, err := readUnits(path)
		if err != nil {
			return nil, err
		}
		p.units = append(p.units, units...)
	}
	return p, nil
}

// readUnits reads a CBOR bundle or unit, or a YAML bundle.
func readUnits(path string) ([]*wire.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".cbor":
		if b, err := wire.UnmarshalBundle(data); err == nil && len(b.Units) > 0 {
			return bundleUnits(b), nil
		}
		u, err := wire.UnmarshalUnit(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return []*wire.Unit{u}, nil
	case ".yaml", ".yml":
		var b wire.Bundle
		if err := yaml.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
		return bundleUnits(&b), nil
	}
	return nil, fmt.Errorf("%s: unsupported input (want .toml, .cbor or .yaml)", path)
}

func bundleUnits(b *wire.Bundle) []*wire.Unit {
	out := make([]*wire.Unit, len(b.Units))
	for i := range b.Units {
		out[i] = &b.Units[i]
	}
	return out
}
