package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-set/v3"

	"github.com/chazu/stackflow/types"
)

var (
	ErrTypeCycle     = errors.New("manifest: inheritance cycle")
	ErrDuplicateDecl = errors.New("manifest: type declared twice")
)

// includeFile is the shape of an included file: declarations only.
type includeFile struct {
	Include []string   `toml:"include"`
	Types   []TypeDecl `toml:"types"`
	Units   []UnitDecl `toml:"unit"`
}

// resolveIncludes loads every included file, depth first, appending its
// declarations after the including file's own. A file reached twice is
// read once.
func (m *Manifest) resolveIncludes(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	seen := set.From([]string{abs})
	return m.includeAll(m.Dir, m.Include, seen)
}

func (m *Manifest) includeAll(dir string, patterns []string, seen *set.Set[string]) error {
	for _, pattern := range patterns {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(dir, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("include %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return fmt.Errorf("include %q: no such file", pattern)
		}
		sort.Strings(matches)
		for _, path := range matches {
			if !seen.Insert(path) {
				continue
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("cannot read %s: %w", path, err)
			}
			var inc includeFile
			if err := toml.Unmarshal(data, &inc); err != nil {
				return fmt.Errorf("parse error in %s: %w", path, err)
			}
			m.Types = append(m.Types, inc.Types...)
			m.Units = append(m.Units, inc.Units...)
			if err := m.includeAll(filepath.Dir(path), inc.Include, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

// orderTypes returns decls with every parent ahead of its children; the
// relative order of unrelated declarations is kept. Parents may also be
// types already in reg.
func orderTypes(decls []TypeDecl, reg *types.Registry) ([]TypeDecl, error) {
	byName := make(map[string]int, len(decls))
	for i, d := range decls {
		if _, dup := byName[d.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateDecl, d.Name)
		}
		byName[d.Name] = i
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(decls))
	order := make([]TypeDecl, 0, len(decls))
	var path []string

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: %s -> %s", ErrTypeCycle, strings.Join(path, " -> "), decls[i].Name)
		}
		state[i] = visiting
		path = append(path, decls[i].Name)
		for _, p := range decls[i].Parents {
			if j, ok := byName[p]; ok {
				if err := visit(j); err != nil {
					return err
				}
				continue
			}
			if reg.Lookup(p) == nil {
				return fmt.Errorf("type %q: parent %q: %w", decls[i].Name, p, types.ErrUnknownType)
			}
		}
		path = path[:len(path)-1]
		state[i] = done
		order = append(order, decls[i])
		return nil
	}

	for i := range decls {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return order, nil
}
