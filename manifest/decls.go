package manifest

import (
	"fmt"
	"sort"

	"github.com/chazu/stackflow/pkg/bytecode"
	"github.com/chazu/stackflow/types"
	"github.com/chazu/stackflow/wire"
)

// TypeDecl declares a user class. Parents are listed in precedence order;
// none means the base type.
type TypeDecl struct {
	Name         string            `toml:"name"`
	Parents      []string          `toml:"parents"`
	Fields       map[string]string `toml:"fields"`
	Methods      []MethodDecl      `toml:"methods"`
	Constructors []MethodDecl      `toml:"constructors"`
}

// MethodDecl is one overload. An empty Return means the base type.
type MethodDecl struct {
	Name     string   `toml:"name"`
	Params   []string `toml:"params"`
	Return   string   `toml:"return"`
	Variadic bool     `toml:"variadic"`
}

// ConstDecl is a constant pool entry; see wire.Constant.
type ConstDecl struct {
	Type  string `toml:"type"`
	Class string `toml:"class"`
}

// UnitDecl is a compile unit written in the manifest, its code given as a
// listing.
type UnitDecl struct {
	Name        string            `toml:"name"`
	Version     string            `toml:"version"`
	Params      []string          `toml:"params"`
	ParamWidths []int             `toml:"param-widths"`
	Locals      int               `toml:"locals"`
	BoundCells  int               `toml:"bound-cells"`
	FreeCells   int               `toml:"free-cells"`
	Constants   []ConstDecl       `toml:"constants"`
	Names       []string          `toml:"names"`
	Globals     map[string]string `toml:"globals"`
	Generator   bool              `toml:"generator"`
	Code        string            `toml:"code"`
}

// Registry builds the frozen type registry: builtins plus every declared
// type with its members.
func (m *Manifest) Registry() (*types.Registry, *types.Builtins, error) {
	r := types.NewRegistry("object")
	b, err := types.Bootstrap(r)
	if err != nil {
		return nil, nil, err
	}
	if err := m.DeclareTypes(r); err != nil {
		return nil, nil, err
	}
	if err := r.CloseDeclarations(); err != nil {
		return nil, nil, err
	}
	if err := b.Bind(r); err != nil {
		return nil, nil, err
	}
	if err := m.BindTypes(r); err != nil {
		return nil, nil, err
	}
	r.Freeze()
	return r, b, nil
}

// DeclareTypes declares every type, parents first. The registry must be in
// its declaration phase.
func (m *Manifest) DeclareTypes(r *types.Registry) error {
	order, err := orderTypes(m.Types, r)
	if err != nil {
		return err
	}
	for _, d := range order {
		if _, err := r.DeclareNamed(d.Name, d.Parents...); err != nil {
			return fmt.Errorf("declaring %s: %w", d.Name, err)
		}
	}
	return nil
}

// BindTypes binds the declared fields, methods and constructors. The
// registry must be in its binding phase. Parents are bound before their
// children so field redeclarations are checked against them.
func (m *Manifest) BindTypes(r *types.Registry) error {
	order, err := orderTypes(m.Types, r)
	if err != nil {
		return err
	}
	for _, d := range order {
		t := r.Lookup(d.Name)
		if t == nil {
			return fmt.Errorf("binding %s: %w", d.Name, types.ErrUnknownType)
		}

		fields := make([]string, 0, len(d.Fields))
		for name := range d.Fields {
			fields = append(fields, name)
		}
		sort.Strings(fields)
		for _, name := range fields {
			ft, err := lookupType(r, d.Fields[name])
			if err != nil {
				return fmt.Errorf("%s.%s: %w", d.Name, name, err)
			}
			if err := r.BindField(t, name, ft); err != nil {
				return fmt.Errorf("%s.%s: %w", d.Name, name, err)
			}
		}

		for _, md := range d.Methods {
			sig, err := md.signature(r)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", d.Name, md.Name, err)
			}
			if err := r.BindMethod(t, md.Name, sig); err != nil {
				return fmt.Errorf("%s.%s: %w", d.Name, md.Name, err)
			}
		}
		for _, cd := range d.Constructors {
			sig, err := cd.signature(r)
			if err != nil {
				return fmt.Errorf("%s constructor: %w", d.Name, err)
			}
			if err := r.BindConstructor(t, sig); err != nil {
				return fmt.Errorf("%s constructor: %w", d.Name, err)
			}
		}
	}
	return nil
}

func (md MethodDecl) signature(r *types.Registry) (types.Signature, error) {
	sig := types.Signature{Variadic: md.Variadic, Return: r.Base()}
	for _, p := range md.Params {
		pt, err := lookupType(r, p)
		if err != nil {
			return types.Signature{}, err
		}
		sig.Params = append(sig.Params, pt)
	}
	if md.Return != "" {
		rt, err := lookupType(r, md.Return)
		if err != nil {
			return types.Signature{}, err
		}
		sig.Return = rt
	}
	return sig, nil
}

func lookupType(r *types.Registry, name string) (*types.Type, error) {
	t := r.Lookup(name)
	if t == nil {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownType, name)
	}
	return t, nil
}

// WireUnits assembles every declared unit. Units without a version take the
// manifest's.
func (m *Manifest) WireUnits() ([]*wire.Unit, error) {
	out := make([]*wire.Unit, 0, len(m.Units))
	for _, d := range m.Units {
		u, err := d.Wire(m.Analysis.Version)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// Wire converts d to its serialized form, assembling the listing.
func (d UnitDecl) Wire(defaultVersion string) (*wire.Unit, error) {
	code, err := bytecode.Assemble(d.Code)
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", d.Name, err)
	}
	u := &wire.Unit{
		Name:        d.Name,
		Version:     d.Version,
		Params:      d.Params,
		ParamWidths: d.ParamWidths,
		Locals:      d.Locals,
		BoundCells:  d.BoundCells,
		FreeCells:   d.FreeCells,
		Names:       d.Names,
		Globals:     d.Globals,
		Generator:   d.Generator,
	}
	if u.Version == "" {
		u.Version = defaultVersion
	}
	for _, c := range d.Constants {
		u.Constants = append(u.Constants, wire.Constant{Type: c.Type, Class: c.Class})
	}
	for _, in := range code {
		u.Code = append(u.Code, wire.Instr{Op: in.Op.String(), Arg: in.Arg, Targets: in.Targets, Line: in.Line})
	}
	return u, nil
}
