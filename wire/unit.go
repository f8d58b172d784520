package wire

import (
	"errors"
	"fmt"

	"github.com/chazu/stackflow/flow"
	"github.com/chazu/stackflow/pkg/bytecode"
	"github.com/chazu/stackflow/types"
)

var (
	ErrUnknownType = errors.New("wire: unknown type")
	ErrNoCode      = errors.New("wire: unit has no code")
	ErrBothCodes   = errors.New("wire: unit has both symbolic and raw code")
)

// Unit is one compile unit with every type given by name. Code is either
// symbolic (Code) or in the version's raw opcode bytes (Raw).
type Unit struct {
	Name        string            `cbor:"1,keyasint" yaml:"name"`
	Version     string            `cbor:"2,keyasint,omitempty" yaml:"version,omitempty"`
	Params      []string          `cbor:"3,keyasint,omitempty" yaml:"params,omitempty"`
	ParamWidths []int             `cbor:"4,keyasint,omitempty" yaml:"param-widths,omitempty"`
	Locals      int               `cbor:"5,keyasint" yaml:"locals"`
	BoundCells  int               `cbor:"6,keyasint,omitempty" yaml:"bound-cells,omitempty"`
	FreeCells   int               `cbor:"7,keyasint,omitempty" yaml:"free-cells,omitempty"`
	Constants   []Constant        `cbor:"8,keyasint,omitempty" yaml:"constants,omitempty"`
	Names       []string          `cbor:"9,keyasint,omitempty" yaml:"names,omitempty"`
	Globals     map[string]string `cbor:"10,keyasint,omitempty" yaml:"globals,omitempty"`
	Generator   bool              `cbor:"11,keyasint,omitempty" yaml:"generator,omitempty"`
	Code        []Instr           `cbor:"12,keyasint,omitempty" yaml:"code,omitempty"`
	Raw         []RawInstr        `cbor:"13,keyasint,omitempty" yaml:"raw,omitempty"`
}

// Constant is a constant pool entry. A non-empty Class makes the constant
// the class object for Class; Type then names its metatype and defaults to
// "type".
type Constant struct {
	Type  string `cbor:"1,keyasint,omitempty" yaml:"type,omitempty"`
	Class string `cbor:"2,keyasint,omitempty" yaml:"class,omitempty"`
}

// Instr is a symbolic instruction.
type Instr struct {
	Op      string `cbor:"1,keyasint" yaml:"op"`
	Arg     int    `cbor:"2,keyasint,omitempty" yaml:"arg,omitempty"`
	Targets []int  `cbor:"3,keyasint,omitempty" yaml:"targets,omitempty,flow"`
	Line    int    `cbor:"4,keyasint,omitempty" yaml:"line,omitempty"`
}

// RawInstr is an instruction in a version's byte encoding.
type RawInstr struct {
	Opcode  byte  `cbor:"1,keyasint" yaml:"opcode"`
	Arg     int   `cbor:"2,keyasint,omitempty" yaml:"arg,omitempty"`
	Targets []int `cbor:"3,keyasint,omitempty" yaml:"targets,omitempty,flow"`
	Line    int   `cbor:"4,keyasint,omitempty" yaml:"line,omitempty"`
}

// Bundle groups units shipped together.
type Bundle struct {
	Units []Unit `cbor:"1,keyasint" yaml:"units"`
}

// Resolve binds u's type names against reg and decodes its code, producing
// a unit ready for analysis.
func (u *Unit) Resolve(reg *types.Registry) (flow.Unit, error) {
	version := bytecode.DefaultVersion
	if u.Version != "" {
		v, err := bytecode.ParseVersion(u.Version)
		if err != nil {
			return flow.Unit{}, fmt.Errorf("%s: %w", u.Name, err)
		}
		version = v
	}

	lookup := func(what, name string) (*types.Type, error) {
		if name == "" {
			return nil, nil
		}
		t := reg.Lookup(name)
		if t == nil {
			return nil, fmt.Errorf("%s: %s %q: %w", u.Name, what, name, ErrUnknownType)
		}
		return t, nil
	}

	fn := &flow.Function{
		Name:        u.Name,
		Version:     version,
		ParamWidths: append([]int(nil), u.ParamWidths...),
		Locals:      u.Locals,
		BoundCells:  u.BoundCells,
		FreeCells:   u.FreeCells,
		Names:       append([]string(nil), u.Names...),
		Generator:   u.Generator,
	}
	for _, p := range u.Params {
		t, err := lookup("parameter", p)
		if err != nil {
			return flow.Unit{}, err
		}
		fn.Params = append(fn.Params, t)
	}
	for _, c := range u.Constants {
		meta := c.Type
		if meta == "" && c.Class != "" {
			meta = "type"
		}
		t, err := lookup("constant", meta)
		if err != nil {
			return flow.Unit{}, err
		}
		cls, err := lookup("constant class", c.Class)
		if err != nil {
			return flow.Unit{}, err
		}
		fn.Constants = append(fn.Constants, flow.Const{Type: t, Class: cls})
	}
	if len(u.Globals) > 0 {
		fn.Globals = make(map[string]*types.Type, len(u.Globals))
		for name, tn := range u.Globals {
			t, err := lookup("global "+name, tn)
			if err != nil {
				return flow.Unit{}, err
			}
			fn.Globals[name] = t
		}
	}

	code, err := u.decode(version)
	if err != nil {
		return flow.Unit{}, err
	}
	return flow.Unit{Function: fn, Code: code}, nil
}

func (u *Unit) decode(version bytecode.Version) ([]bytecode.Instruction, error) {
	switch {
	case len(u.Code) > 0 && len(u.Raw) > 0:
		return nil, fmt.Errorf("%s: %w", u.Name, ErrBothCodes)
	case len(u.Raw) > 0:
		table, err := bytecode.TableFor(version)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", u.Name, err)
		}
		raw := make([]bytecode.RawInstruction, len(u.Raw))
		for i, r := range u.Raw {
			raw[i] = bytecode.RawInstruction{Opcode: r.Opcode, Arg: r.Arg, Targets: r.Targets, Line: r.Line}
		}
		code, err := table.DecodeAll(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", u.Name, err)
		}
		return code, nil
	case len(u.Code) > 0:
		code := make([]bytecode.Instruction, len(u.Code))
		for i, in := range u.Code {
			op, ok := bytecode.LookupName(in.Op)
			if !ok {
				return nil, fmt.Errorf("%s: instruction %d: unknown opcode %q", u.Name, i, in.Op)
			}
			code[i] = bytecode.Instruction{Op: op, Arg: in.Arg, Targets: append([]int(nil), in.Targets...), Line: in.Line}
		}
		return code, nil
	}
	return nil, fmt.Errorf("%s: %w", u.Name, ErrNoCode)
}

// FromUnit is the inverse of Resolve for symbolic code.
func FromUnit(fu flow.Unit) *Unit {
	fn := fu.Function
	u := &Unit{
		Name:        fn.Name,
		ParamWidths: append([]int(nil), fn.ParamWidths...),
		Locals:      fn.Locals,
		BoundCells:  fn.BoundCells,
		FreeCells:   fn.FreeCells,
		Names:       append([]string(nil), fn.Names...),
		Generator:   fn.Generator,
	}
	if fn.Version != (bytecode.Version{}) {
		u.Version = fn.Version.String()
	}
	for _, p := range fn.Params {
		u.Params = append(u.Params, typeName(p))
	}
	for _, c := range fn.Constants {
		wc := Constant{Type: typeName(c.Type), Class: typeName(c.Class)}
		if wc.Class != "" && wc.Type == "type" {
			wc.Type = ""
		}
		u.Constants = append(u.Constants, wc)
	}
	if len(fn.Globals) > 0 {
		u.Globals = make(map[string]string, len(fn.Globals))
		for name, t := range fn.Globals {
			u.Globals[name] = typeName(t)
		}
	}
	for _, in := range fu.Code {
		u.Code = append(u.Code, Instr{Op: in.Op.String(), Arg: in.Arg, Targets: append([]int(nil), in.Targets...), Line: in.Line})
	}
	return u
}

func typeName(t *types.Type) string {
	if t == nil {
		return ""
	}
	return t.Name()
}
