// Package wire is the serialized form of compile units and analysis
// results. Units and summaries travel as canonical CBOR with integer keys;
// summaries also render as YAML for people.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// MarshalUnit serializes a Unit to CBOR bytes. Equal units encode to equal
// bytes.
func MarshalUnit(u *Unit) ([]byte, error) {
	return encMode.Marshal(u)
}

// UnmarshalUnit deserializes a Unit from CBOR bytes.
func UnmarshalUnit(data []byte) (*Unit, error) {
	var u Unit
	if err := cbor.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("wire: unmarshal unit: %w", err)
	}
	return &u, nil
}

// MarshalBundle serializes a Bundle to CBOR bytes.
func MarshalBundle(b *Bundle) ([]byte, error) {
	return encMode.Marshal(b)
}

// UnmarshalBundle deserializes a Bundle from CBOR bytes.
func UnmarshalBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := cbor.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("wire: unmarshal bundle: %w", err)
	}
	return &b, nil
}

// MarshalSummary serializes a Summary to CBOR bytes.
func MarshalSummary(s *Summary) ([]byte, error) {
	return encMode.Marshal(s)
}

// UnmarshalSummary deserializes a Summary from CBOR bytes.
func UnmarshalSummary(data []byte) (*Summary, error) {
	var s Summary
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("wire: unmarshal summary: %w", err)
	}
	return &s, nil
}

// YAML renders a Summary for reading.
func (s *Summary) YAML() ([]byte, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("wire: summary %s: %w", s.Function, err)
	}
	return out, nil
}
