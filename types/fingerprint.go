package types

import (
	"crypto/sha256"
	"io"
	"sort"
)

// Fingerprint hashes every type's name, parents, methods, fields and
// constructor. Two registries with the same fingerprint drive the analysis
// to the same results.
func (r *Registry) Fingerprint() [32]byte {
	h := sha256.New()
	for _, t := range r.All() {
		t.writeTo(h)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (t *Type) writeTo(w io.Writer) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	io.WriteString(w, "type ")
	io.WriteString(w, t.Describe())
	io.WriteString(w, "\n")

	names := make([]string, 0, len(t.methods))
	for n := range t.methods {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		for _, sig := range t.methods[n].Signatures() {
			io.WriteString(w, "  def "+n+sig.String()+"\n")
		}
	}

	names = names[:0]
	for n := range t.fields {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		io.WriteString(w, "  field "+n+" "+t.fields[n].String()+"\n")
	}

	if t.constructor != nil {
		for _, sig := range t.constructor.Signatures() {
			io.WriteString(w, "  new"+sig.String()+"\n")
		}
	}
}
