package field

import "fmt"

// Patch is a named boundary section of a Volume.
type Patch struct {
	Name   string
	Values Flat
}

// Volume is a field over a mesh: the internal cells plus ordered boundary
// patches. Patches may be empty.
type Volume struct {
	Name     string
	Internal Flat
	Patches  []Patch
}

func (v *Volume) Components() int { return v.Internal.Comps }

// Patch returns the patch with the given name, or nil.
func (v *Volume) Patch(name string) *Patch {
	for i := range v.Patches {
		if v.Patches[i].Name == name {
			return &v.Patches[i]
		}
	}
	return nil
}

// ZeroLike allocates a zeroed volume with the same internal size and patch
// layout as src but comps components per element.
func ZeroLike(name string, src *Volume, comps int) (*Volume, error) {
	if comps <= 0 {
		return nil, fmt.Errorf("field: invalid component count %d for %s", comps, name)
	}
	out := &Volume{
		Name:     name,
		Internal: NewFlat(src.Internal.Len(), comps),
		Patches:  make([]Patch, len(src.Patches)),
	}
	for i, p := range src.Patches {
		out.Patches[i] = Patch{Name: p.Name, Values: NewFlat(p.Values.Len(), comps)}
	}
	return out, nil
}

// SameLayout reports whether a and b have equal element counts everywhere.
func SameLayout(a, b *Volume) error {
	if a.Internal.Len() != b.Internal.Len() {
		return fmt.Errorf("field: %s has %d cells, %s has %d", a.Name, a.Internal.Len(), b.Name, b.Internal.Len())
	}
	if len(a.Patches) != len(b.Patches) {
		return fmt.Errorf("field: %s has %d patches, %s has %d", a.Name, len(a.Patches), b.Name, len(b.Patches))
	}
	for i := range a.Patches {
		pa, pb := a.Patches[i], b.Patches[i]
		if pa.Name != pb.Name || pa.Values.Len() != pb.Values.Len() {
			return fmt.Errorf("field: patch %d differs between %s (%s, %d) and %s (%s, %d)",
				i, a.Name, pa.Name, pa.Values.Len(), b.Name, pb.Name, pb.Values.Len())
		}
	}
	return nil
}
