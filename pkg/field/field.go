// Package field holds the host-side numeric buffers that the bridge can
// expose to scripts without copying.
package field

import "fmt"

// Width is the size in bytes of a single component. Only double precision
// buffers can be aliased.
const Width = 8

type (
	Scalar     = float64
	Vector2    [2]float64
	Vector     [3]float64
	SymmTensor [6]float64
	Tensor     [9]float64
)

// Element is the set of element layouts a typed Field can hold. Every member
// is a whole number of float64 components with no padding.
type Element interface {
	~float64 | ~[2]float64 | ~[3]float64 | ~[6]float64 | ~[9]float64
}

// Buffer is a contiguous run of elements of Components() float64 each.
//
// Values must return a slice that aliases the buffer's storage, not a copy.
type Buffer interface {
	Len() int
	Components() int
	Values() []float64
}

// Field is a typed contiguous buffer.
type Field[T Element] []T

func (f Field[T]) Len() int { return len(f) }

func (f Field[T]) Components() int { return components[T]() }

func (f Field[T]) Values() []float64 { return flatten(f) }

// Flat is a buffer whose component count is only known at run time.
type Flat struct {
	Data  []float64
	Comps int
}

// NewFlat allocates a zeroed buffer of n elements.
func NewFlat(n, comps int) Flat {
	return Flat{Data: make([]float64, n*comps), Comps: comps}
}

func (f Flat) Len() int {
	if f.Comps <= 0 {
		return 0
	}
	return len(f.Data) / f.Comps
}

func (f Flat) Components() int { return f.Comps }

func (f Flat) Values() []float64 { return f.Data[:f.Len()*f.Comps] }

// Row returns the components of element i, aliasing the buffer.
func (f Flat) Row(i int) []float64 {
	return f.Data[i*f.Comps : (i+1)*f.Comps]
}

// Check reports whether buf's flat values agree with its declared shape.
func Check(buf Buffer) error {
	n, c := buf.Len(), buf.Components()
	if c <= 0 {
		return fmt.Errorf("field: invalid component count %d", c)
	}
	if got := len(buf.Values()); got != n*c {
		return fmt.Errorf("field: %d values do not fill %d elements of %d components", got, n, c)
	}
	if t := Trailing(buf); t != 0 {
		return fmt.Errorf("field: %d trailing values after %d elements of %d components", t, n, c)
	}
	return nil
}

// Trailing returns how many values of a Flat buffer do not make up a whole
// element. Typed fields never have any.
func Trailing(buf Buffer) int {
	var f Flat
	switch b := buf.(type) {
	case Flat:
		f = b
	case *Flat:
		f = *b
	default:
		return 0
	}
	if f.Comps <= 0 {
		return 0
	}
	return len(f.Data) % f.Comps
}
