package pal

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/highesttt/fieldpal/pkg/field"
)

// PublishBuffer binds name to an NDArray of shape (Len, Components) that
// reads and writes buf's memory directly. An empty buffer is skipped: no
// view is built and whatever name was bound to before stays bound.
//
// A Flat buffer whose values do not divide into whole elements is rejected
// with ErrInvalid.
//
// The caller must keep buf's storage in place (no append, no reallocation)
// for as long as scripts may use the view. Publishing another value under
// the same name, Release or Close detach the view; scripts that still hold
// it then get a TypeError instead of touching memory.
func (b *Bridge) PublishBuffer(buf field.Buffer, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	const op = "publish buffer"
	if err := b.usable(op, name); err != nil {
		return err
	}
	n, comps := buf.Len(), buf.Components()
	if n == 0 && field.Trailing(buf) == 0 {
		b.trace().Str("name", name).Msg("Skipping empty buffer")
		return nil
	}
	if err := field.Check(buf); err != nil {
		return &Error{Kind: KindInvalid, Op: op, Name: name, Cause: err}
	}
	b.trace().Str("name", name).Int("elements", n).Int("components", comps).Msg("Publishing buffer")

	v, h, err := b.scope.view(field.Alias(buf), n, comps)
	if err != nil {
		return foreignError(op, name, err)
	}
	if err = b.scope.bindView(name, v, h); err != nil {
		return foreignError(op, name, err)
	}
	return nil
}

// PublishScalar copies value into the scope. float32 values widen exactly.
func (b *Bridge) PublishScalar(value float64, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	const op = "publish scalar"
	if err := b.usable(op, name); err != nil {
		return err
	}
	b.trace().Str("name", name).Float64("value", value).Msg("Publishing scalar")
	if err := b.scope.set(name, value); err != nil {
		return foreignError(op, name, err)
	}
	return nil
}

// PublishText copies value into the scope as a string.
func (b *Bridge) PublishText(value, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	const op = "publish text"
	if err := b.usable(op, name); err != nil {
		return err
	}
	b.trace().Str("name", name).Msg("Publishing text")
	if err := b.scope.set(name, value); err != nil {
		return foreignError(op, name, err)
	}
	return nil
}

// RetrieveScalar copies the number bound to name out of the scope.
func (b *Bridge) RetrieveScalar(name string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	const op = "retrieve scalar"
	v, err := b.lookup(op, name)
	if err != nil {
		return 0, err
	}
	switch x := v.Export().(type) {
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	}
	return 0, &Error{Kind: KindWrongKind, Op: op, Name: name, Msg: "value is " + describe(v) + ", not a number"}
}

// RetrieveText copies the string bound to name out of the scope.
func (b *Bridge) RetrieveText(name string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	const op = "retrieve text"
	v, err := b.lookup(op, name)
	if err != nil {
		return "", err
	}
	if s, ok := v.Export().(string); ok {
		return s, nil
	}
	return "", &Error{Kind: KindWrongKind, Op: op, Name: name, Msg: "value is " + describe(v) + ", not a string"}
}

// Release unbinds name. A view published under it is detached.
func (b *Bridge) Release(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	const op = "release"
	if err := b.usable(op, name); err != nil {
		return err
	}
	b.trace().Str("name", name).Msg("Releasing name")
	if err := b.scope.remove(name); err != nil {
		return foreignError(op, name, err)
	}
	return nil
}

func (b *Bridge) lookup(op, name string) (goja.Value, error) {
	if err := b.usable(op, name); err != nil {
		return nil, err
	}
	b.trace().Str("name", name).Msg("Retrieving value")
	v, ok, err := b.scope.get(name)
	if err != nil {
		return nil, foreignError(op, name, err)
	} else if !ok {
		return nil, &Error{Kind: KindNotFound, Op: op, Name: name}
	}
	return v, nil
}

func describe(v goja.Value) string {
	switch {
	case goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	if obj, ok := v.(*goja.Object); ok {
		return "an object of class " + obj.ClassName()
	}
	return fmt.Sprintf("a %T", v.Export())
}
