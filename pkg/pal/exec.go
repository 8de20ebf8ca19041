package pal

import (
	"context"

	"github.com/dop251/goja"
)

const commandName = "<execute>"

// Execute runs snippet against the scope and waits for it to finish.
func (b *Bridge) Execute(snippet string) error {
	return b.ExecuteContext(context.Background(), snippet)
}

// ExecuteContext is Execute with cancellation: when ctx is done the running
// script is interrupted and the returned error wraps ctx.Err().
func (b *Bridge) ExecuteContext(ctx context.Context, snippet string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	const op = "execute"
	if err := b.usable(op, ""); err != nil {
		return err
	}
	b.trace().Str("command", snippet).Msg("Executing command")

	sc, err := b.in.CompileScript(commandName, snippet)
	if err != nil {
		return foreignError(op, "", err)
	}
	if _, err = b.scope.run(ctx, sc); err != nil {
		return foreignError(op, "", err)
	}
	return nil
}

// Call invokes the script function bound to fn with args converted to
// script values, and returns its result exported to a Go value.
func (b *Bridge) Call(fn string, args ...any) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	const op = "call"
	if err := b.usable(op, fn); err != nil {
		return nil, err
	}
	b.trace().Str("function", fn).Int("args", len(args)).Msg("Calling function")

	v, ok, err := b.scope.get(fn)
	if err != nil {
		return nil, foreignError(op, fn, err)
	} else if !ok {
		return nil, &Error{Kind: KindNotFound, Op: op, Name: fn}
	}
	callable, ok := goja.AssertFunction(v)
	if !ok {
		return nil, &Error{Kind: KindWrongKind, Op: op, Name: fn, Msg: "value is " + describe(v) + ", not a function"}
	}
	jsArgs := make([]goja.Value, len(args))
	for i, a := range args {
		jsArgs[i] = b.scope.vm.ToValue(a)
	}
	res, err := callable(goja.Undefined(), jsArgs...)
	if err != nil {
		return nil, foreignError(op, fn, err)
	}
	return res.Export(), nil
}
