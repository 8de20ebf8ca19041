// Package pal is the bridge between host field data and an embedded
// JavaScript interpreter.
//
// A Bridge owns one scope (a persistent global namespace) inside the
// process-wide interpreter. Host buffers are published into the scope as
// zero-copy numeric arrays, scalars and text are copied, and arbitrary script
// code can be executed against the scope at any point.
//
// Calls on one Bridge are serialised. Script code always runs on the calling
// goroutine and the call returns only when the script does.
package pal

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/highesttt/fieldpal/pkg/interp"
)

type Bridge struct {
	mu     sync.Mutex
	log    zerolog.Logger
	debug  bool
	mgr    *interp.Manager
	in     *interp.Interpreter
	scope  *scope
	script string
	closed bool
}

type Option func(*Bridge)

// WithDebug toggles the per-operation trace lines. Tracing is on by default.
func WithDebug(debug bool) Option {
	return func(b *Bridge) { b.debug = debug }
}

func WithLogger(log zerolog.Logger) Option {
	return func(b *Bridge) { b.log = log }
}

// WithManager starts the interpreter through m instead of the process-wide
// default manager.
func WithManager(m *interp.Manager) Option {
	return func(b *Bridge) { b.mgr = m }
}

// New starts the interpreter if needed, creates a fresh scope with the
// numeric and hostmem modules imported, and runs the script at scriptPath
// in it. Environment variable references in scriptPath are expanded first.
func New(scriptPath string, opts ...Option) (*Bridge, error) {
	b := &Bridge{
		log:   log.Logger,
		debug: true,
		mgr:   interp.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	in, err := b.mgr.EnsureStarted(b.log)
	if err != nil {
		return nil, &Error{Kind: KindInit, Op: "start interpreter", Cause: err}
	}
	b.in = in

	b.trace().Msg("Creating scope")
	b.scope, err = newScope(in)
	if err != nil {
		return nil, &Error{Kind: KindInit, Op: "create scope", Cause: err}
	}

	if err = b.loadScript(scriptPath); err != nil {
		b.scope.close()
		return nil, err
	}
	return b, nil
}

func (b *Bridge) trace() *zerolog.Event {
	if !b.debug {
		return nil
	}
	return b.log.Info()
}

func (b *Bridge) usable(op, name string) error {
	if b.closed {
		return &Error{Kind: KindClosed, Op: op, Name: name}
	}
	return nil
}

// Script returns the expanded path of the script loaded at construction.
func (b *Bridge) Script() string { return b.script }

// Interpreter returns the shared interpreter this bridge runs on.
func (b *Bridge) Interpreter() *interp.Interpreter { return b.in }

// Names lists the names bound in the scope apart from the imported modules.
func (b *Bridge) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	return b.scope.names()
}

// Close detaches every published view and releases the scope. The
// interpreter keeps running for other bridges.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.trace().Msg("Closing scope")
	b.scope.close()
	return nil
}
