// Package interp owns the process-wide embedded JavaScript interpreter.
//
// The interpreter is started lazily, at most once per Manager, and is shared
// by every bridge in the process: the module registry, the compiled program
// cache and the console sink are global, while each bridge gets its own
// goja runtime (and therefore its own global namespace).
package interp

import (
	"embed"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/rs/zerolog"
)

//go:embed internal/*
var internalAssets embed.FS

var (
	ErrInit     = errors.New("interp: initialization failed")
	ErrShutdown = errors.New("interp: interpreter has been shut down")
)

// State is the lifecycle state of a Manager.
type State int32

const (
	StateNew State = iota
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Manager starts an Interpreter exactly once and hands out the same handle
// to every caller. A failed start is remembered; a shut down manager never
// starts again.
type Manager struct {
	mu    sync.Mutex
	state State
	in    *Interpreter
	err   error

	preludeFile string
}

func NewManager() *Manager {
	return &Manager{preludeFile: "internal/numeric.js"}
}

var std = NewManager()

// Default returns the process-wide manager.
func Default() *Manager { return std }

// EnsureStarted starts the process-wide interpreter if needed.
func EnsureStarted(log zerolog.Logger) (*Interpreter, error) {
	return std.EnsureStarted(log)
}

// Started reports whether the process-wide interpreter is running.
func Started() bool { return std.Started() }

// Shutdown tears down the process-wide interpreter for good.
func Shutdown() error { return std.Shutdown() }

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Started() bool {
	return m.State() == StateReady
}

// EnsureStarted returns the running interpreter, starting it on first use.
// log is only used by the call that actually starts the interpreter.
func (m *Manager) EnsureStarted(log zerolog.Logger) (*Interpreter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateReady:
		return m.in, nil
	case StateFailed:
		return nil, m.err
	case StateClosed:
		return nil, ErrShutdown
	}
	log.Debug().Msg("Initialising embedded interpreter")
	in, err := newInterpreter(log, m.preludeFile)
	if err != nil {
		m.state = StateFailed
		m.err = fmt.Errorf("%w: %w", ErrInit, err)
		log.Error().Err(err).Msg("Failed to initialise embedded interpreter")
		return nil, m.err
	}
	m.in = in
	m.state = StateReady
	return in, nil
}

// Shutdown closes the interpreter. Runtimes created before the call keep
// working; no new runtime can be created afterwards.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClosed {
		return nil
	}
	if m.in != nil {
		m.in.close()
	}
	m.state = StateClosed
	return nil
}

// Interpreter is the shared state behind every scope in the process.
type Interpreter struct {
	log      zerolog.Logger
	registry *require.Registry
	prelude  *goja.Program
	programs *programCache

	memories sync.Map // *goja.Runtime -> Memory
	live     atomic.Int64
	closed   atomic.Bool
}

func newInterpreter(log zerolog.Logger, preludeFile string) (*Interpreter, error) {
	src, err := internalAssets.ReadFile(preludeFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded file %s: %w", preludeFile, err)
	}
	prelude, err := goja.Compile(preludeFile, string(src), false)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", preludeFile, err)
	}
	in := &Interpreter{
		log:      log,
		registry: require.NewRegistry(),
		prelude:  prelude,
		programs: newProgramCache(defaultCacheSize),
	}
	in.registerModules()
	return in, nil
}

func (in *Interpreter) close() {
	in.closed.Store(true)
	in.programs.reset()
	if n := in.live.Load(); n > 0 {
		in.log.Warn().Int64("live_runtimes", n).Msg("Shutting down interpreter with live scopes")
	}
}

// Live returns the number of runtimes that have not been closed.
func (in *Interpreter) Live() int64 { return in.live.Load() }

// Runtime is a single goja runtime created by the interpreter.
type Runtime struct {
	VM  *goja.Runtime
	req *require.RequireModule
	in  *Interpreter

	closeOnce sync.Once
}

// NewRuntime creates a runtime with require, console and the host modules
// enabled. mem resolves the handles that hostmem.cast receives.
func (in *Interpreter) NewRuntime(mem Memory) (*Runtime, error) {
	if in.closed.Load() {
		return nil, ErrShutdown
	}
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	req := in.registry.Enable(vm)
	in.memories.Store(vm, mem)
	in.live.Add(1)
	rt := &Runtime{VM: vm, req: req, in: in}
	con, err := rt.Require(ModuleConsole)
	if err == nil {
		err = vm.Set("console", con)
	}
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// Require loads a module into the runtime and returns its exports.
func (rt *Runtime) Require(name string) (*goja.Object, error) {
	v, err := rt.req.Require(name)
	if err != nil {
		return nil, fmt.Errorf("interp: require(%q) failed: %w", name, err)
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("interp: module %q did not export an object", name)
	}
	return obj, nil
}

// Compile compiles src through the interpreter's shared program cache.
func (rt *Runtime) Compile(name, src string) (*goja.Program, error) {
	return rt.in.Compile(name, src)
}

// Close unbinds the runtime from the interpreter. It is safe to call twice.
func (rt *Runtime) Close() {
	rt.closeOnce.Do(func() {
		rt.in.memories.Delete(rt.VM)
		rt.in.live.Add(-1)
	})
}
