package interp

import (
	"bytes"
	"errors"
	"testing"
	"unsafe"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceMemory map[uint32][]float64

func (m sliceMemory) Resolve(vm *goja.Runtime, handle uint32) (goja.ArrayBuffer, error) {
	vals, ok := m[handle]
	if !ok {
		return goja.ArrayBuffer{}, errors.New("unknown handle")
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(vals))), len(vals)*ElementWidth)
	return vm.NewArrayBuffer(raw), nil
}

func startedInterpreter(t *testing.T) *Interpreter {
	t.Helper()
	m := NewManager()
	in, err := m.EnsureStarted(zerolog.Nop())
	require.NoError(t, err)
	return in
}

func TestEnsureStartedIsIdempotent(t *testing.T) {
	m := NewManager()
	assert.Equal(t, StateNew, m.State())
	assert.False(t, m.Started())

	first, err := m.EnsureStarted(zerolog.Nop())
	require.NoError(t, err)
	second, err := m.EnsureStarted(zerolog.Nop())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.True(t, m.Started())
	assert.Equal(t, "ready", m.State().String())
}

func TestFailedStartIsSticky(t *testing.T) {
	m := NewManager()
	m.preludeFile = "internal/missing.js"

	_, err := m.EnsureStarted(zerolog.Nop())
	require.ErrorIs(t, err, ErrInit)
	assert.Equal(t, StateFailed, m.State())

	_, again := m.EnsureStarted(zerolog.Nop())
	assert.Equal(t, err, again)
}

func TestShutdownNeverRestarts(t *testing.T) {
	m := NewManager()
	in, err := m.EnsureStarted(zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, m.Shutdown())
	require.NoError(t, m.Shutdown())
	assert.Equal(t, StateClosed, m.State())

	_, err = m.EnsureStarted(zerolog.Nop())
	assert.ErrorIs(t, err, ErrShutdown)
	_, err = in.NewRuntime(sliceMemory{})
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestNumericModule(t *testing.T) {
	in := startedInterpreter(t)
	rt, err := in.NewRuntime(sliceMemory{})
	require.NoError(t, err)
	defer rt.Close()

	v, err := rt.VM.RunString(`
		const np = require("numeric");
		const a = np.fromRows([[1, 2], [3, 4], [5, 6]]);
		[a.size, a.rows, a.cols, a.sum(), np.magSqr(a).get(1), a.get(2, 1)];
	`)
	require.NoError(t, err)
	var got []float64
	require.NoError(t, rt.VM.ExportTo(v, &got))
	assert.Equal(t, []float64{6, 3, 2, 21, 25, 6}, got)

	_, err = rt.VM.RunString(`require("numeric").zeros(2, 2).get(2, 0)`)
	assert.ErrorContains(t, err, "out of range")
}

func TestHostmemCastAliases(t *testing.T) {
	in := startedInterpreter(t)
	host := make([]float64, 6)
	rt, err := in.NewRuntime(sliceMemory{7: host})
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.VM.RunString(`
		const hostmem = require("hostmem");
		const np = require("numeric");
		const view = np.asArray(hostmem.cast(7), 3, 2);
		view.set(1, 1, 42);
		view.row(2).fill(-1);
	`)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 42, -1, -1}, host)

	_, err = rt.VM.RunString(`require("hostmem").cast(8)`)
	assert.ErrorContains(t, err, "unknown handle")
	_, err = rt.VM.RunString(`require("hostmem").cast(0)`)
	assert.ErrorContains(t, err, "invalid handle")
}

func TestCastAfterCloseFails(t *testing.T) {
	in := startedInterpreter(t)
	rt, err := in.NewRuntime(sliceMemory{1: make([]float64, 1)})
	require.NoError(t, err)
	assert.EqualValues(t, 1, in.Live())
	rt.Close()
	rt.Close()
	assert.EqualValues(t, 0, in.Live())

	_, err = rt.VM.RunString(`require("hostmem").cast(1)`)
	assert.ErrorContains(t, err, "no host memory bound")
}

func TestCompileCache(t *testing.T) {
	in := startedInterpreter(t)

	a, err := in.Compile("cmd", "x = 1")
	require.NoError(t, err)
	b, err := in.Compile("cmd", "x = 1")
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := in.Compile("other", "x = 1")
	require.NoError(t, err)
	assert.NotSame(t, a, c)

	_, err = in.Compile("bad", "x = ")
	var syntaxErr *goja.CompilerSyntaxError
	assert.ErrorAs(t, err, &syntaxErr)

	st := in.CacheStats()
	assert.Equal(t, 2, st.Entries)
	assert.EqualValues(t, 1, st.Hits)
	assert.EqualValues(t, 3, st.Misses)
}

func TestConsoleGoesToLogger(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager()
	in, err := m.EnsureStarted(zerolog.New(&buf))
	require.NoError(t, err)
	rt, err := in.NewRuntime(sliceMemory{})
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.VM.RunString(`console.log("hello from script"); console.warn("careful")`)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"message":"hello from script"`)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"component":"script"`)
}

func TestStartupLoggedAtDebug(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewManager().EnsureStarted(zerolog.New(&buf).Level(zerolog.InfoLevel))
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	buf.Reset()
	_, err = NewManager().EnsureStarted(zerolog.New(&buf).Level(zerolog.DebugLevel))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"message":"Initialising embedded interpreter"`)
}

func TestCompileScriptListsLexicalNames(t *testing.T) {
	in := startedInterpreter(t)
	sc, err := in.CompileScript("decls", `
		var v = 1;
		const a = 1, [b, , ...c] = [1, 2, 3];
		let {d, e: {f = 2}, ...g} = {d: 1, e: {}};
		class H {}
		function fn() { let inner = 1; }
		{ let block = 1; }
	`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "f", "g", "H"}, sc.Lexical)

	prg, err := in.Compile("decls", "let x = 1")
	require.NoError(t, err)
	again, err := in.CompileScript("decls", "let x = 1")
	require.NoError(t, err)
	assert.Same(t, prg, again.Program)
	assert.Equal(t, []string{"x"}, again.Lexical)
}
