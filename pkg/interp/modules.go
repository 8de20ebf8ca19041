package interp

import (
	"math"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/rs/zerolog"
)

const (
	ModuleNumeric = "numeric"
	ModuleHostmem = "hostmem"
	ModuleConsole = "console"
)

// ElementWidth is the only element width hostmem can reinterpret.
const ElementWidth = 8

// Memory resolves integer handles written into a scope to host-owned bytes.
// Resolve must wrap the bytes in an ArrayBuffer of vm without copying them.
type Memory interface {
	Resolve(vm *goja.Runtime, handle uint32) (goja.ArrayBuffer, error)
}

func (in *Interpreter) registerModules() {
	in.registry.RegisterNativeModule(ModuleNumeric, in.requireNumeric)
	in.registry.RegisterNativeModule(ModuleHostmem, in.requireHostmem)
	in.registry.RegisterNativeModule(ModuleConsole, console.RequireWithPrinter(logPrinter{in.log.With().Str("component", "script").Logger()}))
}

func (in *Interpreter) requireNumeric(vm *goja.Runtime, module *goja.Object) {
	exports := module.Get("exports").(*goja.Object)
	v, err := vm.RunProgram(in.prelude)
	if err != nil {
		panic(vm.NewGoError(err))
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		panic(vm.NewTypeError("numeric: prelude did not evaluate to a function"))
	}
	if _, err = fn(goja.Undefined(), exports); err != nil {
		panic(vm.NewGoError(err))
	}
}

// requireHostmem exposes the raw-memory half of the marshaling protocol:
// cast(handle) turns a handle written by the host into a Float64Array that
// aliases host memory.
func (in *Interpreter) requireHostmem(vm *goja.Runtime, module *goja.Object) {
	exports := module.Get("exports").(*goja.Object)
	_ = exports.Set("double", ElementWidth)
	_ = exports.Set("cast", func(call goja.FunctionCall) goja.Value {
		raw := call.Argument(0).ToInteger()
		if raw <= 0 || raw > math.MaxUint32 {
			panic(vm.NewTypeError("hostmem: invalid handle %d", raw))
		}
		v, ok := in.memories.Load(vm)
		if !ok {
			panic(vm.NewTypeError("hostmem: no host memory bound to this runtime"))
		}
		buf, err := v.(Memory).Resolve(vm, uint32(raw))
		if err != nil {
			panic(vm.NewGoError(err))
		}
		if len(buf.Bytes())%ElementWidth != 0 {
			panic(vm.NewTypeError("hostmem: %d bytes is not a whole number of doubles", len(buf.Bytes())))
		}
		arr, err := vm.New(vm.Get("Float64Array"), vm.ToValue(buf))
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return arr
	})
}

type logPrinter struct {
	log zerolog.Logger
}

func (p logPrinter) Log(s string)   { p.log.Info().Msg(s) }
func (p logPrinter) Warn(s string)  { p.log.Warn().Msg(s) }
func (p logPrinter) Error(s string) { p.log.Error().Msg(s) }
