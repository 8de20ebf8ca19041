package pal

import (
	"context"
	"fmt"
	"slices"

	"github.com/dop251/goja"

	"github.com/highesttt/fieldpal/pkg/interp"
)

// Names the host modules are bound to in every scope.
const (
	NumericName = "np"
	HostmemName = "hostmem"
)

// scope is one bridge's namespace: a goja runtime whose global object holds
// every published name and everything the user script defines.
type scope struct {
	rt  *interp.Runtime
	vm  *goja.Runtime
	mem *handleTable

	cast    goja.Callable
	asArray goja.Callable

	views    map[string]uint32
	reserved map[string]struct{}
	lexical  map[string]struct{}
}

func newScope(in *interp.Interpreter) (*scope, error) {
	mem := newHandleTable()
	rt, err := in.NewRuntime(mem)
	if err != nil {
		return nil, err
	}
	s := &scope{
		rt:      rt,
		vm:      rt.VM,
		mem:     mem,
		views:   make(map[string]uint32),
		lexical: make(map[string]struct{}),
	}
	if err = s.importModules(); err != nil {
		rt.Close()
		return nil, err
	}
	s.reserved = make(map[string]struct{})
	for _, name := range s.vm.GlobalObject().Keys() {
		s.reserved[name] = struct{}{}
	}
	return s, nil
}

func (s *scope) importModules() error {
	np, err := s.rt.Require(interp.ModuleNumeric)
	if err != nil {
		return err
	}
	hostmem, err := s.rt.Require(interp.ModuleHostmem)
	if err != nil {
		return err
	}
	var ok bool
	if s.asArray, ok = goja.AssertFunction(np.Get("asArray")); !ok {
		return fmt.Errorf("pal: numeric module has no asArray")
	}
	if s.cast, ok = goja.AssertFunction(hostmem.Get("cast")); !ok {
		return fmt.Errorf("pal: hostmem module has no cast")
	}
	if err = s.vm.Set(NumericName, np); err != nil {
		return err
	}
	return s.vm.Set(HostmemName, hostmem)
}

// get looks a name up the way script code would. ok is false when the name
// is not bound at all.
func (s *scope) get(name string) (v goja.Value, ok bool, err error) {
	if ex := s.vm.Try(func() { v = s.vm.Get(name) }); ex != nil {
		return nil, false, ex
	}
	return v, v != nil, nil
}

// set binds name to a copied value, dropping any view previously bound to it.
func (s *scope) set(name string, value any) error {
	if err := s.vm.Set(name, value); err != nil {
		return err
	}
	s.drop(name)
	return nil
}

// view builds an NDArray of shape (n, comps) over raw without copying.
func (s *scope) view(raw []byte, n, comps int) (goja.Value, uint32, error) {
	h := s.mem.ToHandle(raw)
	arr, err := s.cast(goja.Undefined(), s.vm.ToValue(h))
	if err == nil {
		var v goja.Value
		v, err = s.asArray(goja.Undefined(), arr, s.vm.ToValue(n), s.vm.ToValue(comps))
		if err == nil {
			return v, h, nil
		}
	}
	s.mem.Release(h)
	return nil, 0, err
}

func (s *scope) bindView(name string, v goja.Value, h uint32) error {
	if err := s.vm.Set(name, v); err != nil {
		s.mem.Release(h)
		return err
	}
	s.drop(name)
	s.views[name] = h
	return nil
}

func (s *scope) drop(name string) {
	if h, ok := s.views[name]; ok {
		s.mem.Release(h)
		delete(s.views, name)
	}
}

func (s *scope) remove(name string) error {
	s.drop(name)
	return s.vm.GlobalObject().Delete(name)
}

// names lists the global names added after the scope was created, both
// global object properties and top-level let, const and class bindings.
func (s *scope) names() []string {
	var out []string
	for _, name := range s.vm.GlobalObject().Keys() {
		if _, ok := s.reserved[name]; !ok {
			out = append(out, name)
		}
	}
	for name := range s.lexical {
		if _, ok := s.reserved[name]; !ok && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// run executes a compiled script. A cancelled ctx interrupts it.
func (s *scope) run(ctx context.Context, sc *interp.Script) (goja.Value, error) {
	v, err := s.runProgram(ctx, sc.Program)
	if err == nil {
		for _, name := range sc.Lexical {
			s.lexical[name] = struct{}{}
		}
	}
	return v, err
}

func (s *scope) runProgram(ctx context.Context, prg *goja.Program) (goja.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ctx.Done() == nil {
		return s.vm.RunProgram(prg)
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			s.vm.Interrupt(ctx.Err())
		case <-stop:
		}
	}()
	v, err := s.vm.RunProgram(prg)
	close(stop)
	<-done
	s.vm.ClearInterrupt()
	return v, err
}

func (s *scope) close() {
	for name, h := range s.views {
		s.mem.Release(h)
		delete(s.views, name)
	}
	s.rt.Close()
}
