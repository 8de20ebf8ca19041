package pal

import (
	"fmt"
	"sync"

	"github.com/dop251/goja"
)

// handleTable maps the integer handles written into a scope to host memory.
// hostmem.cast resolves a handle into an ArrayBuffer exactly once; releasing
// the handle detaches that ArrayBuffer so every view over it stops working.
type handleTable struct {
	mu    sync.Mutex
	slots []memSlot
	free  []uint32
}

type memSlot struct {
	data  []byte
	buf   goja.ArrayBuffer
	bound bool
	live  bool
}

func newHandleTable() *handleTable {
	// Handle 0 is reserved so that a zero value never resolves.
	return &handleTable{slots: make([]memSlot, 1)}
}

func (t *handleTable) ToHandle(data []byte) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var idx uint32
	if len(t.free) > 0 {
		idx = t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, memSlot{})
	}
	t.slots[idx] = memSlot{data: data, live: true}
	return idx
}

func (t *handleTable) Resolve(vm *goja.Runtime, handle uint32) (goja.ArrayBuffer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if handle == 0 || int(handle) >= len(t.slots) || !t.slots[handle].live {
		return goja.ArrayBuffer{}, fmt.Errorf("hostmem: unknown handle %d", handle)
	}
	s := &t.slots[handle]
	if !s.bound {
		s.buf = vm.NewArrayBuffer(s.data)
		s.bound = true
	}
	return s.buf, nil
}

// Release frees a handle. It must run on the goroutine that owns the runtime.
func (t *handleTable) Release(handle uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if handle == 0 || int(handle) >= len(t.slots) || !t.slots[handle].live {
		return
	}
	if s := t.slots[handle]; s.bound {
		s.buf.Detach()
	}
	t.slots[handle] = memSlot{}
	t.free = append(t.free, handle)
}

// Live returns the number of handles in use.
func (t *handleTable) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots) - 1 - len(t.free)
}
