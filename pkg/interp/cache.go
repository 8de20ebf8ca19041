package interp

import (
	"sync"

	"github.com/dop251/goja"
	"golang.org/x/crypto/blake2b"
)

const defaultCacheSize = 512

type programKey [blake2b.Size256]byte

func keyOf(name, src string) programKey {
	h, _ := blake2b.New256(nil)
	_, _ = h.Write([]byte(name))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(src))
	var k programKey
	h.Sum(k[:0])
	return k
}

// programCache holds compiled programs. goja programs are not tied to a
// runtime, so one entry serves every scope in the process.
type programCache struct {
	mu      sync.Mutex
	max     int
	entries map[programKey]*Script
	hits    uint64
	misses  uint64
}

func newProgramCache(max int) *programCache {
	return &programCache{max: max, entries: make(map[programKey]*Script)}
}

func (c *programCache) get(k programKey) (*Script, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prg, ok := c.entries[k]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return prg, ok
}

func (c *programCache) put(k programKey, prg *Script) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.max {
		// No recency tracking: a full cache starts over.
		clear(c.entries)
	}
	c.entries[k] = prg
}

func (c *programCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// CacheStats describes the shared program cache.
type CacheStats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

func (c *programCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}

// Script is a compiled program plus the global lexical names it declares.
type Script struct {
	Program *goja.Program
	Lexical []string
}

// CompileScript returns the compiled form of src, compiling it at most once
// per (name, src) pair for the whole process.
func (in *Interpreter) CompileScript(name, src string) (*Script, error) {
	k := keyOf(name, src)
	if sc, ok := in.programs.get(k); ok {
		return sc, nil
	}
	parsed, err := goja.Parse(name, src)
	if err != nil {
		return nil, err
	}
	prg, err := goja.CompileAST(parsed, false)
	if err != nil {
		return nil, err
	}
	sc := &Script{Program: prg, Lexical: lexicalNames(parsed)}
	in.programs.put(k, sc)
	return sc, nil
}

func (in *Interpreter) Compile(name, src string) (*goja.Program, error) {
	sc, err := in.CompileScript(name, src)
	if err != nil {
		return nil, err
	}
	return sc.Program, nil
}

func (in *Interpreter) CacheStats() CacheStats {
	return in.programs.stats()
}
