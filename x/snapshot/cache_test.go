package snapshot

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

func TestEmptyUntilFirstStore(t *testing.T) {
	c := New[int]()
	if v, ok := c.Load(); ok || v != 0 {
		t.Fatalf("Load() = %d,%v before Store", v, ok)
	}
	c.Store(0)
	if v, ok := c.Load(); !ok || v != 0 {
		t.Fatalf("Load() = %d,%v; a stored zero must be present", v, ok)
	}
}

func TestStoreCopiesValue(t *testing.T) {
	type pair struct{ a, b int }
	c := New[pair]()
	v := pair{1, 1}
	c.Store(v)
	v.a = 99
	if got, _ := c.Load(); got.a != 1 {
		t.Fatalf("cache aliased caller value: %+v", got)
	}
}

// Every write stores a struct whose fields all carry the same generation.
// Readers must only ever see a generation that some completed Store wrote.
type wide struct {
	gen      uint64
	a, b, c  uint64
	checksum uint64
}

func mkWide(g uint64) wide { return wide{gen: g, a: g, b: g * 2, c: g * 3, checksum: g * 6} }

func (w wide) consistent() bool {
	return w.a == w.gen && w.b == w.gen*2 && w.c == w.gen*3 && w.checksum == w.a+w.b+w.c
}

func TestConcurrentReadersNeverSeeTornValues(t *testing.T) {
	c := New[wide]()
	const writes = 20000
	const readers = 8

	var published atomic.Uint64 // highest generation fully stored
	var wg sync.WaitGroup
	var torn, fromFuture atomic.Int64
	done := make(chan struct{})

	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				v, ok := c.Load()
				if !ok {
					continue
				}
				if !v.consistent() {
					torn.Add(1)
				}
				if v.gen > published.Load()+1 {
					fromFuture.Add(1)
				}
				runtime.Gosched()
			}
		}()
	}

	for g := uint64(1); g <= writes; g++ {
		c.Store(mkWide(g))
		published.Store(g)
	}
	close(done)
	wg.Wait()

	if n := torn.Load(); n != 0 {
		t.Fatalf("%d torn reads", n)
	}
	if n := fromFuture.Load(); n != 0 {
		t.Fatalf("%d reads of values never written", n)
	}
	if v, ok := c.Load(); !ok || v.gen != writes {
		t.Fatalf("final value = %+v,%v", v, ok)
	}
}
