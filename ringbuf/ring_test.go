package ringbuf_test

import (
	"sync"
	"testing"

	"github.com/ananos/omx-go/ringbuf"
)

func TestRingFIFOOrder(t *testing.T) {
	r := ringbuf.New[int](4)
	for i := 0; i < 4; i++ {
		if !r.Push(i) {
			t.Fatalf("push %d: unexpected full", i)
		}
	}
	if r.Push(99) {
		t.Fatal("push into full ring should fail")
	}
	for i := 0; i < 4; i++ {
		v, ok := r.Pop()
		if !ok || v != i {
			t.Fatalf("pop %d: got (%d, %v)", i, v, ok)
		}
	}
	if _, ok := r.Pop(); ok {
		t.Fatal("pop from empty ring should fail")
	}
}

func TestRingCapacityRoundsUpToPowerOfTwo(t *testing.T) {
	r := ringbuf.New[int](5)
	if r.Cap() != 8 {
		t.Fatalf("capacity = %d, want 8", r.Cap())
	}
}

func TestRingConcurrentProducerConsumer(t *testing.T) {
	r := ringbuf.New[int](1024)
	const n = 4000
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			for !r.Push(i) {
			}
		}
	}()
	seen := make([]bool, n)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			var v int
			for {
				if val, ok := r.Pop(); ok {
					v = val
					break
				}
			}
			seen[v] = true
		}
	}()
	wg.Wait()
	for i, ok := range seen {
		if !ok {
			t.Fatalf("value %d never observed", i)
		}
	}
}
