package realtime

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerRunsLastOnce(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var runs int64
	var last int64
	for i := 1; i <= 5; i++ {
		n := int64(i)
		d.Do("row", func() {
			atomic.AddInt64(&runs, 1)
			atomic.StoreInt64(&last, n)
		})
	}
	time.Sleep(60 * time.Millisecond)
	if got := atomic.LoadInt64(&runs); got != 1 {
		t.Fatalf("runs = %d, want 1", got)
	}
	if got := atomic.LoadInt64(&last); got != 5 {
		t.Fatalf("last = %d, want 5", got)
	}
}

func TestDebouncerIndependentKeys(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	var runs int64
	d.Do("a", func() { atomic.AddInt64(&runs, 1) })
	d.Do("b", func() { atomic.AddInt64(&runs, 1) })
	time.Sleep(40 * time.Millisecond)
	if got := atomic.LoadInt64(&runs); got != 2 {
		t.Fatalf("runs = %d, want 2", got)
	}
}

func TestDebouncerZeroWindowIsSynchronous(t *testing.T) {
	d := NewDebouncer(0)
	ran := false
	d.Do("row", func() { ran = true })
	if !ran {
		t.Fatal("zero-window debounce should run inline")
	}
}

func TestDebouncerCancelAll(t *testing.T) {
	d := NewDebouncer(15 * time.Millisecond)
	var runs int64
	d.Do("row", func() { atomic.AddInt64(&runs, 1) })
	d.CancelAll()
	time.Sleep(40 * time.Millisecond)
	if got := atomic.LoadInt64(&runs); got != 0 {
		t.Fatalf("runs = %d, want 0 after CancelAll", got)
	}
}

func TestDebouncerCancelAllBeatsFiredTimer(t *testing.T) {
	d := NewDebouncer(5 * time.Millisecond)
	var runs int64
	d.Do("row", func() { atomic.AddInt64(&runs, 1) })

	// Hold the mutex past the window so the timer fires and its callback
	// parks waiting for the lock, then cancel before releasing it.
	d.mu.Lock()
	time.Sleep(30 * time.Millisecond)
	d.cancelAllLocked()
	d.mu.Unlock()

	time.Sleep(30 * time.Millisecond)
	if got := atomic.LoadInt64(&runs); got != 0 {
		t.Fatalf("runs = %d, want 0 (cancelled work ran after teardown)", got)
	}

	// The debouncer stays usable after teardown.
	d.Do("row", func() { atomic.AddInt64(&runs, 1) })
	time.Sleep(30 * time.Millisecond)
	if got := atomic.LoadInt64(&runs); got != 1 {
		t.Fatalf("runs = %d, want 1 after rescheduling", got)
	}
}
