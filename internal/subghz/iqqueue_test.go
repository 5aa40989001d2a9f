package subghz

import (
	"testing"
	"time"
)

func TestIQQueuePushPopOrdersFIFO(t *testing.T) {
	q := newIQQueue(4)
	q.Push([]byte{1})
	q.Push([]byte{2})
	q.Push([]byte{3})

	c, ok := q.PopWithTimeout(time.Second)
	if !ok || len(c) != 1 || c[0] != 1 {
		t.Fatalf("expected first chunk {1}, got %v ok=%v", c, ok)
	}
	c, ok = q.PopWithTimeout(time.Second)
	if !ok || c[0] != 2 {
		t.Fatalf("expected second chunk {2}, got %v ok=%v", c, ok)
	}
}

func TestIQQueueDropsOldestWhenFull(t *testing.T) {
	q := newIQQueue(2)
	q.Push([]byte{1})
	q.Push([]byte{2})
	dropped := q.Push([]byte{3})
	if !dropped {
		t.Fatalf("expected Push to report dropping the oldest chunk once full")
	}
	if q.Dropped() != 1 {
		t.Fatalf("expected dropped counter to be 1, got %d", q.Dropped())
	}

	c, ok := q.PopWithTimeout(time.Second)
	if !ok || c[0] != 2 {
		t.Fatalf("expected the oldest-surviving chunk {2}, got %v ok=%v", c, ok)
	}
}

func TestIQQueuePopWithTimeoutExpiresOnEmpty(t *testing.T) {
	q := newIQQueue(2)
	start := time.Now()
	_, ok := q.PopWithTimeout(20 * time.Millisecond)
	if ok {
		t.Fatalf("expected timeout on an empty queue")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("expected PopWithTimeout to wait out the timeout")
	}
}

func TestNewIQQueueDefaultsInvalidCapacity(t *testing.T) {
	q := newIQQueue(0)
	if q.capacity != 512 {
		t.Fatalf("expected default capacity of 512, got %d", q.capacity)
	}
}
