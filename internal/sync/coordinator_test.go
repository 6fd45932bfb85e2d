package sync

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestRecentlyWrittenConsumedOnce(t *testing.T) {
	c := New(50*time.Millisecond, 10*time.Millisecond)
	c.MarkRecentlyWritten("/a/b.md")

	if !c.ConsumeRecentlyWritten("/a/b.md") {
		t.Fatal("expected first consume to report true")
	}
	if c.ConsumeRecentlyWritten("/a/b.md") {
		t.Fatal("expected second consume to report false (already consumed)")
	}
}

func TestRecentlyWrittenExpires(t *testing.T) {
	c := New(10*time.Millisecond, 10*time.Millisecond)
	c.MarkRecentlyWritten("/a/b.md")
	time.Sleep(20 * time.Millisecond)
	if c.ConsumeRecentlyWritten("/a/b.md") {
		t.Fatal("expected marker to have expired")
	}
}

func TestDebounceCollapsesBursts(t *testing.T) {
	c := New(time.Second, 30*time.Millisecond)
	var calls int32
	for i := 0; i < 5; i++ {
		c.Debounce("/a/b.md", func() { atomic.AddInt32(&calls, 1) })
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(80 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}
