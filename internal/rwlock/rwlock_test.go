package rwlock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireReadAllowsConcurrentReaders(t *testing.T) {
	l := New(4)

	var wg sync.WaitGroup
	start := make(chan struct{})
	const readers = 8

	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			<-start
			l.AcquireRead(slot)
			defer l.ReleaseRead(slot)
			time.Sleep(time.Millisecond)
		}(i)
	}

	close(start)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("readers appear to be serialized rather than concurrent")
	}
}

func TestWriteExcludesReadersAndWriters(t *testing.T) {
	l := New(4)

	l.AcquireWrite()
	acquired := make(chan struct{})

	go func() {
		l.AcquireRead(0)
		close(acquired)
		l.ReleaseRead(0)
	}()

	select {
	case <-acquired:
		t.Fatal("reader acquired lock while writer held it")
	case <-time.After(50 * time.Millisecond):
	}

	l.ReleaseWrite()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("reader never acquired lock after writer released")
	}
}

func TestAcquireWriteDrainsExistingReaders(t *testing.T) {
	l := New(2)
	l.AcquireRead(0)

	writerDone := make(chan struct{})
	go func() {
		l.AcquireWrite()
		close(writerDone)
		l.ReleaseWrite()
	}()

	select {
	case <-writerDone:
		t.Fatal("writer proceeded while reader still held the lock")
	case <-time.After(50 * time.Millisecond):
	}

	l.ReleaseRead(0)

	select {
	case <-writerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("writer never proceeded after reader released")
	}
}

func TestTicketsRoundRobin(t *testing.T) {
	var tk Tickets

	seen := map[int]bool{}
	for i := 0; i < 10; i++ {
		seen[tk.Next()] = true
	}

	require.Len(t, seen, 10)
}
