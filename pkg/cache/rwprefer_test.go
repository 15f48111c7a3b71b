package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestRWPreferWriterBlocksNewReaders exercises the starvation guard: once a
// writer is waiting, a reader arriving afterward must not cut in front of it.
func TestRWPreferWriterBlocksNewReaders(t *testing.T) {
	var l rwPreferWriter
	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	l.RLock() // first reader holds the lock
	writerReady := make(chan struct{})
	go func() {
		close(writerReady)
		l.Lock()
		record("writer")
		l.Unlock()
	}()
	<-writerReady
	time.Sleep(20 * time.Millisecond) // let the writer register as pending

	readerDone := make(chan struct{})
	go func() {
		l.RLock()
		record("late-reader")
		l.RUnlock()
		close(readerDone)
	}()
	time.Sleep(20 * time.Millisecond)

	l.RUnlock() // release the original reader; writer should go next

	<-readerDone
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"writer", "late-reader"}, order)
}
