package service

import (
	"sync"

	"github.com/eapache/queue"
)

// inbox is an unbounded multi-producer queue drained by one consumer.
// Producers never block; the consumer waits on Signal.
type inbox struct {
	mu     sync.Mutex
	q      *queue.Queue
	signal chan struct{}
}

func newInbox() *inbox {
	return &inbox{
		q:      queue.New(),
		signal: make(chan struct{}, 1),
	}
}

func (b *inbox) push(t task) int {
	b.mu.Lock()
	b.q.Add(t)
	n := b.q.Length()
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
	return n
}

// drain moves every queued task into dst.
func (b *inbox) drain(dst []task) []task {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.q.Length() > 0 {
		dst = append(dst, b.q.Remove().(task))
	}
	return dst
}

func (b *inbox) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.q.Length()
}

func (b *inbox) Signal() <-chan struct{} {
	return b.signal
}
