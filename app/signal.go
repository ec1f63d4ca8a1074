package app

import (
	"context"
	"time"
)

// mailbox is a one-slot channel in which a newer value replaces an unread
// one. Post never blocks. Only one goroutine may Post.
type mailbox[T any] struct {
	ch chan T
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{ch: make(chan T, 1)}
}

func (m *mailbox[T]) Post(v T) {
	for {
		select {
		case m.ch <- v:
			return
		default:
		}
		select {
		case <-m.ch:
		default:
		}
	}
}

func (m *mailbox[T]) C() <-chan T {
	return m.ch
}

func (m *mailbox[T]) TryTake() (T, bool) {
	select {
	case v := <-m.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// ackSignal is a binary semaphore given by the transport's delivery
// confirmation of a single publish and taken by the publisher with a bounded
// wait.
type ackSignal struct {
	ch chan struct{}
}

func newAckSignal() *ackSignal {
	return &ackSignal{ch: make(chan struct{}, 1)}
}

func (a *ackSignal) Give() {
	select {
	case a.ch <- struct{}{}:
	default:
	}
}

func (a *ackSignal) Wait(ctx context.Context, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-a.ch:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
