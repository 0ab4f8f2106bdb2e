// Package settle counts in-flight asynchronous work and lets callers wait
// until it has drained.
package settle

import (
	"context"
	"sync"
)

// Group tracks outstanding work. Unlike sync.WaitGroup, Add may be called
// while another goroutine waits. The zero value is ready to use.
type Group struct {
	mu      sync.Mutex
	n       int
	waiters []chan struct{}
}

// Add registers one unit of work.
func (g *Group) Add() {
	g.mu.Lock()
	g.n++
	g.mu.Unlock()
}

// Done marks one unit of work finished.
func (g *Group) Done() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.n == 0 {
		panic("settle: Done without Add")
	}
	g.n--
	if g.n == 0 {
		for _, ch := range g.waiters {
			close(ch)
		}
		g.waiters = nil
	}
}

// Go runs fn in a new goroutine tracked by the group.
func (g *Group) Go(fn func()) {
	g.Add()
	go func() {
		defer g.Done()
		fn()
	}()
}

// Pending returns the number of outstanding units.
func (g *Group) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

// Wait blocks until no work is outstanding or ctx is done.
func (g *Group) Wait(ctx context.Context) error {
	g.mu.Lock()
	if g.n == 0 {
		g.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	g.waiters = append(g.waiters, ch)
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
