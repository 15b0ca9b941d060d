package util

import (
	"bytes"
	"fmt"
	"runtime/debug"
	"sync"
)

// Group represents a class of work and forms a namespace in which
// units of work can be executed with duplicate suppression.
type Group[T any] struct {
	mu sync.Mutex          // protects m
	m  map[string]*call[T] // lazily initialized
}

// Result holds the results of DoChan, so they can be passed on a channel.
type Result[T any] struct {
	Val    T
	Err    error
	Shared bool
}

// call is an in-flight Group.DoChan call
type call[T any] struct {
	val T
	err error

	// guarded by the group mutex
	dups  int
	chans []chan<- Result[T]
}

// DoChan runs fn in its own goroutine, making sure that only one execution
// is in-flight for a given key at a time. Duplicate callers are attached to
// the running call and receive the same results. Each returned channel is
// buffered, so a caller may stop waiting without blocking the others.
//
// A panic in fn is recovered and delivered to every waiter as an error
// carrying the panic value and stack.
func (g *Group[T]) DoChan(key string, fn func() (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[string]*call[T])
	}
	if c, ok := g.m[key]; ok {
		c.dups++
		c.chans = append(c.chans, ch)
		g.mu.Unlock()
		return ch
	}
	c := &call[T]{chans: []chan<- Result[T]{ch}}
	g.m[key] = c
	g.mu.Unlock()

	go g.doCall(c, key, fn)

	return ch
}

func (g *Group[T]) doCall(c *call[T], key string, fn func() (T, error)) {
	defer func() {
		if r := recover(); r != nil {
			c.err = newPanicError(r)
		}

		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.m, key)
		res := Result[T]{Val: c.val, Err: c.err, Shared: c.dups > 0}
		for _, ch := range c.chans {
			ch <- res
		}
	}()

	c.val, c.err = fn()
}

func newPanicError(v any) error {
	stack := debug.Stack()

	// The first line of the stack trace is of the form "goroutine N [status]:"
	// but by the time the panic reaches a waiter the goroutine no longer
	// exists. Trim out the misleading line.
	if line := bytes.IndexByte(stack, '\n'); line >= 0 {
		stack = stack[line+1:]
	}
	return &PanicError{Value: v, Stack: stack}
}

// PanicError is an arbitrary value recovered from a panic
// with the stack trace during the execution of given function.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("%v\n\n%s", p.Value, p.Stack)
}

func (p *PanicError) Unwrap() error {
	err, ok := p.Value.(error)
	if !ok {
		return nil
	}
	return err
}
