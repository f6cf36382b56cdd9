// Package arena issues opaque integer tokens for host-side values.
//
// Engine backends that keep their objects on the Go side hand these tokens
// across the [native.Module] boundary instead of raw addresses. A token is
// never reused within one arena, so a stale token is always detected.
package arena

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownHandle is returned for a token the arena never issued or
	// has already released.
	ErrUnknownHandle = errors.New("unknown handle")
	// ErrDoubleRelease is returned when a released token is released again.
	ErrDoubleRelease = errors.New("handle released twice")
)

// Arena maps tokens to values of type T. The zero value is ready to use.
type Arena[T any] struct {
	next     uint32
	values   map[uint32]T
	released map[uint32]struct{}
	mu       sync.Mutex
}

// Put stores v and returns a fresh non-zero token.
func (a *Arena[T]) Put(v T) uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.values == nil {
		a.values = make(map[uint32]T)
		a.released = make(map[uint32]struct{})
	}

	a.next++
	a.values[a.next] = v
	return a.next
}

// Get returns the value behind token.
func (a *Arena[T]) Get(token uint32) (T, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	v, ok := a.values[token]
	if !ok {
		var zero T
		return zero, a.missing(token)
	}
	return v, nil
}

// Release forgets token and returns the value it referred to.
func (a *Arena[T]) Release(token uint32) (T, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	v, ok := a.values[token]
	if !ok {
		var zero T
		return zero, a.missing(token)
	}
	delete(a.values, token)
	a.released[token] = struct{}{}
	return v, nil
}

func (a *Arena[T]) missing(token uint32) error {
	if _, ok := a.released[token]; ok {
		return fmt.Errorf("%w: %d", ErrDoubleRelease, token)
	}
	return fmt.Errorf("%w: %d", ErrUnknownHandle, token)
}

// Live returns the outstanding tokens in issue order.
func (a *Arena[T]) Live() []uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	tokens := make([]uint32, 0, len(a.values))
	for t := range a.values {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	return tokens
}

// Len returns the number of outstanding tokens.
func (a *Arena[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.values)
}
