// Package store defines the shared state store the game engine is built
// on: a key/value tree with point reads, point writes, a conditional
// write-if-absent primitive, ordered list appends, and subtree change
// subscriptions. The store is the sole arbiter of write order; every
// client folds its view from the same change stream.
package store

import (
	"context"
	"errors"
)

// ErrConflict is returned by WriteIfAbsent when the key already holds a
// value. It is an expected outcome under concurrent operation (a lost
// init or win race), not a fault: re-read the authoritative state and
// move on, never retry the same conditional write blindly.
var ErrConflict = errors.New("store: conflict")

// ErrUnavailable reports a transport or backend failure. The caller
// decides whether to retry; the store does not retry on its own.
var ErrUnavailable = errors.New("store: unavailable")

// Event is one leaf change delivered to a subscriber.
type Event struct {
	Key   string
	Value []byte
}

// CancelFunc tears down a subscription. Safe to call more than once.
type CancelFunc func()

// Store is the conditional-write key/value interface the engine requires.
//
// WriteIfAbsent must be a linearizable per-key compare-and-set on "key
// previously absent". Without it the single-winner and single-init
// invariants cannot be enforced, so it is a required capability of any
// backing implementation, not an optimization.
type Store interface {
	// Read returns the value at key, with ok=false when absent.
	Read(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Write unconditionally overwrites the value at key.
	Write(ctx context.Context, key string, value []byte) error

	// WriteIfAbsent writes only if key currently holds no value,
	// returning ErrConflict otherwise.
	WriteIfAbsent(ctx context.Context, key string, value []byte) error

	// Append stores value under a fresh, uniquely-ordered child of
	// listKey and returns the child key. Children enumerate in
	// insertion order.
	Append(ctx context.Context, listKey string, value []byte) (childKey string, err error)

	// Subscribe registers fn for every leaf under prefix. Current
	// leaves are replayed synchronously, in key order, before
	// Subscribe returns; subsequent changes are delivered in commit
	// order on a dedicated goroutine. fn must not call back into the
	// store synchronously; hand the event to a channel instead.
	Subscribe(ctx context.Context, prefix string, fn func(Event)) (CancelFunc, error)
}
