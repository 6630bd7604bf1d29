// Package leaderboard keeps the append-only record of winning guesses
// for a session. Under the single-winner rule at most one entry is ever
// meaningful, but nothing here assumes that: multiple entries survive
// unreordered so a multi-round variant can reuse the component.
package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/guessgrid/backend/internal/store"
)

// Entry records one winning guess. WonAt is epoch milliseconds.
type Entry struct {
	PlayerName string `json:"name"`
	WonAt      int64  `json:"wonAt"`
}

// SortEntries orders entries ascending by WonAt. The sort is stable, so
// entries with equal timestamps keep their arrival order.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].WonAt < entries[j].WonAt
	})
}

// Board reads and appends leaderboard entries through the shared store.
type Board struct {
	st store.Store
}

func New(st store.Store) *Board {
	return &Board{st: st}
}

// Append adds one entry for the session. Entries are never removed or
// overwritten.
func (b *Board) Append(ctx context.Context, code string, e Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal leaderboard entry: %w", err)
	}
	if _, err := b.st.Append(ctx, store.LeaderboardPrefix(code), payload); err != nil {
		return fmt.Errorf("append leaderboard entry: %w", err)
	}
	return nil
}

// Read returns the session's entries sorted ascending by WonAt,
// regardless of the order they arrived at the store.
func (b *Board) Read(ctx context.Context, code string) ([]Entry, error) {
	var (
		mu      sync.Mutex
		entries []Entry
		badKey  string
	)
	// Subscribe replays current children synchronously before it
	// returns; cancelling right away turns it into a one-shot read.
	cancel, err := b.st.Subscribe(ctx, store.LeaderboardPrefix(code), func(ev store.Event) {
		mu.Lock()
		defer mu.Unlock()
		var e Entry
		if err := json.Unmarshal(ev.Value, &e); err != nil {
			badKey = ev.Key
			return
		}
		entries = append(entries, e)
	})
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	cancel()

	mu.Lock()
	defer mu.Unlock()
	if badKey != "" {
		return nil, fmt.Errorf("read leaderboard: malformed entry at %s", badKey)
	}
	SortEntries(entries)
	return entries, nil
}
