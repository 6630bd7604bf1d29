package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is the in-process Store used by the server and by tests. All
// writes are serialized under one mutex, which is what makes
// WriteIfAbsent a linearizable compare-and-set here.
type Memory struct {
	mu       sync.Mutex
	data     map[string][]byte
	seq      uint64
	nextSub  uint64
	watchers map[uint64]*watcher
}

func NewMemory() *Memory {
	return &Memory{
		data:     make(map[string][]byte),
		watchers: make(map[uint64]*watcher),
	}
}

func (m *Memory) Read(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Write(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(key, value)
	return nil
}

func (m *Memory) WriteIfAbsent(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.data[key]; exists {
		return ErrConflict
	}
	m.put(key, value)
	return nil
}

func (m *Memory) Append(_ context.Context, listKey string, value []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	// Zero-padded so lexicographic child order equals insertion order.
	childKey := fmt.Sprintf("%s/%020d", listKey, m.seq)
	m.put(childKey, value)
	return childKey, nil
}

func (m *Memory) Subscribe(_ context.Context, prefix string, fn func(Event)) (CancelFunc, error) {
	m.mu.Lock()

	// Replay current leaves synchronously, in key order, before any
	// live event can be observed.
	keys := make([]string, 0, 8)
	for k := range m.data {
		if underPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fn(Event{Key: k, Value: append([]byte(nil), m.data[k]...)})
	}

	w := &watcher{prefix: prefix, fn: fn}
	w.cond = sync.NewCond(&w.mu)
	id := m.nextSub
	m.nextSub++
	m.watchers[id] = w
	m.mu.Unlock()

	go w.run()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers, id)
			m.mu.Unlock()
			w.close()
		})
	}
	return cancel, nil
}

// put stores the value and queues the change for every matching watcher.
// Caller holds m.mu, so events are queued in commit order.
func (m *Memory) put(key string, value []byte) {
	m.data[key] = append([]byte(nil), value...)
	for _, w := range m.watchers {
		if underPrefix(key, w.prefix) {
			w.enqueue(Event{Key: key, Value: append([]byte(nil), value...)})
		}
	}
}

func underPrefix(key, prefix string) bool {
	return key == prefix || strings.HasPrefix(key, prefix+"/")
}

// watcher delivers events to one subscriber in order on a dedicated
// goroutine, so a slow callback can never block a writer.
type watcher struct {
	prefix string
	fn     func(Event)

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
}

func (w *watcher) enqueue(ev Event) {
	w.mu.Lock()
	if !w.closed {
		w.queue = append(w.queue, ev)
		w.cond.Signal()
	}
	w.mu.Unlock()
}

func (w *watcher) close() {
	w.mu.Lock()
	w.closed = true
	w.cond.Signal()
	w.mu.Unlock()
}

func (w *watcher) run() {
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if w.closed {
			w.mu.Unlock()
			return
		}
		batch := w.queue
		w.queue = nil
		w.mu.Unlock()

		for _, ev := range batch {
			w.fn(ev)
		}
	}
}
