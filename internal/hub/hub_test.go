package hub

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/guessgrid/backend/internal/session"
	"github.com/guessgrid/backend/internal/store"
)

func newTestHub(t *testing.T) (*Hub, *store.Memory) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	st := store.NewMemory()
	h := NewHub(ctx, Deps{
		Store:  st,
		Clock:  clockwork.NewFakeClock(),
		Log:    zap.NewNop(),
		Config: session.DefaultConfig(),
	})
	return h, st
}

func recvSession(t *testing.T, ch <-chan *session.Session) *session.Session {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for hub reply")
		return nil // unreachable
	}
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h, _ := newTestHub(t)
	reply := make(chan *session.Session, 1)

	meta := Metadata{CreatedBy: "budi", Answer: "cat", ImageURL: "https://img.example/1"}
	h.Inbox() <- CreateSession{Code: "ZED123", Meta: meta, Reply: reply}
	s1 := recvSession(t, reply)

	h.Inbox() <- GetSession{Code: "ZED123", Reply: reply}
	s2 := recvSession(t, reply)

	if s1 == nil || s2 == nil || s1 != s2 {
		t.Fatalf("expected same session pointer")
	}
}

func TestHub_Create_TakenCodeReturnsNil(t *testing.T) {
	h, _ := newTestHub(t)
	reply := make(chan *session.Session, 1)

	meta := Metadata{CreatedBy: "budi", Answer: "cat"}
	h.Inbox() <- CreateSession{Code: "ZED123", Meta: meta, Reply: reply}
	if recvSession(t, reply) == nil {
		t.Fatalf("first create failed")
	}

	h.Inbox() <- CreateSession{Code: "ZED123", Meta: meta, Reply: reply}
	if recvSession(t, reply) != nil {
		t.Fatalf("expected nil for taken code")
	}
}

// failingStore passes through to the wrapped store except for one key,
// whose writes fail.
type failingStore struct {
	store.Store
	failKey string
}

func (f *failingStore) Write(ctx context.Context, key string, value []byte) error {
	if key == f.failKey {
		return store.ErrUnavailable
	}
	return f.Store.Write(ctx, key, value)
}

// A create that dies mid-seed must not leave a session ensure would
// later attach to.
func TestHub_Create_FailedSeedIsNotAttachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	fs := &failingStore{
		Store:   store.NewMemory(),
		failKey: store.SessionField("ZED123", "imageUrl"),
	}
	h := NewHub(ctx, Deps{
		Store:  fs,
		Clock:  clockwork.NewFakeClock(),
		Log:    zap.NewNop(),
		Config: session.DefaultConfig(),
	})

	reply := make(chan *session.Session, 1)
	meta := Metadata{CreatedBy: "budi", Answer: "cat", ImageURL: "https://img.example/1"}
	h.Inbox() <- CreateSession{Code: "ZED123", Meta: meta, Reply: reply}
	if recvSession(t, reply) != nil {
		t.Fatalf("create with a failed seed write must return nil")
	}

	h.Inbox() <- EnsureSession{Code: "ZED123", Reply: reply}
	if recvSession(t, reply) != nil {
		t.Fatalf("half-seeded session must not be attachable")
	}
}

func TestHub_Ensure_UnknownCodeReturnsNil(t *testing.T) {
	h, _ := newTestHub(t)
	reply := make(chan *session.Session, 1)

	h.Inbox() <- EnsureSession{Code: "NOPE00", Reply: reply}
	if recvSession(t, reply) != nil {
		t.Fatalf("ensure must not invent sessions the store has never seen")
	}
}

func TestHub_Ensure_AttachesStoredSession(t *testing.T) {
	h, st := newTestHub(t)
	ctx := context.Background()

	// Session seeded by another process sharing the store.
	if err := st.Write(ctx, store.SessionField("AB12CD", "createdAt"), []byte("1000")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := st.Write(ctx, store.SecretAnswerKey("AB12CD"), []byte("cat")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	reply := make(chan *session.Session, 1)
	h.Inbox() <- EnsureSession{Code: "AB12CD", Reply: reply}
	if recvSession(t, reply) == nil {
		t.Fatalf("expected synchronizer for stored session")
	}
}

func TestHub_RemoveForgetsSession(t *testing.T) {
	h, _ := newTestHub(t)
	reply := make(chan *session.Session, 1)

	h.Inbox() <- CreateSession{Code: "ZED123", Meta: Metadata{CreatedBy: "budi", Answer: "cat"}, Reply: reply}
	if recvSession(t, reply) == nil {
		t.Fatalf("create failed")
	}

	h.Inbox() <- RemoveSession{Code: "ZED123"}
	h.Inbox() <- GetSession{Code: "ZED123", Reply: reply}
	if recvSession(t, reply) != nil {
		t.Fatalf("expected session to be forgotten")
	}
}
