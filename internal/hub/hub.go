// Package hub owns the registry of live session synchronizers, keyed by
// session code, and runs the setup flow that seeds a new session's
// metadata into the shared store.
package hub

import (
	"context"
	"strconv"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/guessgrid/backend/internal/db"
	"github.com/guessgrid/backend/internal/session"
	"github.com/guessgrid/backend/internal/store"
)

type HubMsg interface{ isHubMsg() }

// Metadata is what the setup flow provides for a new session. Answer is
// the secret; it goes to the secrets subtree and is never echoed back.
type Metadata struct {
	CreatedBy string
	Answer    string
	ImageURL  string
}

type CreateSession struct {
	Code  string
	Meta  Metadata
	Reply chan *session.Session // nil when the code is already taken
}

type GetSession struct {
	Code  string
	Reply chan *session.Session
}

// EnsureSession attaches a synchronizer for a session that already
// exists in the store, starting one if this process has none yet.
type EnsureSession struct {
	Code  string
	Reply chan *session.Session
}

type RemoveSession struct {
	Code string
}

type ShutdownHub struct{}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (EnsureSession) isHubMsg() {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

// Deps are the collaborators injected into the hub. Repo may be nil when
// no database is configured; metadata archiving is then skipped.
type Deps struct {
	Store  store.Store
	Clock  clockwork.Clock
	Log    *zap.Logger
	Config session.Config
	Repo   *db.Repo
}

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	deps     Deps
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, deps Deps) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Session),
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				msg.Reply <- h.create(msg.Code, msg.Meta)

			case GetSession:
				msg.Reply <- h.sessions[msg.Code] // May be nil

			case EnsureSession:
				msg.Reply <- h.ensure(msg.Code)

			case RemoveSession:
				if s := h.sessions[msg.Code]; s != nil {
					s.Inbox() <- session.Shutdown{}
					delete(h.sessions, msg.Code)
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// create seeds the session's metadata. The secret's conditional write
// doubles as the code-uniqueness check: losing it means the code is in
// use, and the caller should generate a fresh one. createdAt goes in
// last because it is the readiness marker ensure gates on; a failed
// seed burns the code but never leaves an attachable half-session.
func (h *Hub) create(code string, meta Metadata) *session.Session {
	if h.sessions[code] != nil {
		return nil
	}

	now := h.deps.Clock.Now()
	if err := h.deps.Store.WriteIfAbsent(h.ctx, store.SecretAnswerKey(code), []byte(meta.Answer)); err != nil {
		h.deps.Log.Warn("session code unavailable", zap.String("code", code), zap.Error(err))
		return nil
	}

	seed := map[string]string{
		store.SessionField(code, "createdBy"): meta.CreatedBy,
		store.SessionField(code, "imageUrl"):  meta.ImageURL,
	}
	for k, v := range seed {
		if err := h.deps.Store.Write(h.ctx, k, []byte(v)); err != nil {
			h.deps.Log.Error("session seed write failed", zap.String("key", k), zap.Error(err))
			return nil
		}
	}
	createdAtKey := store.SessionField(code, "createdAt")
	if err := h.deps.Store.Write(h.ctx, createdAtKey, []byte(strconv.FormatInt(now.UnixMilli(), 10))); err != nil {
		h.deps.Log.Error("session seed write failed", zap.String("key", createdAtKey), zap.Error(err))
		return nil
	}

	if h.deps.Repo != nil {
		rec := db.Session{
			Code:      code,
			ImageURL:  meta.ImageURL,
			Answer:    meta.Answer,
			CreatedBy: meta.CreatedBy,
			CreatedAt: now,
		}
		if err := h.deps.Repo.CreateSession(h.ctx, rec); err != nil {
			// Archive only; the store already holds the session.
			h.deps.Log.Error("session archive failed", zap.String("code", code), zap.Error(err))
		}
	}

	return h.start(code)
}

// ensure attaches to an existing session, refusing codes the store has
// never seen.
func (h *Hub) ensure(code string) *session.Session {
	if s := h.sessions[code]; s != nil {
		return s
	}
	_, ok, err := h.deps.Store.Read(h.ctx, store.SessionField(code, "createdAt"))
	if err != nil {
		h.deps.Log.Error("session lookup failed", zap.String("code", code), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	return h.start(code)
}

func (h *Hub) start(code string) *session.Session {
	s, err := session.New(h.ctx, code, h.deps.Store, h.deps.Clock, h.deps.Log, h.deps.Config)
	if err != nil {
		h.deps.Log.Error("session start failed", zap.String("code", code), zap.Error(err))
		return nil
	}
	h.sessions[code] = s
	return s
}

func (h *Hub) shutdown() {
	for code, s := range h.sessions {
		s.Inbox() <- session.Shutdown{}
		delete(h.sessions, code)
	}
	h.cancel()
}
