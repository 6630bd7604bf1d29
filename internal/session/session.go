// Package session hosts the per-session synchronizer: one goroutine per
// live session that folds the shared store's change stream into a view,
// drives the game clock, and translates client actions into conditional
// writes. The actor never keeps a second source of truth; everything in
// the view comes back through the store's fan-out, including the effects
// of this client's own writes.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/guessgrid/backend/internal/engine"
	"github.com/guessgrid/backend/internal/leaderboard"
	"github.com/guessgrid/backend/internal/store"
)

type Msg interface{ isSessionMsg() }

type Join struct {
	ClientID string
	Outbox   chan View // where this client wants to receive view snapshots
}

func (Join) isSessionMsg() {}

type Leave struct{ ClientID string }

func (Leave) isSessionMsg() {}

type Reveal struct {
	Row, Col int
}

func (Reveal) isSessionMsg() {}

type SubmitGuess struct {
	PlayerName string
	Text       string
	Reply      chan GuessResult
}

func (SubmitGuess) isSessionMsg() {}

type GetView struct {
	Reply chan View
}

func (GetView) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

// storeEvent carries one store change into the actor loop.
type storeEvent struct{ ev store.Event }

func (storeEvent) isSessionMsg() {}

// View is the merged, read-only projection handed to clients. Grid is a
// snapshot copy; mutating it affects nothing.
type View struct {
	Code            string              `json:"code"`
	Version         int                 `json:"version"`
	Grid            engine.Grid         `json:"grid"`
	RemainingMillis int64               `json:"remainingMillis"`
	Winner          string              `json:"winner"`
	ImageURL        string              `json:"imageUrl"`
	Status          engine.Status       `json:"status"`
	Leaderboard     []leaderboard.Entry `json:"leaderboard"`
}

// Config fixes the board shape and round length for a session.
type Config struct {
	GridSize int
	Duration time.Duration
}

func DefaultConfig() Config {
	return Config{GridSize: 4, Duration: engine.GameDuration}
}

type Session struct {
	code  string
	st    store.Store
	log   *zap.Logger
	clock clockwork.Clock
	cfg   Config

	inbox    chan Msg
	clients  map[string]chan View
	resolver *Resolver

	// Folded state. Only the actor goroutine touches these.
	grid          engine.Grid
	startTime     int64
	gameWinner    string
	metaWinner    string
	imageURL      string
	entries       []leaderboard.Entry
	version       int
	lastRemaining int64

	ticker        clockwork.Ticker
	tickerStopped bool

	ctx    context.Context
	cancel context.CancelFunc
	unsubs []store.CancelFunc
}

// New attaches to a session: it claims the start timestamp if nobody has
// yet, subscribes to the session's subtrees, and starts the actor loop
// and clock tick.
func New(parent context.Context, code string, st store.Store, clock clockwork.Clock, log *zap.Logger, cfg Config) (*Session, error) {
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		code:    code,
		st:      st,
		log:     log.With(zap.String("session", code)),
		clock:   clock,
		cfg:     cfg,
		inbox:   make(chan Msg, inboxCapacity(cfg.GridSize)),
		clients: make(map[string]chan View),
		grid:    engine.NewGrid(cfg.GridSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.resolver = NewResolver(st, clock, log, cfg.Duration)
	s.lastRemaining = cfg.Duration.Milliseconds()

	if err := s.initialize(ctx); err != nil {
		cancel()
		return nil, err
	}

	// Replay is synchronous, so the initial leaves land in the inbox
	// ahead of any Join and the first snapshot a client sees is
	// already folded.
	for _, prefix := range []string{
		store.SessionPrefix(code),
		store.GamePrefix(code),
		store.LeaderboardPrefix(code),
	} {
		unsub, err := st.Subscribe(ctx, prefix, func(ev store.Event) {
			select {
			case s.inbox <- storeEvent{ev: ev}:
			case <-ctx.Done():
			}
		})
		if err != nil {
			s.teardown()
			return nil, err
		}
		s.unsubs = append(s.unsubs, unsub)
	}

	s.ticker = clock.NewTicker(engine.TickInterval)
	go s.loop()
	return s, nil
}

// Inbox exposes the actor mailbox to the transport layer and tests.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// inboxCapacity leaves room for a full synchronous replay of the
// session's subtrees (every grid cell plus the metadata and leaderboard
// leaves) before the loop starts draining.
func inboxCapacity(gridSize int) int {
	if n := gridSize*gridSize + 64; n > 256 {
		return n
	}
	return 256
}

// initialize claims startTime for the session if absent. Losing the race
// to another client is the expected outcome for everyone but the first;
// the grid needs no seed write because an absent cell reads as hidden.
func (s *Session) initialize(ctx context.Context) error {
	now := s.clock.Now().UnixMilli()
	err := s.st.WriteIfAbsent(ctx, store.StartTimeKey(s.code), []byte(strconv.FormatInt(now, 10)))
	switch {
	case err == nil:
		s.log.Info("claimed game start", zap.Int64("startTime", now))
		return nil
	case errors.Is(err, store.ErrConflict):
		return nil
	default:
		return err
	}
}

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.teardown()
			return

		case <-s.ticker.Chan():
			s.handleTick()

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				s.clients[msg.ClientID] = msg.Outbox
				msg.Outbox <- s.snapshot()

			case Leave:
				// Closing the outbox is what lets a ranging writer
				// goroutine on the other end exit.
				if ch, ok := s.clients[msg.ClientID]; ok {
					close(ch)
					delete(s.clients, msg.ClientID)
				}

			case storeEvent:
				s.fold(msg.ev)

			case Reveal:
				s.handleReveal(msg)

			case SubmitGuess:
				s.handleGuess(msg)

			case GetView:
				msg.Reply <- s.snapshot()

			case Shutdown:
				s.teardown()
				return
			}
		}
	}
}

// fold merges one remote change into the local view. Folding is the only
// way local state moves, so a transient disconnect delays convergence
// instead of corrupting it.
func (s *Session) fold(ev store.Event) {
	changed := false

	switch {
	case ev.Key == store.StartTimeKey(s.code):
		ms, err := strconv.ParseInt(string(ev.Value), 10, 64)
		if err != nil {
			s.log.Warn("malformed start time", zap.String("key", ev.Key), zap.ByteString("value", ev.Value))
			break
		}
		s.startTime = ms
		changed = true

	case ev.Key == store.GameWinnerKey(s.code):
		s.gameWinner = string(ev.Value)
		s.checkWinnerAgreement()
		changed = true

	case ev.Key == store.SessionField(s.code, "winner"):
		s.metaWinner = string(ev.Value)
		s.checkWinnerAgreement()
		changed = true

	case ev.Key == store.SessionField(s.code, "imageUrl"):
		s.imageURL = string(ev.Value)
		changed = true

	case strings.HasPrefix(ev.Key, store.LeaderboardPrefix(s.code)+"/"):
		var e leaderboard.Entry
		if err := json.Unmarshal(ev.Value, &e); err != nil {
			s.log.Warn("malformed leaderboard entry", zap.String("key", ev.Key), zap.Error(err))
			break
		}
		s.entries = append(s.entries, e)
		leaderboard.SortEntries(s.entries)
		changed = true

	default:
		if row, col, ok := store.ParseGridCellKey(s.code, ev.Key); ok {
			// Monotone fold: a cell event can only reveal. Anything
			// else under the grid subtree is ignored.
			if string(ev.Value) != "true" || !s.grid.InBounds(row, col) || s.grid[row][col] {
				break
			}
			s.grid[row][col] = true
			changed = true
		}
	}

	if changed {
		s.version++
		s.broadcast()
	}
}

// checkWinnerAgreement guards the one invariant the engine cannot fix on
// its own: the game winner and the mirrored session winner disagreeing
// means the backing store lost a write, so it is shouted, not reconciled.
func (s *Session) checkWinnerAgreement() {
	if s.gameWinner != "" && s.metaWinner != "" && s.gameWinner != s.metaWinner {
		s.log.DPanic("winner mismatch between game state and session metadata",
			zap.String("gameWinner", s.gameWinner),
			zap.String("metaWinner", s.metaWinner))
	}
}

func (s *Session) handleTick() {
	remaining := s.remaining()
	if remaining != s.lastRemaining {
		s.lastRemaining = remaining
		s.version++
		s.broadcast()
	}
	if engine.Terminal(s.winner(), remaining) && !s.tickerStopped {
		s.ticker.Stop()
		s.tickerStopped = true
	}
}

func (s *Session) handleReveal(msg Reveal) {
	if engine.Terminal(s.winner(), s.remaining()) {
		s.log.Debug("reveal after terminal state dropped",
			zap.Int("row", msg.Row), zap.Int("col", msg.Col))
		return
	}
	if !s.grid.InBounds(msg.Row, msg.Col) {
		s.log.Warn("reveal out of bounds", zap.Int("row", msg.Row), zap.Int("col", msg.Col))
		return
	}
	if s.grid[msg.Row][msg.Col] {
		// Already revealed; a repeat write would be harmless but noisy.
		return
	}
	if err := s.st.Write(s.ctx, store.GridCellKey(s.code, msg.Row, msg.Col), []byte("true")); err != nil {
		s.log.Error("reveal write failed", zap.Error(err))
	}
	// The grid itself updates when the store echoes the write back.
}

func (s *Session) handleGuess(msg SubmitGuess) {
	if msg.PlayerName == "" {
		msg.Reply <- GuessResult{Outcome: OutcomeRejected, Err: engine.ErrEmptyPlayerName}
		return
	}
	if winner := s.winner(); winner != "" {
		msg.Reply <- GuessResult{Outcome: OutcomeAlreadyWon, Err: &engine.GameOverError{Reason: engine.ReasonAlreadyWon}}
		return
	}
	if s.remaining() <= 0 {
		msg.Reply <- GuessResult{Outcome: OutcomeTimeExpired, Err: &engine.GameOverError{Reason: engine.ReasonTimeExpired}}
		return
	}

	// Resolution reads and writes the store, so it runs off the loop;
	// the compare-and-set makes the outcome authoritative regardless
	// of what this actor believed when it dispatched.
	go func(code string, startTime int64) {
		msg.Reply <- s.resolver.Resolve(s.ctx, code, msg.PlayerName, msg.Text, startTime)
	}(s.code, s.startTime)
}

func (s *Session) winner() string {
	if s.gameWinner != "" {
		return s.gameWinner
	}
	return s.metaWinner
}

func (s *Session) remaining() int64 {
	return engine.Remaining(s.startTime, s.clock.Now().UnixMilli(), s.cfg.Duration)
}

func (s *Session) snapshot() View {
	remaining := s.remaining()
	winner := s.winner()
	return View{
		Code:            s.code,
		Version:         s.version,
		Grid:            s.grid.Clone(),
		RemainingMillis: remaining,
		Winner:          winner,
		ImageURL:        s.imageURL,
		Status:          engine.StatusOf(winner, remaining),
		Leaderboard:     append([]leaderboard.Entry(nil), s.entries...),
	}
}

func (s *Session) broadcast() {
	snap := s.snapshot()
	for id, ch := range s.clients {
		select {
		case ch <- snap:
			// ok
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(s.clients, id)
		}
	}
}

func (s *Session) teardown() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	if s.ticker != nil && !s.tickerStopped {
		s.ticker.Stop()
		s.tickerStopped = true
	}
	for id, ch := range s.clients {
		close(ch)
		delete(s.clients, id)
	}
	s.cancel()
}
