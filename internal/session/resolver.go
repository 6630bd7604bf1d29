package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/guessgrid/backend/internal/engine"
	"github.com/guessgrid/backend/internal/leaderboard"
	"github.com/guessgrid/backend/internal/store"
)

// Outcome classifies a guess submission.
type Outcome string

const (
	OutcomeAccepted    Outcome = "accepted"
	OutcomeIncorrect   Outcome = "incorrect"
	OutcomeAlreadyWon  Outcome = "already_won"
	OutcomeTimeExpired Outcome = "time_expired"
	OutcomeRejected    Outcome = "rejected"
	OutcomeError       Outcome = "error"
)

// GuessResult is the definitive answer to one submission. A failed
// conditional write is reported as "too late", never as something to
// retry.
type GuessResult struct {
	Outcome Outcome
	Err     error
}

// Resolver adjudicates guesses against the stored secret. It is the only
// code path that reads the secret answer; nothing else ever streams it
// to a client.
type Resolver struct {
	st       store.Store
	board    *leaderboard.Board
	clock    clockwork.Clock
	log      *zap.Logger
	duration time.Duration
}

func NewResolver(st store.Store, clock clockwork.Clock, log *zap.Logger, duration time.Duration) *Resolver {
	return &Resolver{
		st:       st,
		board:    leaderboard.New(st),
		clock:    clock,
		log:      log,
		duration: duration,
	}
}

// Resolve compares the guess with the secret and, on a match, commits
// the win: a compare-and-set of the game winner guarded by "unset",
// then the metadata mirror, then the leaderboard append. Losing the CAS
// means another player's correct guess landed first; the caller's guess
// was textually correct but is still "too late", and no duplicate
// leaderboard entry is written.
func (r *Resolver) Resolve(ctx context.Context, code, playerName, text string, startMillis int64) GuessResult {
	secret, ok, err := r.st.Read(ctx, store.SecretAnswerKey(code))
	if err != nil {
		return GuessResult{Outcome: OutcomeError, Err: fmt.Errorf("read secret answer: %w", err)}
	}
	if !ok {
		return GuessResult{Outcome: OutcomeError, Err: fmt.Errorf("session %s has no secret answer", code)}
	}

	if !engine.MatchGuess(text, string(secret)) {
		return GuessResult{Outcome: OutcomeIncorrect, Err: engine.ErrIncorrectGuess}
	}

	now := r.clock.Now().UnixMilli()
	if engine.Remaining(startMillis, now, r.duration) <= 0 {
		return GuessResult{Outcome: OutcomeTimeExpired, Err: &engine.GameOverError{Reason: engine.ReasonTimeExpired}}
	}

	err = r.st.WriteIfAbsent(ctx, store.GameWinnerKey(code), []byte(playerName))
	if errors.Is(err, store.ErrConflict) {
		return GuessResult{Outcome: OutcomeAlreadyWon, Err: &engine.GameOverError{Reason: engine.ReasonAlreadyWon}}
	}
	if err != nil {
		return GuessResult{Outcome: OutcomeError, Err: fmt.Errorf("commit winner: %w", err)}
	}

	// The CAS above won the race, so the mirror is a plain write.
	if err := r.st.Write(ctx, store.SessionField(code, "winner"), []byte(playerName)); err != nil {
		r.log.Error("winner mirror write failed",
			zap.String("session", code), zap.String("winner", playerName), zap.Error(err))
	}
	if err := r.board.Append(ctx, code, leaderboard.Entry{PlayerName: playerName, WonAt: now}); err != nil {
		r.log.Error("leaderboard append failed",
			zap.String("session", code), zap.String("winner", playerName), zap.Error(err))
	}

	r.log.Info("guess accepted",
		zap.String("session", code), zap.String("winner", playerName), zap.Int64("wonAt", now))
	return GuessResult{Outcome: OutcomeAccepted}
}
