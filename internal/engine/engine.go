package engine

import (
	"errors"
	"fmt"
)

var ErrOutOfBounds = errors.New("reveal out of bounds")
var ErrIncorrectGuess = errors.New("incorrect guess")
var ErrEmptyPlayerName = errors.New("empty player name")

// GameOverReason says why a session stopped accepting actions.
type GameOverReason string

const (
	ReasonAlreadyWon  GameOverReason = "already_won"
	ReasonTimeExpired GameOverReason = "time_expired"
)

// GameOverError rejects an action attempted after the session reached a
// terminal state. Callers recover by refreshing their view; retrying the
// same action will never succeed.
type GameOverError struct {
	Reason GameOverReason
}

func (e *GameOverError) Error() string {
	return fmt.Sprintf("game over: %s", e.Reason)
}

// AsGameOver unwraps err into a GameOverError, if it is one.
func AsGameOver(err error) (*GameOverError, bool) {
	var goe *GameOverError
	if errors.As(err, &goe) {
		return goe, true
	}
	return nil, false
}

type Status string

const (
	StatusRunning Status = "running"
	StatusWon     Status = "won"
	StatusExpired Status = "expired"
)

// Grid is the reveal matrix. Cells only ever flip false -> true; nothing
// un-reveals a cell, which is what makes concurrent reveals commutative.
type Grid [][]bool

func NewGrid(size int) Grid {
	g := make(Grid, size)
	for i := range g {
		g[i] = make([]bool, size)
	}
	return g
}

func (g Grid) InBounds(row, col int) bool {
	return row >= 0 && row < len(g) && col >= 0 && col < len(g[row])
}

// Reveal marks one cell as revealed. Revealing a cell twice is a no-op.
func (g Grid) Reveal(row, col int) error {
	if !g.InBounds(row, col) {
		return ErrOutOfBounds
	}
	g[row][col] = true
	return nil
}

// Clone returns an independent copy, so snapshots handed to other
// goroutines never alias the live matrix.
func (g Grid) Clone() Grid {
	if g == nil {
		return nil
	}
	out := make(Grid, len(g))
	for i, row := range g {
		out[i] = make([]bool, len(row))
		copy(out[i], row)
	}
	return out
}

func (g Grid) RevealedCount() int {
	n := 0
	for _, row := range g {
		for _, v := range row {
			if v {
				n++
			}
		}
	}
	return n
}

// StatusOf derives the session status. A set winner beats expiry: a guess
// that committed at the buzzer still counts.
func StatusOf(winner string, remainingMillis int64) Status {
	if winner != "" {
		return StatusWon
	}
	if remainingMillis <= 0 {
		return StatusExpired
	}
	return StatusRunning
}

// Terminal reports whether no further reveals or guesses are accepted.
func Terminal(winner string, remainingMillis int64) bool {
	return StatusOf(winner, remainingMillis) != StatusRunning
}
