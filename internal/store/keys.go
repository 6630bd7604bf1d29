package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Key layout. Grid cells are point keys so concurrent reveals are
// commutative point writes rather than read-modify-write of the whole
// matrix. The secret answer lives in its own subtree so that subscribing
// to a session's public metadata can never stream the answer.
//
//	sessions/<code>/{imageUrl,createdBy,createdAt,winner}
//	secrets/<code>/answer
//	games/<code>/startTime
//	games/<code>/winner
//	games/<code>/grid/<row>/<col>
//	leaderboard/<code>/<childKey>

func SessionPrefix(code string) string     { return "sessions/" + code }
func SessionField(code, f string) string   { return "sessions/" + code + "/" + f }
func SecretAnswerKey(code string) string   { return "secrets/" + code + "/answer" }
func GamePrefix(code string) string        { return "games/" + code }
func StartTimeKey(code string) string      { return "games/" + code + "/startTime" }
func GameWinnerKey(code string) string     { return "games/" + code + "/winner" }
func LeaderboardPrefix(code string) string { return "leaderboard/" + code }

func GridCellKey(code string, row, col int) string {
	return fmt.Sprintf("games/%s/grid/%d/%d", code, row, col)
}

// ParseGridCellKey extracts (row, col) from a grid cell key under the
// given session, reporting ok=false for any other key shape.
func ParseGridCellKey(code, key string) (row, col int, ok bool) {
	prefix := "games/" + code + "/grid/"
	rest, found := strings.CutPrefix(key, prefix)
	if !found {
		return 0, 0, false
	}
	r, c, found := strings.Cut(rest, "/")
	if !found {
		return 0, 0, false
	}
	row, err := strconv.Atoi(r)
	if err != nil {
		return 0, 0, false
	}
	col, err = strconv.Atoi(c)
	if err != nil {
		return 0, 0, false
	}
	return row, col, true
}
