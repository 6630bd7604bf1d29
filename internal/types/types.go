package types

import "github.com/guessgrid/backend/internal/session"

type ClientMessage struct {
	Type string `json:"type"` // "reveal" | "guess"
	Row  int    `json:"row,omitempty"`
	Col  int    `json:"col,omitempty"`
	Text string `json:"text,omitempty"`
}

type ServerMessage struct {
	Type    string        `json:"type"` // "View" | "GuessResult" | "Error"
	View    *session.View `json:"view,omitempty"`
	Outcome string        `json:"outcome,omitempty"`
	Error   string        `json:"error,omitempty"`
}
