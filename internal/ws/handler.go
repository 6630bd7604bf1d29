package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guessgrid/backend/internal/hub"
	"github.com/guessgrid/backend/internal/session"
	"github.com/guessgrid/backend/internal/types"
)

const (
	writeTimeout = 3 * time.Second
	guessTimeout = 5 * time.Second
)

func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		name := r.URL.Query().Get("name")
		if name == "" {
			http.Error(w, "missing name", http.StatusBadRequest)
			return
		}

		reply := make(chan *session.Session, 1)
		h.Inbox() <- hub.EnsureSession{Code: code, Reply: reply}
		s := <-reply
		if s == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan session.View, 8)
		clientID := uuid.NewString()

		s.Inbox() <- session.Join{ClientID: clientID, Outbox: out}
		defer func() { s.Inbox() <- session.Leave{ClientID: clientID} }()
		log.Debug("client joined",
			zap.String("session", code), zap.String("client", clientID), zap.String("player", name))

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for v := range out {
				view := v
				writeMsg(writeCtx, conn, types.ServerMessage{Type: "View", View: &view})
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				// Treat clean close/going-away as normal:
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				// Otherwise, just exit (session.Leave in defer):
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeMsg(r.Context(), conn, types.ServerMessage{Type: "Error", Error: "bad json"})
				continue
			}

			switch cm.Type {
			case "reveal":
				s.Inbox() <- session.Reveal{Row: cm.Row, Col: cm.Col}

			case "guess":
				resultCh := make(chan session.GuessResult, 1)
				s.Inbox() <- session.SubmitGuess{PlayerName: name, Text: cm.Text, Reply: resultCh}

				var res session.GuessResult
				select {
				case res = <-resultCh:
				case <-time.After(guessTimeout):
					res = session.GuessResult{Outcome: session.OutcomeError}
				case <-r.Context().Done():
					return
				}
				msg := types.ServerMessage{Type: "GuessResult", Outcome: string(res.Outcome)}
				if res.Err != nil {
					msg.Error = res.Err.Error()
				}
				writeMsg(r.Context(), conn, msg)

			default:
				writeMsg(r.Context(), conn, types.ServerMessage{Type: "Error", Error: "unknown type"})
			}
		}
	}
}

func writeMsg(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}
