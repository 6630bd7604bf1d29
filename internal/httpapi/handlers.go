package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/guessgrid/backend/internal/db"
	"github.com/guessgrid/backend/internal/hub"
	"github.com/guessgrid/backend/internal/leaderboard"
	"github.com/guessgrid/backend/internal/session"
	"github.com/guessgrid/backend/internal/store"
)

// API bundles the collaborators the handlers need. Repo is nil when no
// database is configured.
type API struct {
	Hub           *hub.Hub
	Store         store.Store
	Board         *leaderboard.Board
	Repo          *db.Repo
	Log           *zap.Logger
	PublicBaseURL string
}

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type createSessionRequest struct {
	CreatorName string `json:"creatorName"`
	Answer      string `json:"answer"`
	ImageURL    string `json:"imageUrl"`
}

type createSessionResponse struct {
	Code    string `json:"code"`
	JoinURL string `json:"joinUrl"`
}

func (a *API) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.CreatorName == "" || req.Answer == "" {
		http.Error(w, "creatorName and answer are required", http.StatusBadRequest)
		return
	}
	if req.ImageURL == "" {
		// The image itself lives with the storage collaborator; an
		// opaque reference is all the game needs.
		req.ImageURL = "images/" + uuid.NewString()
	}

	meta := hub.Metadata{CreatedBy: req.CreatorName, Answer: req.Answer, ImageURL: req.ImageURL}

	var code string
	for attempt := 0; attempt < 5; attempt++ {
		c, err := GenerateCode()
		if err != nil {
			http.Error(w, "failed to generate code", http.StatusInternalServerError)
			return
		}
		reply := make(chan *session.Session, 1)
		a.Hub.Inbox() <- hub.CreateSession{Code: c, Meta: meta, Reply: reply}
		if <-reply != nil {
			code = c
			break
		}
		a.Log.Info("collision on code, regenerating", zap.String("code", c))
	}
	if code == "" {
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(createSessionResponse{
		Code:    code,
		JoinURL: a.joinURL(code),
	})
}

type sessionResponse struct {
	Code        string              `json:"code"`
	CreatedBy   string              `json:"createdBy"`
	CreatedAt   int64               `json:"createdAt"`
	ImageURL    string              `json:"imageUrl"`
	Winner      string              `json:"winner"`
	Leaderboard []leaderboard.Entry `json:"leaderboard"`
}

// GetSession serves a session's public metadata. The secret answer is
// deliberately not part of the response shape.
func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	ctx := r.Context()

	rawCreatedAt, ok, err := a.Store.Read(ctx, store.SessionField(code, "createdAt"))
	if err != nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	createdAt, _ := strconv.ParseInt(string(rawCreatedAt), 10, 64)

	resp := sessionResponse{Code: code, CreatedAt: createdAt}
	for _, f := range []struct {
		field string
		dst   *string
	}{
		{"createdBy", &resp.CreatedBy},
		{"imageUrl", &resp.ImageURL},
		{"winner", &resp.Winner},
	} {
		v, ok, err := a.Store.Read(ctx, store.SessionField(code, f.field))
		if err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		if ok {
			*f.dst = string(v)
		}
	}
	entries, err := a.Board.Read(ctx, code)
	if err != nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	resp.Leaderboard = entries

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// SessionQR renders the join URL as a QR code so the host can put it on
// a shared screen.
func (a *API) SessionQR(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	_, ok, err := a.Store.Read(r.Context(), store.SessionField(code, "createdAt"))
	if err != nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	png, err := qrcode.Encode(a.joinURL(code), qrcode.Medium, 256)
	if err != nil {
		http.Error(w, "failed to render qr", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

type listedSession struct {
	Code      string `json:"code"`
	ImageURL  string `json:"imageUrl"`
	CreatedBy string `json:"createdBy"`
	CreatedAt int64  `json:"createdAt"`
}

// ListSessions serves recently created sessions from the archive.
func (a *API) ListSessions(w http.ResponseWriter, r *http.Request) {
	if a.Repo == nil {
		http.Error(w, "session archive disabled", http.StatusNotFound)
		return
	}
	rows, err := a.Repo.RecentSessions(r.Context(), 20)
	if err != nil {
		http.Error(w, "archive unavailable", http.StatusServiceUnavailable)
		return
	}
	out := make([]listedSession, 0, len(rows))
	for _, row := range rows {
		out = append(out, listedSession{
			Code:      row.Code,
			ImageURL:  row.ImageURL,
			CreatedBy: row.CreatedBy,
			CreatedAt: row.CreatedAt.UnixMilli(),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (a *API) joinURL(code string) string {
	return a.PublicBaseURL + "/game?session=" + code
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
