package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guessgrid/backend/internal/hub"
	"github.com/guessgrid/backend/internal/leaderboard"
	"github.com/guessgrid/backend/internal/session"
	"github.com/guessgrid/backend/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	return newTestServerWith(t, store.NewMemory())
}

func newTestServerWith(t *testing.T, st store.Store) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := hub.NewHub(ctx, hub.Deps{
		Store:  st,
		Clock:  clockwork.NewFakeClock(),
		Log:    zap.NewNop(),
		Config: session.DefaultConfig(),
	})
	api := &API{
		Hub:           h,
		Store:         st,
		Board:         leaderboard.New(st),
		Log:           zap.NewNop(),
		PublicBaseURL: "http://game.example",
	}
	srv := httptest.NewServer(SetupRoutes(api))
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateAndFetchSession(t *testing.T) {
	srv := newTestServer(t)

	body := `{"creatorName":"budi","answer":"cat","imageUrl":"https://img.example/1"}`
	resp, err := http.Post(srv.URL+"/sessions", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created createSessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.Len(t, created.Code, 6)
	require.Equal(t, "http://game.example/game?session="+created.Code, created.JoinURL)

	get, err := http.Get(srv.URL + "/sessions/" + created.Code)
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)

	var meta sessionResponse
	require.NoError(t, json.NewDecoder(get.Body).Decode(&meta))
	require.Equal(t, "budi", meta.CreatedBy)
	require.Equal(t, "https://img.example/1", meta.ImageURL)
	require.Empty(t, meta.Winner)

	// The secret must never appear in the public metadata payload.
	require.NotContains(t, string(mustJSON(t, meta)), "cat")
}

func TestCreateSession_RejectsMissingFields(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/sessions", "application/json", strings.NewReader(`{"creatorName":"budi"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetSession_UnknownCodeIs404(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/sessions/NOPE00")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// flakyStore fails reads of one key, set after the session exists.
type flakyStore struct {
	store.Store
	mu      sync.Mutex
	failKey string
}

func (f *flakyStore) fail(key string) {
	f.mu.Lock()
	f.failKey = key
	f.mu.Unlock()
}

func (f *flakyStore) Read(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	failKey := f.failKey
	f.mu.Unlock()
	if key == failKey {
		return nil, false, store.ErrUnavailable
	}
	return f.Store.Read(ctx, key)
}

// A mid-handler store failure is a 503, not a response with the failed
// fields silently blanked.
func TestGetSession_StoreFailureIs503(t *testing.T) {
	fs := &flakyStore{Store: store.NewMemory()}
	srv := newTestServerWith(t, fs)

	body := `{"creatorName":"budi","answer":"cat","imageUrl":"https://img.example/1"}`
	resp, err := http.Post(srv.URL+"/sessions", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created createSessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	fs.fail(store.SessionField(created.Code, "createdBy"))

	get, err := http.Get(srv.URL + "/sessions/" + created.Code)
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, get.StatusCode)
}

func TestSessionQR_ServesPNG(t *testing.T) {
	srv := newTestServer(t)

	body := `{"creatorName":"budi","answer":"cat"}`
	resp, err := http.Post(srv.URL+"/sessions", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var created createSessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	qr, err := http.Get(srv.URL + "/sessions/" + created.Code + "/qr")
	require.NoError(t, err)
	defer qr.Body.Close()
	require.Equal(t, http.StatusOK, qr.StatusCode)
	require.Equal(t, "image/png", qr.Header.Get("Content-Type"))
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
