package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	coreconfig "github.com/linearity/postbot/core/config"
	"github.com/linearity/postbot/internal/catalog"
	"github.com/linearity/postbot/internal/delivery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tele "gopkg.in/telebot.v4"
)

type recordingSender struct {
	mu     sync.Mutex
	texts  []string
	photos []string
	albums [][]string
}

func (s *recordingSender) SendText(_ context.Context, to delivery.Target, body string, _ *tele.ReplyMarkup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, string(to)+"|"+body)
	return nil
}

func (s *recordingSender) SendPhoto(_ context.Context, to delivery.Target, fileID, _ string, _ *tele.ReplyMarkup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photos = append(s.photos, string(to)+"|"+fileID)
	return nil
}

func (s *recordingSender) SendMediaGroup(_ context.Context, _ delivery.Target, fileIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.albums = append(s.albums, fileIDs)
	return nil
}

func newTestServer(t *testing.T) (*Server, *recordingSender, *catalog.Store) {
	t.Helper()
	store, err := catalog.NewStore(t.TempDir())
	require.NoError(t, err)
	sender := &recordingSender{}
	cfg := coreconfig.AdminHTTPConfig{
		Enabled:   true,
		Listen:    "127.0.0.1",
		Port:      0,
		Token:     "secret",
		JWTSecret: "secret",
	}
	return New(cfg, store, sender, "-100777"), sender, store
}

func do(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestPingNeedsNoAuth(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/ping", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChannelsRequireAuth(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/channels", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/channels", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/channels", "secret", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// token query parameter is accepted too
	req := httptest.NewRequest(http.MethodGet, "/api/channels?token=secret", nil)
	qrec := httptest.NewRecorder()
	s.Handler().ServeHTTP(qrec, req)
	assert.Equal(t, http.StatusOK, qrec.Code)
}

func TestLoginIssuesBearerSession(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/login", "", map[string]string{"token": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/login", "", map[string]string{"token": "secret"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)

	req := httptest.NewRequest(http.MethodGet, "/api/channels", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	brec := httptest.NewRecorder()
	s.Handler().ServeHTTP(brec, req)
	assert.Equal(t, http.StatusOK, brec.Code)
}

func TestChannelCRUD(t *testing.T) {
	s, _, store := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/channels", "secret", map[string]string{"name": "News", "link": "-100555"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/channels", "secret", map[string]string{"name": "News", "link": "-100555"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.Len(t, store.Channels(), 1)

	rec = do(t, s, http.MethodDelete, "/api/channels", "secret", map[string]any{"id": -100555})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.Channels())
}

func TestPresetCRUD(t *testing.T) {
	s, _, store := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/presets", "secret", map[string]any{"title": "", "buttons": []catalog.Button{{Text: "x", URL: "u"}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/presets", "secret", map[string]any{"title": "Links", "buttons": []catalog.Button{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/presets", "secret", map[string]any{
		"title":   "Links",
		"buttons": []catalog.Button{{Text: "Sito", URL: "https://example.com"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/presets/1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPut, "/api/presets/1", "secret", catalog.Preset{
		Title:   "Links v2",
		Buttons: []catalog.Button{{Text: "Sito", URL: "https://example.com"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	preset, found := store.FindPreset(1)
	require.True(t, found)
	assert.Equal(t, "Links v2", preset.Title)

	rec = do(t, s, http.MethodDelete, "/api/presets/99", "secret", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/presets/1", "secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.Presets())
}

func TestPostEndpoint(t *testing.T) {
	s, sender, store := newTestServer(t)
	_, err := store.UpsertPreset(catalog.Preset{Title: "Links", Buttons: []catalog.Button{{Text: "Sito", URL: "https://example.com"}}})
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, "/api/post", "secret", map[string]any{"text": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/post", "secret", map[string]any{
		"text":      "Ciao",
		"channelId": "t.me/mychannel",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sender.texts, 1)
	assert.Equal(t, "@mychannel|Ciao", sender.texts[0])

	// Default target kicks in when no channel is named; images become a
	// lead photo plus an album.
	rec = do(t, s, http.MethodPost, "/api/post", "secret", map[string]any{
		"text":     "Con foto",
		"presetId": 1,
		"images":   []string{"f1", "f2", "f3"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sender.photos, 1)
	assert.Equal(t, "-100777|f1", sender.photos[0])
	require.Len(t, sender.albums, 1)
	assert.Equal(t, []string{"f2", "f3"}, sender.albums[0])
}
