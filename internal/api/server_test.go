package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewithboateng/jitprof/internal/ir"
	"github.com/codewithboateng/jitprof/internal/security"
	"github.com/codewithboateng/jitprof/internal/storage"
)

type fixture struct {
	srv    *httptest.Server
	db     *storage.DB
	client *http.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.CreateSchema())

	for _, u := range []struct{ name, role string }{{"admin", storage.RoleAdmin}, {"viewer", storage.RoleViewer}} {
		h, err := security.HashPassword(u.name + "-password")
		require.NoError(t, err)
		_, err = db.CreateUser(u.name, h, u.role)
		require.NoError(t, err)
	}

	run := ir.Run{
		ID: "run-1", StartedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), IRVersion: ir.Version,
		Warnings: []ir.Warning{
			{ID: "a", RuleID: "SwitchArrayType", IID: "1:1", Location: "(a.js:1:1:1:4)", Message: "Switching array type", Count: 4},
			{ID: "b", RuleID: "SwitchArrayType", IID: "1:2", Location: "(a.js:2:1:2:4)", Message: "Switching array type", Count: 1},
		},
	}
	require.NoError(t, db.SaveRun(&run))
	run2 := run
	run2.ID = "run-2"
	run2.StartedAt = run.StartedAt.Add(time.Hour)
	run2.Warnings = run.Warnings[:1]
	require.NoError(t, db.SaveRun(&run2))

	s := &Server{
		DB: db, UserStore: db,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		AllowedOrigins:  []string{"http://ui.local"},
		SessionDuration: time.Hour,
	}
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &fixture{srv: srv, db: db, client: &http.Client{Jar: jar}}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://ui.local")
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func (f *fixture) login(t *testing.T, user string) {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": user, "password": user + "-password",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, user, body["username"])
}

func TestHealthAndCORS(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "http://ui.local", resp.Header.Get("Access-Control-Allow-Origin"))

	req, _ := http.NewRequest(http.MethodGet, f.srv.URL+"/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.local")
	other, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	other.Body.Close()
	assert.Empty(t, other.Header.Get("Access-Control-Allow-Origin"))
}

func TestRunsEndpoints(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/api/v1/runs?limit=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "run-2", items[0].(map[string]any)["id"])

	resp, body = f.do(t, http.MethodGet, "/api/v1/runs/latest", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "run-2", body["id"])

	resp, _ = f.do(t, http.MethodGet, "/api/v1/runs/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/api/v1/runs/run-1/warnings?min_count=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["items"], 1)

	resp, body = f.do(t, http.MethodGet, "/api/v1/diff?base=run-1&head=run-2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["summary"].(map[string]any)["removed"])

	resp, _ = f.do(t, http.MethodGet, "/api/v1/diff?base=run-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	txt, err := f.client.Get(f.srv.URL + "/api/v1/runs/run-1/report.txt")
	require.NoError(t, err)
	b, _ := io.ReadAll(txt.Body)
	txt.Body.Close()
	assert.Contains(t, string(b), "(a.js:1:1:1:4)")
}

func TestRules(t *testing.T) {
	f := newFixture(t)
	_, body := f.do(t, http.MethodGet, "/api/v1/rules", nil)
	assert.EqualValues(t, 1, body["count"])
}

func TestAuthFlow(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/api/v1/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	f.login(t, "viewer")
	resp, body := f.do(t, http.MethodGet, "/api/v1/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, storage.RoleViewer, body["role"])

	resp, _ = f.do(t, http.MethodPost, "/api/v1/auth/logout", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/api/v1/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWaivers_AdminOnly(t *testing.T) {
	f := newFixture(t)
	create := map[string]string{
		"rule_id":    "SwitchArrayType",
		"iid":        "1:1",
		"reason":     "hot loop, accepted",
		"expires_at": time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
	}

	f.login(t, "viewer")
	resp, _ := f.do(t, http.MethodPost, "/api/v1/waivers", create)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	f.login(t, "admin")
	resp, body := f.do(t, http.MethodPost, "/api/v1/waivers", create)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := int64(body["id"].(float64))

	bad := map[string]string{"rule_id": "NoSuchRule", "reason": "x", "expires_at": create["expires_at"]}
	resp, _ = f.do(t, http.MethodPost, "/api/v1/waivers", bad)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/api/v1/waivers?active=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["items"], 1)

	path := "/api/v1/waivers/" + jsonNumber(id) + "/revoke"
	resp, _ = f.do(t, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
