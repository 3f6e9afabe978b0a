package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sqabi/backend/internal/dataset"
	datasethandler "sqabi/backend/internal/dataset/handler"
	"sqabi/backend/internal/hub"
	"sqabi/backend/internal/security"
	"sqabi/backend/internal/server/middleware"
	"sqabi/backend/internal/session/repository"
	ssohandler "sqabi/backend/internal/sso/handler"
	"sqabi/backend/internal/sso/service"
)

type alwaysLive struct{ calls int }

func (a *alwaysLive) IsUserSessionActive(context.Context, string) (bool, error) {
	a.calls++
	return true, nil
}

// newTestRouter wires the full API against a fake Hub that validates every token as a user with role.
func newTestRouter(t *testing.T, role string) http.Handler {
	t.Helper()
	hubServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			w.Write([]byte(`{}`))
			return
		}
		w.Write([]byte(`{"success":true,"data":{"user":{"id":"u1","email":"a@b.com","role":"` + role + `"}}}`))
	}))
	t.Cleanup(hubServer.Close)

	repo := repository.NewMemoryRepository()
	tokens := security.NewTestTokenProvider(time.Hour)
	client := hub.NewClient(hubServer.URL, "sqabi", time.Second, time.Second, 1)
	svc := service.NewService(client, tokens, repo, service.Config{Enabled: true, Service: "sqabi", HubURL: hubServer.URL}, nil, nil)
	gate := middleware.NewGate(tokens, repo, &alwaysLive{}, middleware.GateConfig{RecheckInterval: 2 * time.Minute, Inactivity: time.Hour}, nil, nil)
	validate := func(ctx context.Context, src dataset.Source, limit int) (*dataset.Result, error) {
		return &dataset.Result{RowCount: 1}, nil
	}
	return NewRouter(Deps{
		SSO:     ssohandler.New(svc, "sqabi", "secret", nil),
		Dataset: datasethandler.New(validate, time.Second, 10, nil),
		Gate:    gate,
	})
}

func request(t *testing.T, h http.Handler, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var got map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	return rec.Code, got
}

func login(t *testing.T, h http.Handler) string {
	t.Helper()
	code, body := request(t, h, http.MethodPost, "/sso/validate", "", `{"token":"sso"}`)
	if code != http.StatusOK {
		t.Fatalf("validate = %d %v", code, body)
	}
	return body["data"].(map[string]any)["biToken"].(string)
}

func TestRouter_Healthz(t *testing.T) {
	h := newTestRouter(t, "admin")
	if code, _ := request(t, h, http.MethodGet, "/healthz", "", ""); code != http.StatusOK {
		t.Errorf("healthz = %d", code)
	}
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	h := newTestRouter(t, "admin")
	for _, path := range []string{"/sso/me", "/sso/users/u1/sessions"} {
		code, body := request(t, h, http.MethodGet, path, "", "")
		if code != http.StatusUnauthorized || body["error"] != middleware.CodeUnauthorized {
			t.Errorf("%s = %d %v, want 401 unauthorized", path, code, body)
		}
	}
}

func TestRouter_LoginMeLogout(t *testing.T) {
	h := newTestRouter(t, "viewer")
	token := login(t, h)

	code, body := request(t, h, http.MethodGet, "/sso/me", token, "")
	if code != http.StatusOK || body["data"].(map[string]any)["id"] != "u1" {
		t.Fatalf("me = %d %v", code, body)
	}

	if code, _ := request(t, h, http.MethodPost, "/sso/logout", token, ""); code != http.StatusOK {
		t.Fatalf("logout = %d", code)
	}
	code, body = request(t, h, http.MethodGet, "/sso/me", token, "")
	if code != http.StatusUnauthorized || body["error"] != middleware.CodeSessionInactive || body["reason"] != "manual" {
		t.Errorf("me after logout = %d %v", code, body)
	}
}

func TestRouter_NewLoginEndsPreviousSession(t *testing.T) {
	h := newTestRouter(t, "viewer")
	first := login(t, h)
	second := login(t, h)

	code, body := request(t, h, http.MethodGet, "/sso/me", first, "")
	if code != http.StatusUnauthorized || body["reason"] != "new_login" {
		t.Errorf("first token = %d %v, want new_login rejection", code, body)
	}
	if code, _ := request(t, h, http.MethodGet, "/sso/me", second, ""); code != http.StatusOK {
		t.Errorf("second token = %d, want 200", code)
	}
}

func TestRouter_RoleGates(t *testing.T) {
	viewer := newTestRouter(t, "viewer")
	token := login(t, viewer)
	if code, _ := request(t, viewer, http.MethodPost, "/datasets/validate", token, `{"type":"sqlite","query":"SELECT 1"}`); code != http.StatusForbidden {
		t.Errorf("viewer dataset = %d, want 403", code)
	}
	if code, _ := request(t, viewer, http.MethodGet, "/sso/users/u1/sessions", token, ""); code != http.StatusForbidden {
		t.Errorf("viewer sessions = %d, want 403", code)
	}

	editor := newTestRouter(t, "editor")
	token = login(t, editor)
	if code, body := request(t, editor, http.MethodPost, "/datasets/validate", token, `{"type":"sqlite","query":"SELECT 1"}`); code != http.StatusOK {
		t.Errorf("editor dataset = %d %v, want 200", code, body)
	}

	admin := newTestRouter(t, "admin")
	token = login(t, admin)
	code, body := request(t, admin, http.MethodGet, "/sso/users/u1/sessions", token, "")
	if code != http.StatusOK || len(body["data"].([]any)) != 1 {
		t.Errorf("admin sessions = %d %v", code, body)
	}
}

func TestRouter_StatusIsPublic(t *testing.T) {
	h := newTestRouter(t, "viewer")
	code, body := request(t, h, http.MethodGet, "/sso/status", "", "")
	if code != http.StatusOK || body["data"].(map[string]any)["hubConnected"] != true {
		t.Errorf("status = %d %v", code, body)
	}
}
