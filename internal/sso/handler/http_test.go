package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"sqabi/backend/internal/hub"
	"sqabi/backend/internal/security"
	"sqabi/backend/internal/server/middleware"
	"sqabi/backend/internal/session/domain"
	"sqabi/backend/internal/session/repository"
	"sqabi/backend/internal/sso/service"
)

const testHubSecret = "hub-secret"

type fixture struct {
	repo   *repository.MemoryRepository
	tokens *security.TokenProvider
	router chi.Router
}

// newFixture wires the handler to a real service and Hub client talking to hubHandler.
func newFixture(t *testing.T, hubHandler http.HandlerFunc, enabled bool) *fixture {
	t.Helper()
	hubServer := httptest.NewServer(hubHandler)
	t.Cleanup(hubServer.Close)

	client := hub.NewClient(hubServer.URL, "sqabi", 200*time.Millisecond, 200*time.Millisecond, 1)
	repo := repository.NewMemoryRepository()
	tokens := security.NewTestTokenProvider(6 * time.Hour)
	svc := service.NewService(client, tokens, repo, service.Config{Enabled: enabled, Service: "sqabi", HubURL: hubServer.URL}, nil, nil)
	h := New(svc, "sqabi", testHubSecret, nil)

	r := chi.NewRouter()
	r.Post("/sso/validate", h.Validate)
	r.Post("/sso/logout", h.Logout)
	r.Get("/sso/status", h.Status)
	r.Post("/sso/hub-logout", h.HubLogout)
	r.With(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithIdentity(r.Context(), middleware.Identity{UserID: "u1", SessionID: "s1", Role: "admin"})))
		})
	}).Get("/sso/me", h.Me)
	r.Get("/sso/users/{userID}/sessions", h.ListSessions)
	r.Delete("/sso/users/{userID}/sessions/{sessionID}", h.RevokeSession)
	return &fixture{repo: repo, tokens: tokens, router: r}
}

func (f *fixture) do(t *testing.T, method, path, body string, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal %q: %v", rec.Body.String(), err)
	}
	return rec, got
}

func hubReplying(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			w.Write([]byte(`{"status":"ok"}`))
			return
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func TestValidate_Success(t *testing.T) {
	f := newFixture(t, hubReplying(http.StatusOK, `{"success":true,"data":{"user":{"id":"u1","email":"a@b.com"}}}`), true)

	rec, body := f.do(t, http.MethodPost, "/sso/validate", `{"token":"abc"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %v", rec.Code, body)
	}
	data, _ := body["data"].(map[string]any)
	token, _ := data["biToken"].(string)
	if body["success"] != true || token == "" {
		t.Fatalf("body = %v, want success with biToken", body)
	}
	user, _ := data["user"].(map[string]any)
	if user["id"] != "u1" {
		t.Errorf("data.user.id = %v, want u1", user["id"])
	}
	if data["service"] != "sqabi" || data["authenticatedAt"] == nil {
		t.Errorf("data = %v", data)
	}

	sess, err := f.repo.GetByToken(context.Background(), token)
	if err != nil || sess == nil {
		t.Fatalf("session row missing: %v", err)
	}
	if sess.UserID != "u1" || !sess.IsActive {
		t.Errorf("session = user %q active %v", sess.UserID, sess.IsActive)
	}
}

func TestValidate_Errors(t *testing.T) {
	slowHub := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}
	testCases := []struct {
		name       string
		hub        http.HandlerFunc
		enabled    bool
		body       string
		wantStatus int
		wantError  string
	}{
		{"success false", hubReplying(http.StatusOK, `{"success":false}`), true, `{"token":"abc"}`, http.StatusUnauthorized, "Validation failed"},
		{"hub status passed through", hubReplying(http.StatusForbidden, `{"success":false,"error":"forbidden"}`), true, `{"token":"abc"}`, http.StatusForbidden, "Validation failed"},
		{"timeout", slowHub, true, `{"token":"abc"}`, http.StatusGatewayTimeout, "Gateway timeout"},
		{"malformed hub body", hubReplying(http.StatusOK, `<html>`), true, `{"token":"abc"}`, http.StatusServiceUnavailable, "Hub unavailable"},
		{"missing token", hubReplying(http.StatusOK, `{}`), true, `{}`, http.StatusBadRequest, "Token required"},
		{"empty body", hubReplying(http.StatusOK, `{}`), true, ``, http.StatusBadRequest, "Token required"},
		{"sso disabled", hubReplying(http.StatusOK, `{}`), false, `{"token":"abc"}`, http.StatusForbidden, "SSO disabled"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.hub, tc.enabled)
			rec, body := f.do(t, http.MethodPost, "/sso/validate", tc.body, nil)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (body %v)", rec.Code, tc.wantStatus, body)
			}
			if body["success"] != false || body["error"] != tc.wantError {
				t.Errorf("body = %v, want error %q", body, tc.wantError)
			}
		})
	}
}

func TestValidate_HubUnreachable(t *testing.T) {
	f := newFixture(t, hubReplying(http.StatusOK, `{}`), true)
	// Point a fresh fixture at a closed server.
	closed := httptest.NewServer(http.NotFoundHandler())
	url := closed.URL
	closed.Close()
	client := hub.NewClient(url, "sqabi", time.Second, time.Second, 1)
	svc := service.NewService(client, f.tokens, f.repo, service.Config{Enabled: true, Service: "sqabi"}, nil, nil)
	r := chi.NewRouter()
	r.Post("/sso/validate", New(svc, "sqabi", "", nil).Validate)
	f.router = r

	rec, body := f.do(t, http.MethodPost, "/sso/validate", `{"token":"abc"}`, nil)
	if rec.Code != http.StatusServiceUnavailable || body["error"] != "Hub unavailable" {
		t.Errorf("status = %d body = %v, want 503 Hub unavailable", rec.Code, body)
	}
}

func TestLogout_AlwaysSucceeds(t *testing.T) {
	f := newFixture(t, hubReplying(http.StatusOK, `{"success":true,"data":{"user":{"id":"u1"}}}`), true)
	_, body := f.do(t, http.MethodPost, "/sso/validate", `{"token":"abc"}`, nil)
	token := body["data"].(map[string]any)["biToken"].(string)

	for _, header := range []map[string]string{
		{"Authorization": "Bearer " + token},
		{"Authorization": "Bearer " + token},
		nil,
		{"Authorization": "Bearer garbage"},
	} {
		rec, body := f.do(t, http.MethodPost, "/sso/logout", "", header)
		if rec.Code != http.StatusOK || body["success"] != true || body["message"] == "" {
			t.Errorf("logout = %d %v, want 200 success", rec.Code, body)
		}
	}
	sess, _ := f.repo.GetByToken(context.Background(), token)
	if sess.IsActive || sess.LogoutReason != domain.LogoutManual {
		t.Errorf("session = active %v reason %q", sess.IsActive, sess.LogoutReason)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, hubReplying(http.StatusOK, `{}`), true)
	rec, body := f.do(t, http.MethodGet, "/sso/status", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data := body["data"].(map[string]any)
	if data["ssoEnabled"] != true || data["hubConnected"] != true || data["service"] != "sqabi" {
		t.Errorf("data = %v", data)
	}
	if _, ok := data["error"]; ok {
		t.Errorf("error should be omitted when connected: %v", data)
	}
}

func TestStatus_HubDownStill200(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) }, true)
	rec, body := f.do(t, http.MethodGet, "/sso/status", "", nil)
	data := body["data"].(map[string]any)
	if rec.Code != http.StatusOK || data["hubConnected"] != false || data["error"] == nil {
		t.Errorf("status = %d data = %v", rec.Code, data)
	}
}

func TestHubLogout(t *testing.T) {
	f := newFixture(t, hubReplying(http.StatusOK, `{"success":true,"data":{"user":{"id":"u1"}}}`), true)
	_, body := f.do(t, http.MethodPost, "/sso/validate", `{"token":"abc"}`, nil)
	token := body["data"].(map[string]any)["biToken"].(string)

	rec, _ := f.do(t, http.MethodPost, "/sso/hub-logout", `{"userId":"u1"}`, map[string]string{HubSecretHeader: "wrong"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("wrong secret status = %d, want 403", rec.Code)
	}
	rec, _ = f.do(t, http.MethodPost, "/sso/hub-logout", `{}`, map[string]string{HubSecretHeader: testHubSecret})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing user status = %d, want 400", rec.Code)
	}
	rec, body = f.do(t, http.MethodPost, "/sso/hub-logout", `{"userId":"u1"}`, map[string]string{HubSecretHeader: testHubSecret})
	if rec.Code != http.StatusOK || body["data"].(map[string]any)["invalidated"] != float64(1) {
		t.Fatalf("hub logout = %d %v", rec.Code, body)
	}
	sess, _ := f.repo.GetByToken(context.Background(), token)
	if sess.IsActive || sess.LogoutReason != domain.LogoutHubLogout {
		t.Errorf("session = active %v reason %q", sess.IsActive, sess.LogoutReason)
	}
}

func TestMe(t *testing.T) {
	f := newFixture(t, hubReplying(http.StatusOK, `{}`), true)
	rec, body := f.do(t, http.MethodGet, "/sso/me", "", nil)
	data := body["data"].(map[string]any)
	if rec.Code != http.StatusOK || data["id"] != "u1" || data["sessionId"] != "s1" {
		t.Errorf("me = %d %v", rec.Code, body)
	}
}

func TestListAndRevokeSessions(t *testing.T) {
	f := newFixture(t, hubReplying(http.StatusOK, `{"success":true,"data":{"user":{"id":"u1"}}}`), true)
	f.do(t, http.MethodPost, "/sso/validate", `{"token":"abc"}`, nil)

	rec, body := f.do(t, http.MethodGet, "/sso/users/u1/sessions", "", nil)
	list, _ := body["data"].([]any)
	if rec.Code != http.StatusOK || len(list) != 1 {
		t.Fatalf("list = %d %v", rec.Code, body)
	}
	id := list[0].(map[string]any)["id"].(string)

	rec, _ = f.do(t, http.MethodDelete, "/sso/users/u1/sessions/"+id, "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("revoke status = %d", rec.Code)
	}
	rec, body = f.do(t, http.MethodDelete, "/sso/users/u1/sessions/"+id, "", nil)
	if rec.Code != http.StatusNotFound || body["error"] != middleware.CodeSessionNotFound {
		t.Errorf("second revoke = %d %v", rec.Code, body)
	}
}
