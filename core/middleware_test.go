package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

// newAuthTestEngine wires the session and principal middleware around a
// minimal login/me pair, backed by miniredis and the in-memory user repo.
func newAuthTestEngine(t *testing.T) (*gin.Engine, *memUserRepository, *RedisSessionStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := Config{
		SessionKey:        "test-session-key",
		CookieSameSite:    "Lax",
		SessionTTLSeconds: 3600,
	}
	cookieStore := sessions.NewCookieStore([]byte(cfg.SessionKey))
	sessionStore, _ := newTestSessionStore(t, time.Hour)
	userRepo := newMemUserRepository()
	authService := NewRepositoryAuthService(userRepo)

	r := gin.New()
	r.Use(SessionMiddleware(cfg, cookieStore))
	r.Use(PrincipalMiddleware(sessionStore, userRepo))

	r.POST("/login", func(c *gin.Context) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
			return
		}
		ctx := c.Request.Context()
		principal, err := authService.Authenticate(ctx, req.Email, req.Password)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Email ou mot de passe incorrect")
			return
		}
		token := SerializePrincipal(principal)
		sid, err := sessionStore.Create(ctx, token)
		if err != nil {
			respondError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "store down")
			return
		}
		sessionAny, _ := c.Get("session")
		sess := sessionAny.(*sessions.Session)
		sess.Values[sessionIDKey] = sid
		applySessionOptions(cfg, sess)
		if err := sess.Save(c.Request, c.Writer); err != nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "save failed")
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": principal.UserID})
	})

	r.GET("/me", func(c *gin.Context) {
		p, ok := requireLogin(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"email": p.Email, "role": p.Role})
	})

	return r, userRepo, sessionStore
}

func doRequest(t *testing.T, r *gin.Engine, method, path, body, cookie string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sessionCookie(w *httptest.ResponseRecorder) string {
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionName {
			return c.Name + "=" + c.Value
		}
	}
	return ""
}

func TestLoginEstablishesPrincipal(t *testing.T) {
	r, userRepo, _ := newAuthTestEngine(t)

	svc := NewRepositoryAuthService(userRepo)
	if _, err := svc.Register(context.Background(), "Ana", "ana@x.com", "secret1", "author"); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	w := doRequest(t, r, http.MethodPost, "/login", `{"email":"ana@x.com","password":"secret1"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}
	cookie := sessionCookie(w)
	if cookie == "" {
		t.Fatal("login did not set a session cookie")
	}

	w = doRequest(t, r, http.MethodGet, "/me", "", cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("me status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"ana@x.com"`) {
		t.Fatalf("unexpected /me body: %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"author"`) {
		t.Fatalf("expected author role in body: %s", w.Body.String())
	}
}

func TestAnonymousRequestIsRejectedByRequireLogin(t *testing.T) {
	r, _, _ := newAuthTestEngine(t)

	w := doRequest(t, r, http.MethodGet, "/me", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("me status = %d, want 401", w.Code)
	}
}

func TestBadCredentialsRejected(t *testing.T) {
	r, userRepo, _ := newAuthTestEngine(t)

	svc := NewRepositoryAuthService(userRepo)
	if _, err := svc.Register(context.Background(), "Ana", "ana@x.com", "secret1", ""); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	wrongPw := doRequest(t, r, http.MethodPost, "/login", `{"email":"ana@x.com","password":"wrong"}`, "")
	unknown := doRequest(t, r, http.MethodPost, "/login", `{"email":"missing@x.com","password":"x"}`, "")

	if wrongPw.Code != http.StatusUnauthorized || unknown.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d / %d, want 401 for both", wrongPw.Code, unknown.Code)
	}
	// Identical bodies: the caller cannot tell which field was wrong.
	if wrongPw.Body.String() != unknown.Body.String() {
		t.Fatalf("responses differ:\n%s\n%s", wrongPw.Body.String(), unknown.Body.String())
	}
}

func TestDeletedUserSessionIsAnonymous(t *testing.T) {
	r, userRepo, sessionStore := newAuthTestEngine(t)

	svc := NewRepositoryAuthService(userRepo)
	u, err := svc.Register(context.Background(), "Ana", "ana@x.com", "secret1", "")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	w := doRequest(t, r, http.MethodPost, "/login", `{"email":"ana@x.com","password":"secret1"}`, "")
	cookie := sessionCookie(w)
	if cookie == "" {
		t.Fatal("login did not set a session cookie")
	}

	userRepo.delete(u.ID)

	w = doRequest(t, r, http.MethodGet, "/me", "", cookie)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("me status after account deletion = %d, want 401", w.Code)
	}

	// The stale server-side record is dropped along the way.
	n, err := sessionStore.CountActiveSessions(context.Background())
	if err != nil {
		t.Fatalf("CountActiveSessions error: %v", err)
	}
	if n != 0 {
		t.Fatalf("stale session not destroyed, %d active", n)
	}
}

func TestDestroyedSessionIsAnonymous(t *testing.T) {
	r, userRepo, sessionStore := newAuthTestEngine(t)

	svc := NewRepositoryAuthService(userRepo)
	if _, err := svc.Register(context.Background(), "Ana", "ana@x.com", "secret1", ""); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	w := doRequest(t, r, http.MethodPost, "/login", `{"email":"ana@x.com","password":"secret1"}`, "")
	cookie := sessionCookie(w)

	if n, _ := sessionStore.CountActiveSessions(context.Background()); n != 1 {
		t.Fatalf("expected one active session after login, got %d", n)
	}

	// Server-side invalidation beats whatever the client still holds.
	mrStoreClear(t, sessionStore)

	w = doRequest(t, r, http.MethodGet, "/me", "", cookie)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("me status after destroy = %d, want 401", w.Code)
	}
}

func newCSRFTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := Config{
		SessionKey:        "test-session-key",
		CookieSameSite:    "Lax",
		SessionTTLSeconds: 3600,
	}
	store := sessions.NewCookieStore([]byte(cfg.SessionKey))

	r := gin.New()
	r.Use(SessionMiddleware(cfg, store))
	r.Use(CSRFMiddleware(cfg, store))
	r.GET("/form", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/submit", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func TestCSRFMissingTokenRejected(t *testing.T) {
	r := newCSRFTestEngine(t)

	w := doRequest(t, r, http.MethodPost, "/submit", `{}`, "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("mutating request without csrf token = %d, want 403", w.Code)
	}
}

func TestCSRFTokenRoundTrip(t *testing.T) {
	r := newCSRFTestEngine(t)

	w := doRequest(t, r, http.MethodGet, "/form", "", "")
	token := w.Header().Get("X-CSRF-Token")
	cookie := sessionCookie(w)
	if token == "" || cookie == "" {
		t.Fatalf("safe request must issue token and cookie, got token=%q cookie=%q", token, cookie)
	}

	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", cookie)
	req.Header.Set("X-CSRF-Token", token)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	if w2.Code != http.StatusNoContent {
		t.Fatalf("request with valid csrf token = %d, want 204", w2.Code)
	}

	// A wrong token with the same cookie is still rejected.
	req = httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", cookie)
	req.Header.Set("X-CSRF-Token", "forged")
	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, req)
	if w3.Code != http.StatusForbidden {
		t.Fatalf("request with forged csrf token = %d, want 403", w3.Code)
	}
}

func TestOriginRefererMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := Config{AllowedOrigins: []string{"https://app.example"}}

	r := gin.New()
	r.Use(OriginRefererMiddleware(cfg))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	// Cross-origin request from an unknown origin is refused.
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("disallowed origin = %d, want 403", w.Code)
	}

	// Listed origin passes and gets CORS headers back.
	req = httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set("Origin", "https://app.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("allowed origin = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("allow-origin header = %q", got)
	}

	// Same-origin navigation sends no Origin header and is allowed.
	req = httptest.NewRequest(http.MethodPost, "/x", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("same-origin request = %d, want 204", w.Code)
	}
}

func mrStoreClear(t *testing.T, store *RedisSessionStore) {
	t.Helper()
	iter := store.client.Scan(context.Background(), 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(context.Background()) {
		if err := store.client.Del(context.Background(), iter.Val()).Err(); err != nil {
			t.Fatalf("del error: %v", err)
		}
	}
	if err := iter.Err(); err != nil {
		t.Fatalf("scan error: %v", err)
	}
}
