package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"musinotes/cache"
	"musinotes/config"
	"musinotes/core/auth"
	"musinotes/core/mail"
	"musinotes/db"
	"musinotes/repository"
	"musinotes/service"

	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	handler http.Handler
	tokens  *auth.TokenManager
}

func newTestServer(t *testing.T, loginMax int) *testServer {
	t.Helper()

	gormDB, err := db.Open(config.DatabaseConfig{
		Driver:       db.DriverSQLite,
		SQLitePath:   filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.Migrate(gormDB); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() { db.Close(gormDB) })
	sqlDB, _ := gormDB.DB()

	cfg := &config.Config{
		Server: config.ServerConfig{Env: "test", FrontendURL: "http://app.example.com", MaxBodyBytes: 1 << 20},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"http://app.example.com"}, AllowCredentials: true},
		JWT:    config.JWTConfig{Secret: "test-secret", ExpiresIn: time.Hour, Issuer: "musinotes-api", Audience: "musinotes-client"},
	}
	tokens := auth.NewTokenManager(cfg.JWT)
	users := repository.NewUserRepository(sqlDB)

	handler := NewRouter(Deps{
		Config: cfg,
		Accounts: service.NewAccountService(users, tokens, mail.LogMailer{}, nil, nil, cache.NewMemoryStateStore(),
			service.AccountOptions{BcryptCost: bcrypt.MinCost, FrontendURL: cfg.Server.FrontendURL}),
		Songs:        service.NewSongService(repository.NewSongRepository(sqlDB), nil),
		Tokens:       tokens,
		LoginLimiter: cache.NewMemoryLimiter(config.LimitRule{Window: time.Minute, Max: loginMax}),
		APILimiter:   cache.NewMemoryLimiter(config.LimitRule{Window: time.Minute, Max: 1000}),
		DBPing:       sqlDB.PingContext,
	})
	return &testServer{handler: handler, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

// signup registers and logs in, returning the bearer token.
func (s *testServer) signup(t *testing.T, username, email string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/register",
		map[string]string{"username": username, "email": email, "password": "Secret123"}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body)
	}
	rec = s.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"email": email, "password": "Secret123"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Token string `json:"token"`
	}
	decode(t, rec, &resp)
	return resp.Token
}

func (s *testServer) createSong(t *testing.T, token string, body map[string]string) int64 {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/songs", body, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create song: expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var song struct {
		ID int64 `json:"id"`
	}
	decode(t, rec, &song)
	return song.ID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decode(t, rec, &body)
	return body.Error
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 5)
	rec := s.do(t, http.MethodGet, "/api/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body healthResponse
	decode(t, rec, &body)
	if body.Status != "OK" || body.Database != "up" || body.Redis != "disabled" || body.Environment != "test" {
		t.Errorf("unexpected health body %#v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

func TestRouteNotFound(t *testing.T) {
	s := newTestServer(t, 5)
	for _, c := range []struct{ method, path string }{
		{http.MethodGet, "/api/nothing"},
		{http.MethodGet, "/elsewhere"},
		{http.MethodPatch, "/api/auth/login"},
	} {
		rec := s.do(t, c.method, c.path, nil, "")
		if rec.Code != http.StatusNotFound || errorMessage(t, rec) != "Route not found" {
			t.Errorf("%s %s: expected 404 Route not found, got %d %s", c.method, c.path, rec.Code, rec.Body)
		}
	}
}

func TestAuthGate(t *testing.T) {
	s := newTestServer(t, 5)

	rec := s.do(t, http.MethodGet, "/api/songs", nil, "")
	if rec.Code != http.StatusUnauthorized || errorMessage(t, rec) != "Access token required" {
		t.Errorf("expected 401 without token, got %d %s", rec.Code, rec.Body)
	}

	rec = s.do(t, http.MethodGet, "/api/songs", nil, "garbage")
	if rec.Code != http.StatusForbidden || errorMessage(t, rec) != "Invalid or expired token" {
		t.Errorf("expected 403 with bad token, got %d %s", rec.Code, rec.Body)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Token abc")
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for non-bearer scheme, got %d", rr.Code)
	}
}

func TestAccountFlow(t *testing.T) {
	s := newTestServer(t, 100)
	token := s.signup(t, "alice", "alice@example.com")

	t.Run("Me", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/auth/me", nil, token)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var me map[string]any
		decode(t, rec, &me)
		if me["email"] != "alice@example.com" || me["hasPassword"] != true || me["googleLinked"] != false {
			t.Errorf("unexpected me body %v", me)
		}
		if _, leaked := me["password_hash"]; leaked {
			t.Error("expected password hash to stay private")
		}
	})

	t.Run("Duplicate Register", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/auth/register",
			map[string]string{"username": "alice", "email": "new@example.com", "password": "Secret123"}, "")
		if rec.Code != http.StatusBadRequest || errorMessage(t, rec) != "Username or email already exists" {
			t.Errorf("expected duplicate error, got %d %s", rec.Code, rec.Body)
		}
	})

	t.Run("Validation Details", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/auth/register",
			map[string]string{"email": "bad", "password": "Secret123"}, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		var body struct {
			Error   string               `json:"error"`
			Details []service.FieldError `json:"details"`
		}
		decode(t, rec, &body)
		if body.Error != "Invalid input data" || len(body.Details) != 1 || body.Details[0].Field != "email" {
			t.Errorf("unexpected validation body %s", rec.Body)
		}
	})

	t.Run("Password Longer Than 72 Bytes", func(t *testing.T) {
		long := "Aa1" + strings.Repeat("x", 80)
		requests := []struct {
			path string
			body map[string]string
		}{
			{"/api/auth/register", map[string]string{"email": "long@example.com", "password": long}},
			{"/api/auth/reset-password", map[string]string{"token": "deadbeef", "password": long}},
		}
		for _, req := range requests {
			rec := s.do(t, http.MethodPost, req.path, req.body, "")
			if rec.Code != http.StatusBadRequest || errorMessage(t, rec) != "Invalid input data" {
				t.Errorf("%s: expected 400 validation error, got %d %s", req.path, rec.Code, rec.Body)
			}
		}
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/auth/login", "{not json", "")
		if rec.Code != http.StatusBadRequest || errorMessage(t, rec) != "Invalid request body" {
			t.Errorf("expected invalid body error, got %d %s", rec.Code, rec.Body)
		}
	})

	t.Run("Wrong Password", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/auth/login",
			map[string]string{"email": "alice@example.com", "password": "Nope12345"}, "")
		if rec.Code != http.StatusBadRequest || errorMessage(t, rec) != "Invalid email or password" {
			t.Errorf("expected generic credentials error, got %d %s", rec.Code, rec.Body)
		}
	})

	t.Run("Forgot Password Always Acknowledges", func(t *testing.T) {
		for _, email := range []string{"alice@example.com", "ghost@example.com"} {
			rec := s.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": email}, "")
			var body messageResponse
			decode(t, rec, &body)
			if rec.Code != http.StatusOK || body.Message != forgotPasswordAck {
				t.Errorf("%s: expected ack, got %d %s", email, rec.Code, rec.Body)
			}
		}
	})

	t.Run("Reset With Bad Token", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/auth/reset-password",
			map[string]string{"token": "deadbeef", "password": "NewSecret1"}, "")
		if rec.Code != http.StatusBadRequest || errorMessage(t, rec) != "Invalid or expired reset token" {
			t.Errorf("expected reset token error, got %d %s", rec.Code, rec.Body)
		}
	})

	t.Run("Google Not Configured", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/auth/google", nil, "")
		if rec.Code != http.StatusBadRequest || errorMessage(t, rec) != "Google OAuth not configured" {
			t.Errorf("expected not configured error, got %d %s", rec.Code, rec.Body)
		}
	})

	t.Run("Delete Account", func(t *testing.T) {
		other := s.signup(t, "bob", "bob@example.com")
		s.createSong(t, other, map[string]string{"title": "T", "artist": "A"})

		rec := s.do(t, http.MethodDelete, "/api/auth/delete-account", map[string]string{"password": "wrong"}, other)
		if rec.Code != http.StatusBadRequest || errorMessage(t, rec) != "Invalid password" {
			t.Fatalf("expected invalid password, got %d %s", rec.Code, rec.Body)
		}
		rec = s.do(t, http.MethodDelete, "/api/auth/delete-account", map[string]string{"password": "Secret123"}, other)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body)
		}

		// The token is still well-formed but its account is gone.
		rec = s.do(t, http.MethodGet, "/api/auth/me", nil, other)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 for deleted account, got %d", rec.Code)
		}
		rec = s.do(t, http.MethodPost, "/api/songs", map[string]string{"title": "T", "artist": "A"}, other)
		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403 creating a song for a deleted account, got %d %s", rec.Code, rec.Body)
		}
	})
}

func TestSongRoutes(t *testing.T) {
	s := newTestServer(t, 100)
	alice := s.signup(t, "alice", "alice@example.com")
	bob := s.signup(t, "bob", "bob@example.com")

	id := s.createSong(t, alice, map[string]string{
		"title": "Hey Jude", "artist": "The Beatles", "genre": "Rock", "lyrics": "[F]Hey Jude, don't make it [C]bad",
	})
	s.createSong(t, alice, map[string]string{"title": "Let It Be", "artist": "The Beatles"})
	path := fmt.Sprintf("/api/songs/%d", id)

	t.Run("List Own Songs Only", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/songs?sort=title&order=asc", nil, alice)
		var songs []struct {
			Title string `json:"title"`
		}
		decode(t, rec, &songs)
		if len(songs) != 2 || songs[0].Title != "Hey Jude" || songs[1].Title != "Let It Be" {
			t.Errorf("unexpected list %s", rec.Body)
		}

		rec = s.do(t, http.MethodGet, "/api/songs", nil, bob)
		if strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Errorf("expected empty array for bob, got %s", rec.Body)
		}
	})

	t.Run("Search", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/songs?search=jude", nil, alice)
		var songs []map[string]any
		decode(t, rec, &songs)
		if len(songs) != 1 {
			t.Errorf("expected one match, got %s", rec.Body)
		}
	})

	t.Run("Other Owner Gets 404", func(t *testing.T) {
		for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
			rec := s.do(t, method, path, map[string]string{"title": "Mine now"}, bob)
			if rec.Code != http.StatusNotFound || errorMessage(t, rec) != "Song not found or access denied" {
				t.Errorf("%s: expected 404, got %d %s", method, rec.Code, rec.Body)
			}
		}
		rec := s.do(t, http.MethodGet, path+"/pdf", nil, bob)
		if rec.Code != http.StatusNotFound {
			t.Errorf("pdf: expected 404, got %d", rec.Code)
		}
	})

	t.Run("Repeated Get Is Stable", func(t *testing.T) {
		var first, second map[string]any
		decode(t, s.do(t, http.MethodGet, path, nil, alice), &first)
		decode(t, s.do(t, http.MethodGet, path, nil, alice), &second)
		if first["title"] != "Hey Jude" || !reflect.DeepEqual(first, second) {
			t.Errorf("expected identical bodies, got %v and %v", first, second)
		}
	})

	t.Run("Invalid ID", func(t *testing.T) {
		for _, p := range []string{"/api/songs/abc", "/api/songs/0", "/api/songs/-3"} {
			rec := s.do(t, http.MethodGet, p, nil, alice)
			if rec.Code != http.StatusBadRequest || errorMessage(t, rec) != "Invalid song ID" {
				t.Errorf("%s: expected 400 Invalid song ID, got %d %s", p, rec.Code, rec.Body)
			}
		}
	})

	t.Run("Partial Update", func(t *testing.T) {
		rec := s.do(t, http.MethodPut, path, map[string]string{"album": "Single"}, alice)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body)
		}
		var song map[string]any
		decode(t, rec, &song)
		if song["title"] != "Hey Jude" || song["album"] != "Single" || song["genre"] != "Rock" {
			t.Errorf("unexpected song after update %v", song)
		}
	})

	t.Run("Sheet", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, path+"/sheet", nil, alice)
		var sheet struct {
			Notation string `json:"notation"`
			Lines    []struct {
				Chords string `json:"chords"`
				Lyrics string `json:"lyrics"`
			} `json:"lines"`
		}
		decode(t, rec, &sheet)
		if sheet.Notation != "inline" || len(sheet.Lines) != 1 || sheet.Lines[0].Lyrics != "Hey Jude, don't make it bad" {
			t.Errorf("unexpected sheet %s", rec.Body)
		}
	})

	t.Run("PDF Export", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, path+"/pdf", nil, alice)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
			t.Errorf("expected application/pdf, got %s", ct)
		}
		if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="hey_jude.pdf"` {
			t.Errorf("unexpected Content-Disposition %s", cd)
		}
		if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
			t.Error("expected PDF body")
		}
	})

	t.Run("Text Export", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, path+"/txt", nil, alice)
		if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "Hey Jude\nBy The Beatles\n") {
			t.Errorf("unexpected text export %d %q", rec.Code, rec.Body)
		}
		if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="hey_jude.txt"` {
			t.Errorf("unexpected Content-Disposition %s", cd)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		rec := s.do(t, http.MethodDelete, path, nil, alice)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		rec = s.do(t, http.MethodGet, path, nil, alice)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 after delete, got %d", rec.Code)
		}
	})
}

func TestLoginRateLimit(t *testing.T) {
	s := newTestServer(t, 2)
	body := map[string]string{"email": "ghost@example.com", "password": "Secret123"}

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPost, "/api/auth/login", body, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("attempt %d: expected 400, got %d", i+1, rec.Code)
		}
		if rec.Header().Get("RateLimit-Limit") != "2" {
			t.Errorf("expected RateLimit-Limit 2, got %q", rec.Header().Get("RateLimit-Limit"))
		}
	}

	rec := s.do(t, http.MethodPost, "/api/auth/login", body, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if errorMessage(t, rec) != "Too many login attempts, please try again later" {
		t.Errorf("unexpected message %s", rec.Body)
	}
	if rec.Header().Get("Retry-After") == "" || rec.Header().Get("RateLimit-Remaining") != "0" {
		t.Errorf("expected Retry-After and zero remaining, got %v", rec.Header())
	}

	// Registration is not behind the login limiter.
	rec = s.do(t, http.MethodPost, "/api/auth/register",
		map[string]string{"email": "new@example.com", "password": "Secret123"}, "")
	if rec.Code != http.StatusCreated {
		t.Errorf("expected register to be unaffected, got %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, 5)

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/songs", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", "POST")
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := preflight("http://app.example.com")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for allowed origin, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://app.example.com" {
		t.Errorf("expected allow-origin header, got %v", rec.Header())
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("expected credentials to be allowed")
	}

	rec = preflight("http://evil.example.com")
	if rec.Code != http.StatusForbidden || errorMessage(t, rec) != "Not allowed by CORS" {
		t.Errorf("expected 403 for disallowed origin, got %d %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("expected no allow-origin header for disallowed origin")
	}
}

func TestBodyLimit(t *testing.T) {
	s := newTestServer(t, 5)
	token := s.signup(t, "alice", "alice@example.com")
	huge := strings.Repeat("a", 2<<20)
	rec := s.do(t, http.MethodPost, "/api/songs", map[string]string{"title": "T", "artist": "A", "lyrics": huge}, token)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestRecoverer(t *testing.T) {
	h := chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), recoverer(errorWriter{}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError || errorMessage(t, rec) != "Internal server error" {
		t.Errorf("expected 500, got %d %s", rec.Code, rec.Body)
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := clientKey(req, false); got != "10.0.0.1" {
		t.Errorf("expected remote address without proxy trust, got %s", got)
	}
	if got := clientKey(req, true); got != "203.0.113.9" {
		t.Errorf("expected first forwarded hop with proxy trust, got %s", got)
	}
}

func TestHealthDown(t *testing.T) {
	h := &HealthHandler{
		env:       "test",
		dbPing:    func(context.Context) error { return errors.New("down") },
		redisPing: func(context.Context) error { return nil },
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	var body healthResponse
	decode(t, rec, &body)
	if rec.Code != http.StatusOK || body.Database != "down" || body.Redis != "up" {
		t.Errorf("unexpected health %d %#v", rec.Code, body)
	}
}
