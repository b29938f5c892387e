package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	notevault "github.com/MrEthical07/notevault"
	"github.com/MrEthical07/notevault/internal/notes"
	"github.com/MrEthical07/notevault/internal/store/memory"
	promexport "github.com/MrEthical07/notevault/metrics/export/prometheus"
	"github.com/MrEthical07/notevault/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strongPassword = "Str0ng!Passw0rd"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	t      *testing.T
	url    string
	client *http.Client
	clock  *clock
	redis  *miniredis.Miniredis
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	clk := &clock{now: time.Now().UTC().Truncate(time.Second)}
	store := memory.New().WithClock(clk.Now)

	cfg := notevault.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-access-secret-0001")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-refresh-secret-01")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := notevault.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(store).
		WithClock(clk.Now).
		WithMetricsEnabled(true).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	srv, err := New(Options{
		Engine:  engine,
		Notes:   notes.NewService(store, clk.Now),
		Policy:  cfg.Password.Policy,
		Metrics: promexport.NewExporter(engine).Handler(),
		HealthChecks: map[string]HealthCheck{
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
		Now: clk.Now,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &harness{
		t:      t,
		url:    ts.URL,
		client: &http.Client{Jar: jar},
		clock:  clk,
		redis:  mr,
	}
}

func (h *harness) do(method, path string, body any) (int, map[string]any) {
	h.t.Helper()
	status, raw := h.doRaw(method, path, body)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(h.t, json.Unmarshal(raw, &out))
	}
	return status, out
}

func (h *harness) doRaw(method, path string, body any) (int, []byte) {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.url+path, &buf)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(h.t, err)
	return resp.StatusCode, out.Bytes()
}

func (h *harness) code(secret string) string {
	h.t.Helper()
	code, err := totp.GenerateCode(secret, h.clock.Now())
	require.NoError(h.t, err)
	return code
}

// enroll signs up and verifies MFA, leaving the client logged in.
func (h *harness) enroll(email string) (secret string, backupCodes []any) {
	h.t.Helper()
	status, body := h.do(http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Ada", "email": email, "password": strongPassword,
	})
	require.Equal(h.t, http.StatusCreated, status, body)
	secret = body["secret"].(string)

	status, body = h.do(http.MethodPost, "/api/auth/verify-mfa", map[string]string{
		"token": body["tempToken"].(string), "mfaCode": h.code(secret),
	})
	require.Equal(h.t, http.StatusOK, status, body)
	h.clock.Advance(30 * time.Second)
	return secret, body["backupCodes"].([]any)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	h.redis.Close()
	status, body = h.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "down", body["checks"].(map[string]any)["redis"])

	status, raw := h.doRaw(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "# TYPE")
}

func TestSignupValidation(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Ada", "email": "not-an-email", "password": "short",
	})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Validation error", body["message"])

	fields := map[string]string{}
	for _, e := range body["errors"].([]any) {
		fe := e.(map[string]any)
		fields[fe["field"].(string)] = fe["message"].(string)
	}
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields["password"], "at least 10 characters")
	assert.NotContains(t, fields["password"], "short")

	status, _ = h.do(http.MethodPost, "/api/auth/signup", "{")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	h := newHarness(t)
	h.enroll("dup@example.com")

	status, body := h.do(http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Ada", "email": "dup@example.com", "password": strongPassword,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "User already exists with this email", body["message"])
}

func TestEnrollmentSession(t *testing.T) {
	h := newHarness(t)
	_, backup := h.enroll("session@example.com")
	assert.Len(t, backup, 10)

	status, body := h.do(http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusOK, status, body)
	user := body["user"].(map[string]any)
	assert.Equal(t, "session@example.com", user["email"])
	assert.Equal(t, true, user["mfaEnabled"])
	assert.NotContains(t, user, "passwordHash")

	salt := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef"))
	status, body = h.do(http.MethodPut, "/api/auth/encryption-salt", map[string]string{"salt": salt})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, salt, body["user"].(map[string]any)["encryptionSalt"])

	status, _ = h.do(http.MethodPut, "/api/auth/encryption-salt", map[string]string{"salt": salt})
	assert.Equal(t, http.StatusConflict, status)

	status, body = h.do(http.MethodPost, "/api/auth/refresh", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Token refreshed successfully", body["message"])

	status, _ = h.do(http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = h.do(http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "missing", body["reason"])
}

func TestVerifyMFARejectsBadCode(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Ada", "email": "badcode@example.com", "password": strongPassword,
	})
	require.Equal(t, http.StatusCreated, status)
	token := body["tempToken"].(string)

	status, body = h.do(http.MethodPost, "/api/auth/verify-mfa", map[string]string{"token": token, "mfaCode": "12345"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Validation error", body["message"])

	status, body = h.do(http.MethodPost, "/api/auth/verify-mfa", map[string]string{"token": "garbage", "mfaCode": "123456"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "malformed", body["reason"])
}

func TestLoginWithMFAChallenge(t *testing.T) {
	h := newHarness(t)
	secret, backup := h.enroll("login@example.com")
	h.do(http.MethodPost, "/api/auth/logout", nil)

	status, body := h.do(http.MethodPost, "/api/auth/login", map[string]string{
		"email": "login@example.com", "password": strongPassword,
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["requiresMFA"])
	temp := body["tempToken"].(string)

	status, body = h.do(http.MethodPost, "/api/auth/login/mfa", map[string]string{"token": temp, "mfaCode": "000000"})
	if h.code(secret) != "000000" {
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "Invalid MFA code", body["message"])
	}

	status, body = h.do(http.MethodPost, "/api/auth/login/backup-code", map[string]string{
		"token": temp, "code": backup[0].(string),
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Login successful", body["message"])

	status, _ = h.do(http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestLoginInvalidCredentialsAndLockout(t *testing.T) {
	h := newHarness(t)
	h.enroll("lock@example.com")
	h.do(http.MethodPost, "/api/auth/logout", nil)

	for i := 0; i < 5; i++ {
		status, body := h.do(http.MethodPost, "/api/auth/login", map[string]string{
			"email": "lock@example.com", "password": "Wr0ng!Password",
		})
		require.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "Invalid credentials", body["message"])
	}

	status, body := h.do(http.MethodPost, "/api/auth/login", map[string]string{
		"email": "lock@example.com", "password": strongPassword,
	})
	assert.Equal(t, http.StatusLocked, status)
	assert.Equal(t, "Account temporarily locked", body["message"])

	status, body = h.do(http.MethodPost, "/api/auth/login", map[string]string{
		"email": "nobody@example.com", "password": strongPassword,
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid credentials", body["message"])
}

func TestRefreshWithoutCookie(t *testing.T) {
	h := newHarness(t)

	req, err := http.NewRequest(http.MethodPost, h.url+"/api/auth/refresh", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Refresh token required", body.Message)
	assert.Equal(t, "missing", body.Reason)

	cleared := 0
	for _, c := range resp.Cookies() {
		if c.MaxAge < 0 {
			cleared++
		}
	}
	assert.Equal(t, 2, cleared)
}

// post sends a bodiless POST through the cookie jar and returns the raw
// response for cookie inspection.
func (h *harness) post(path string) *http.Response {
	h.t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.url+path, nil)
	require.NoError(h.t, err)
	resp, err := h.client.Do(req)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func cookieByName(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRefreshWithExpiredToken(t *testing.T) {
	h := newHarness(t)
	h.enroll("expired-refresh@example.com")

	h.clock.Advance(notevault.DefaultConfig().JWT.RefreshTTL + time.Minute)
	resp := h.post("/api/auth/refresh")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Refresh token expired", body.Message)
	assert.Equal(t, "expired", body.Reason)

	for _, name := range []string{"accessToken", "refreshToken"} {
		c := cookieByName(resp, name)
		require.NotNil(t, c, name)
		assert.Negative(t, c.MaxAge, name)
	}
}

func TestRefreshRotatesRepeatedly(t *testing.T) {
	h := newHarness(t)
	h.enroll("rotate@example.com")

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		h.clock.Advance(time.Minute)
		resp := h.post("/api/auth/refresh")
		require.Equal(t, http.StatusOK, resp.StatusCode, "refresh %d", i+1)

		refresh := cookieByName(resp, "refreshToken")
		require.NotNil(t, refresh)
		assert.Positive(t, refresh.MaxAge)
		assert.False(t, seen[refresh.Value], "refresh %d reused a token", i+1)
		seen[refresh.Value] = true
		require.NotNil(t, cookieByName(resp, "accessToken"))
	}

	status, body := h.do(http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusOK, status, body)
}

func TestRejectedAccessCookieIsCleared(t *testing.T) {
	h := newHarness(t)
	h.enroll("stale-access@example.com")

	u, err := url.Parse(h.url)
	require.NoError(t, err)
	h.client.Jar.SetCookies(u, []*http.Cookie{{Name: "accessToken", Value: "not-a-jwt", Path: "/"}})

	req, err := http.NewRequest(http.MethodGet, h.url+"/api/auth/me", nil)
	require.NoError(t, err)
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	access := cookieByName(resp, "accessToken")
	require.NotNil(t, access)
	assert.Negative(t, access.MaxAge)
	assert.Nil(t, cookieByName(resp, "refreshToken"), "the refresh cookie must survive")

	assert.Equal(t, http.StatusOK, h.post("/api/auth/refresh").StatusCode)
	status, _ := h.do(http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestNotesRequireAuth(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(http.MethodGet, "/api/notes", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "missing", body["reason"])
}

func TestNotesLifecycle(t *testing.T) {
	h := newHarness(t)
	h.enroll("notes@example.com")

	content := map[string]string{"ciphertext": "Y2lwaGVy", "iv": "aXY=", "salt": "c2FsdA=="}
	status, body := h.do(http.MethodPost, "/api/notes", map[string]any{
		"title": "groceries", "content": content, "tags": []string{" Home ", "home"},
	})
	require.Equal(t, http.StatusCreated, status, body)
	id := body["id"].(string)
	assert.Equal(t, []any{"home"}, body["tags"])
	assert.NotContains(t, body, "userId")

	status, body = h.do(http.MethodPost, "/api/notes", map[string]any{
		"title": "missing iv", "content": map[string]string{"ciphertext": "x", "salt": "y"},
	})
	assert.Equal(t, http.StatusBadRequest, status, body)

	status, body = h.do(http.MethodPatch, "/api/notes/"+id, map[string]any{"isFavorite": true})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["isFavorite"])
	assert.Equal(t, "groceries", body["title"])

	status, raw := h.doRaw(http.MethodGet, "/api/notes?favorite=true", nil)
	require.Equal(t, http.StatusOK, status)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list, 1)

	status, body = h.do(http.MethodPost, "/api/notes/"+id+"/restore", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Note not found in trash", body["message"])

	status, _ = h.do(http.MethodDelete, "/api/notes/"+id, nil)
	require.Equal(t, http.StatusOK, status)

	_, raw = h.doRaw(http.MethodGet, "/api/notes", nil)
	require.NoError(t, json.Unmarshal(raw, &list))
	assert.Empty(t, list)

	_, raw = h.doRaw(http.MethodGet, "/api/notes?deleted=true", nil)
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list, 1)
	assert.Equal(t, true, list[0]["isDeleted"])

	status, body = h.do(http.MethodPost, "/api/notes/"+id+"/restore", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, false, body["note"].(map[string]any)["isDeleted"])

	status, _ = h.do(http.MethodDelete, "/api/notes/"+id+"/hard", nil)
	assert.Equal(t, http.StatusNotFound, status)

	h.do(http.MethodDelete, "/api/notes/"+id, nil)
	status, _ = h.do(http.MethodDelete, "/api/notes/"+id+"/hard", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = h.do(http.MethodGet, "/api/notes/"+id, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = h.do(http.MethodGet, "/api/notes?favorite=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMapErrorHidesInternalErrors(t *testing.T) {
	status, body := mapError(errors.New("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Internal server error", body.Message)

	status, body = mapError(notevault.ErrMFARateLimited)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.NotEmpty(t, body.Message)

	status, body = mapError(notevault.ErrTokenExpired)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "expired", body.Reason)
}

func TestRegisterValidationsReportsFailure(t *testing.T) {
	v := validator.New()
	err := registerValidations(v, map[string]validator.Func{"": validateMFACode})
	assert.Error(t, err)

	rv, err := newRequestValidator(password.DefaultPolicy())
	require.NoError(t, err)
	assert.Error(t, rv.Validate(&struct {
		Code string `json:"code" validate:"mfacode"`
	}{Code: "12ab56"}))
}
