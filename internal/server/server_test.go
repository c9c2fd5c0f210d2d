package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/authflow/internal/auth"
	"github.com/congo-pay/authflow/internal/config"
	"github.com/congo-pay/authflow/internal/identity"
	"github.com/congo-pay/authflow/internal/logging"
	"github.com/congo-pay/authflow/internal/notification"
	"github.com/congo-pay/authflow/internal/routes"
)

const (
	email = "asha@example.com"
	phone = "+919812345678"
)

type inbox struct {
	mu   sync.Mutex
	msgs []notification.Message
	err  error
}

func (i *inbox) Send(_ context.Context, msg notification.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return i.err
	}
	i.msgs = append(i.msgs, msg)
	return nil
}

func (i *inbox) last(t *testing.T) notification.Message {
	t.Helper()
	i.mu.Lock()
	defer i.mu.Unlock()
	require.NotEmpty(t, i.msgs)
	return i.msgs[len(i.msgs)-1]
}

type harness struct {
	app   *fiber.App
	email *inbox
	voice *inbox
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})

	h := &harness{email: &inbox{}, voice: &inbox{}}
	srv, err := New(routes.Deps{
		Cfg: config.Config{
			AppName:            "AuthFlow",
			AppEnv:             "test",
			JWTSecret:          "test-secret",
			SessionTTL:         time.Hour,
			CookieExpireDays:   3,
			FrontendURL:        "http://localhost:5173",
			IdempotencyTTL:     time.Minute,
			OTPTTL:             10 * time.Minute,
			ResetTokenTTL:      15 * time.Minute,
			NotifyTimeout:      5 * time.Second,
			MaxPendingAttempts: 3,
			RateLimitPerMinute: 100,
		},
		Cache:      cache,
		Logger:     logging.Discard(),
		Email:      h.email,
		Voice:      h.voice,
		Repository: identity.NewMemoryRepository(),
	})
	require.NoError(t, err)
	h.app = srv.app
	return h
}

type reply struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Token   string           `json:"token"`
	User    identity.Profile `json:"user"`
}

func (h *harness) do(t *testing.T, method, path string, body any, token string) (*http.Response, reply) {
	t.Helper()
	return h.doKeyed(t, method, path, body, token, "")
}

func (h *harness) doKeyed(t *testing.T, method, path string, body any, token, idempotencyKey string) (*http.Response, reply) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = strings.NewReader(string(b))
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderCookie, auth.CookieName+"="+token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out reply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

var codePattern = regexp.MustCompile(`<h1>(\d{5})</h1>`)

func (h *harness) register(t *testing.T) string {
	t.Helper()
	resp, out := h.do(t, fiber.MethodPost, "/api/v1/user/register", fiber.Map{
		"name": "Asha", "email": email, "phone": phone, "password": "s3cret!", "verificationMethod": "email",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Verification email sent to "+email, out.Message)

	m := codePattern.FindStringSubmatch(h.email.last(t).Body)
	require.Len(t, m, 2)
	return m[1]
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}

func TestAccountLifecycle(t *testing.T) {
	h := newHarness(t)
	code := h.register(t)

	resp, out := h.do(t, fiber.MethodPost, "/api/v1/user/otp-verification", fiber.Map{
		"email": email, "phone": phone, "otp": code,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Account verified successfully.", out.Message)
	assert.True(t, out.User.AccountVerified)
	require.NotEmpty(t, out.Token)

	cookie := sessionCookie(resp)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, out.Token, cookie.Value)

	resp, out = h.do(t, fiber.MethodGet, "/api/v1/user/me", nil, out.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, email, out.User.Email)

	resp, login := h.do(t, fiber.MethodPost, "/api/v1/user/login", fiber.Map{"email": email, "password": "s3cret!"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Login successful.", login.Message)

	resp, out = h.do(t, fiber.MethodGet, "/api/v1/user/logout", nil, login.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Logged out successfully.", out.Message)
	cleared := sessionCookie(resp)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	resp, out = h.do(t, fiber.MethodGet, "/api/v1/user/me", nil, login.Token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, out.Success)
}

func TestVerifyAcceptsNumericOTP(t *testing.T) {
	h := newHarness(t)
	code := h.register(t)

	resp, out := h.do(t, fiber.MethodPost, "/api/v1/user/otp-verification", fiber.Map{
		"email": email, "phone": phone, "otp": json.Number(code),
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, out.Message)
}

func TestErrorsRenderAsFailures(t *testing.T) {
	h := newHarness(t)

	resp, out := h.do(t, fiber.MethodPost, "/api/v1/user/register", fiber.Map{"email": email}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, reply{Success: false, Message: "All fields are required."}, out)

	resp, out = h.do(t, fiber.MethodPost, "/api/v1/user/otp-verification", fiber.Map{
		"email": "nobody@example.com", "phone": "+919700000000", "otp": "12345",
	}, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "User not found.", out.Message)

	resp, out = h.do(t, fiber.MethodPost, "/api/v1/user/login", fiber.Map{"email": email, "password": "nope"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid credentials.", out.Message)

	resp, out = h.do(t, fiber.MethodGet, "/api/v1/user/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, out.Success)

	resp, out = h.do(t, fiber.MethodGet, "/api/v1/user/logout", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out.Success)
}

func TestDeliveryFailureIs500(t *testing.T) {
	h := newHarness(t)
	h.voice.err = errors.New("provider down")

	resp, out := h.do(t, fiber.MethodPost, "/api/v1/user/register", fiber.Map{
		"name": "Asha", "email": email, "phone": phone, "password": "s3cret!", "verificationMethod": "phone",
	}, "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Failed to send verification code.", out.Message)
}

var resetPattern = regexp.MustCompile(`/password/reset/([0-9a-f]{40})`)

func TestPasswordRecovery(t *testing.T) {
	h := newHarness(t)
	code := h.register(t)
	resp, _ := h.do(t, fiber.MethodPost, "/api/v1/user/otp-verification", fiber.Map{
		"email": email, "phone": phone, "otp": code,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, out := h.do(t, fiber.MethodPost, "/api/v1/user/password/forgot", fiber.Map{"email": email}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Password reset email sent.", out.Message)

	m := resetPattern.FindStringSubmatch(h.email.last(t).Body)
	require.Len(t, m, 2)
	path := "/api/v1/user/password/reset/" + m[1]

	resp, out = h.do(t, fiber.MethodPut, path, fiber.Map{"password": "n3w", "confirmPassword": "other"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Passwords do not match.", out.Message)

	resp, out = h.do(t, fiber.MethodPut, path, fiber.Map{"password": "n3w", "confirmPassword": "n3w"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Password reset successful.", out.Message)
	assert.NotEmpty(t, out.Token)

	resp, out = h.do(t, fiber.MethodPut, path, fiber.Map{"password": "x", "confirmPassword": "x"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid or expired token.", out.Message)

	resp, _ = h.do(t, fiber.MethodPost, "/api/v1/user/login", fiber.Map{"email": email, "password": "n3w"}, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	resp, err := h.app.Test(httptest.NewRequest(fiber.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Status map[string]string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body.Status["redis"])
	assert.Equal(t, "disabled", body.Status["postgres"])
}

func TestIdempotencyKeyNeverSharesSessions(t *testing.T) {
	h := newHarness(t)
	code := h.register(t)
	resp, _ := h.do(t, fiber.MethodPost, "/api/v1/user/otp-verification", fiber.Map{
		"email": email, "phone": phone, "otp": code,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, out := h.doKeyed(t, fiber.MethodPost, "/api/v1/user/login", fiber.Map{"email": email, "password": "s3cret!"}, "", "1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, out.Token)

	resp, other := h.doKeyed(t, fiber.MethodPost, "/api/v1/user/login",
		fiber.Map{"email": "mallory@example.com", "password": "guess"}, "", "1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid credentials.", other.Message)
	assert.Empty(t, other.Token)
	assert.Nil(t, sessionCookie(resp))
}

func TestRegisterReplaysWithIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	body := fiber.Map{
		"name": "Asha", "email": email, "phone": phone, "password": "s3cret!", "verificationMethod": "email",
	}

	resp, first := h.doKeyed(t, fiber.MethodPost, "/api/v1/user/register", body, "", "signup-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, second := h.doKeyed(t, fiber.MethodPost, "/api/v1/user/register", body, "", "signup-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, first, second)
	h.email.mu.Lock()
	defer h.email.mu.Unlock()
	assert.Len(t, h.email.msgs, 1)
}
