package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/insightora-auth/internal/application/auth"
	"github.com/insightora-auth/internal/application/device"
	"github.com/insightora-auth/internal/application/otp"
	"github.com/insightora-auth/internal/application/session"
	"github.com/insightora-auth/internal/config"
	"github.com/insightora-auth/internal/domain"
	jwtinfra "github.com/insightora-auth/internal/infrastructure/jwt"
	"github.com/insightora-auth/internal/infrastructure/memstore"
	"github.com/insightora-auth/internal/pkg/password"
	appmiddleware "github.com/insightora-auth/internal/transport/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

type discardNotifier struct{}

func (discardNotifier) Dispatch(context.Context, domain.Email) {}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privKey)})
	require.NoError(t, os.WriteFile(privPath, privPEM, 0600))
	pubBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0600))

	return &config.Config{
		JWTPrivateKeyPath: privPath,
		JWTPublicKeyPath:  pubPath,
		JWTIssuer:         "test",
		AccessTokenTTL:    time.Hour,
		RefreshTokenTTL:   24 * time.Hour,
		OTP:               config.OTPPolicy{TTL: 10 * time.Minute, Cooldown: time.Minute, MaxAttempts: 3},
		AllowedOrigins:    []string{"*"},
	}
}

// newTestServer wires the real services over in-memory stores. Every code
// issued is 123456.
func newTestServer(t *testing.T, limit func(http.Handler) http.Handler) *httptest.Server {
	t.Helper()
	cfg := newTestConfig(t)
	tokens, err := jwtinfra.NewProvider(cfg)
	require.NoError(t, err)

	users := memstore.NewUsers()
	svc := auth.NewService(auth.ServiceDeps{
		Users: users,
		OTP: otp.NewService(otp.ServiceDeps{
			Store:    memstore.NewOTPs(),
			Policy:   cfg.OTP,
			Generate: func() (string, error) { return "123456", nil },
		}),
		Devices:           device.NewService(device.ServiceDeps{Store: memstore.NewTrustedDevices(), TrustDuration: 30 * 24 * time.Hour}),
		Sessions:          session.NewService(session.ServiceDeps{Tokens: tokens, Users: users}),
		Hasher:            &password.Bcrypt{Cost: bcrypt.MinCost},
		Notifier:          discardNotifier{},
		OTPTTL:            cfg.OTP.TTL,
		PasswordMinLength: 8,
	})

	srv := httptest.NewServer(NewRouter(cfg, &Deps{Auth: svc, Tokens: tokens, RateLimit: limit}))
	t.Cleanup(srv.Close)
	return srv
}

type client struct {
	t   *testing.T
	srv *httptest.Server
}

func (c client) do(method, path string, body interface{}, bearer string) (int, map[string]interface{}) {
	c.t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, rdr)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "router-test/1.0")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.srv.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestRouter_FullFlow(t *testing.T) {
	c := client{t: t, srv: newTestServer(t, nil)}
	creds := map[string]interface{}{"email": "a@b.com", "password": "Passw0rd!"}

	status, body := c.do(http.MethodPost, "/v1/auth/register", map[string]interface{}{
		"email": "a@b.com", "password": "Passw0rd!", "first_name": "A", "last_name": "B", "account_class": "Individual",
	}, "")
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, true, body["otp_sent"])

	status, body = c.do(http.MethodPost, "/v1/auth/verify-registration", map[string]interface{}{"email": "a@b.com", "code": "123456"}, "")
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, body, "tokens")

	status, body = c.do(http.MethodPost, "/v1/auth/login", creds, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["requires_otp"])

	status, body = c.do(http.MethodPost, "/v1/auth/verify-login", map[string]interface{}{
		"email": "a@b.com", "code": "123456", "trust_device": true,
	}, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["device_trusted"])

	status, body = c.do(http.MethodPost, "/v1/auth/login", creds, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["requires_otp"])
	tokens := body["tokens"].(map[string]interface{})
	access := tokens["access_token"].(string)
	refresh := tokens["refresh_token"].(string)

	status, body = c.do(http.MethodGet, "/v1/auth/me", nil, access)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "a@b.com", body["email"])

	// A refresh token is not an access token.
	status, _ = c.do(http.MethodGet, "/v1/auth/me", nil, refresh)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = c.do(http.MethodPost, "/v1/auth/refresh", map[string]interface{}{"refresh_token": refresh}, "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "tokens")

	status, body = c.do(http.MethodGet, "/v1/devices", nil, access)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["devices"], 1)

	status, body = c.do(http.MethodPost, "/v1/devices/revoke-all", nil, access)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])
}

func TestRouter_ChangePassword(t *testing.T) {
	c := client{t: t, srv: newTestServer(t, nil)}
	status, _ := c.do(http.MethodPost, "/v1/auth/register", map[string]interface{}{
		"email": "a@b.com", "password": "Passw0rd!", "first_name": "A", "last_name": "B", "account_class": "Individual",
	}, "")
	require.Equal(t, http.StatusCreated, status)
	status, _ = c.do(http.MethodPost, "/v1/auth/verify-registration", map[string]interface{}{"email": "a@b.com", "code": "123456"}, "")
	require.Equal(t, http.StatusOK, status)
	status, _ = c.do(http.MethodPost, "/v1/auth/login", map[string]interface{}{"email": "a@b.com", "password": "Passw0rd!"}, "")
	require.Equal(t, http.StatusOK, status)
	status, body := c.do(http.MethodPost, "/v1/auth/verify-login", map[string]interface{}{"email": "a@b.com", "code": "123456"}, "")
	require.Equal(t, http.StatusOK, status)
	access := body["tokens"].(map[string]interface{})["access_token"].(string)

	change := map[string]interface{}{"current_password": "Passw0rd!", "new_password": "Brand-new-pass"}
	status, _ = c.do(http.MethodPost, "/v1/auth/password/change", change, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = c.do(http.MethodPost, "/v1/auth/password/change",
		map[string]interface{}{"current_password": "nope-nope", "new_password": "Brand-new-pass"}, access)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "WRONG_CURRENT_PASSWORD", body["code"])

	status, _ = c.do(http.MethodPost, "/v1/auth/password/change", change, access)
	require.Equal(t, http.StatusOK, status)

	status, _ = c.do(http.MethodPost, "/v1/auth/login", map[string]interface{}{"email": "a@b.com", "password": "Passw0rd!"}, "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRouter_DevicesRequireBearer(t *testing.T) {
	c := client{t: t, srv: newTestServer(t, nil)}
	status, body := c.do(http.MethodGet, "/v1/devices", nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_TOKEN", body["code"])
}

func TestRouter_PublicAuthRoutesAreLimited(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := client{t: t, srv: newTestServer(t, appmiddleware.NewRateLimiter(ctx, rate.Limit(0.001), 2).Limit)}
	creds := map[string]interface{}{"email": "nobody@b.com", "password": "Passw0rd!"}

	for i := 0; i < 2; i++ {
		status, _ := c.do(http.MethodPost, "/v1/auth/login", creds, "")
		assert.Equal(t, http.StatusUnauthorized, status)
	}
	status, _ := c.do(http.MethodPost, "/v1/auth/login", creds, "")
	assert.Equal(t, http.StatusTooManyRequests, status)

	// Health checks sit outside the limiter.
	status, _ = c.do(http.MethodGet, "/v1/health-check/ping", nil, "")
	assert.Equal(t, http.StatusOK, status)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
