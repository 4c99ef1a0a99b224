package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/insightora-auth/internal/application/auth"
	"github.com/insightora-auth/internal/domain"
	jwtinfra "github.com/insightora-auth/internal/infrastructure/jwt"
	"github.com/insightora-auth/internal/transport/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func jsonReq(t *testing.T, method, target string, v interface{}) *http.Request {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return httptest.NewRequest(method, target, bytes.NewReader(body))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&m))
	return m
}

var profile = &domain.UserProfile{UserID: "u1", Email: "a@b.com", AccountClass: domain.AccountIndividual, Verified: true, Active: true}

// --- Register ---

func TestRegister_InvalidBody(t *testing.T) {
	h := NewAuthHandler(&mockAuthSvc{})
	r := httptest.NewRequest(http.MethodPost, "/v1/auth/register", bytes.NewBufferString("not-json"))
	rr := httptest.NewRecorder()
	h.Register(rr, r)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRegister_ValidationFailure(t *testing.T) {
	svc := &mockAuthSvc{}
	h := NewAuthHandler(svc)
	r := jsonReq(t, http.MethodPost, "/v1/auth/register", map[string]string{
		"email": "a@b.com", "password": "Passw0rd!", "first_name": "A", "last_name": "B", "account_class": "Team",
	})
	rr := httptest.NewRecorder()
	h.Register(rr, r)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "VALIDATION_FAILED", body["code"])
	assert.Contains(t, body["error"], "AccountClass")
	svc.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
}

func TestRegister_HappyPath(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Register", mock.Anything, mock.MatchedBy(func(req auth.RegisterRequest) bool {
		return req.Email == "a@b.com" && req.AccountClass == domain.AccountIndividual
	})).Return(&auth.RegisterResult{UserID: "u1", Email: "a@b.com", OTPSent: true}, nil)
	h := NewAuthHandler(svc)

	r := jsonReq(t, http.MethodPost, "/v1/auth/register", map[string]string{
		"email": " a@b.com ", "password": "Passw0rd!", "first_name": "A", "last_name": "B", "account_class": "Individual",
	})
	rr := httptest.NewRecorder()
	h.Register(rr, r)

	assert.Equal(t, http.StatusCreated, rr.Code)
	var resp RegisterEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, RegisterEnvelope{UserID: "u1", Email: "a@b.com", OTPSent: true, NextStep: "verify_registration"}, resp)
	svc.AssertExpectations(t)
}

func TestRegister_EmailExists(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Register", mock.Anything, mock.Anything).Return(nil, domain.ErrEmailExists)
	h := NewAuthHandler(svc)

	r := jsonReq(t, http.MethodPost, "/v1/auth/register", map[string]string{
		"email": "a@b.com", "password": "Passw0rd!", "first_name": "A", "last_name": "B", "account_class": "Business",
	})
	rr := httptest.NewRecorder()
	h.Register(rr, r)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "EMAIL_EXISTS", decodeBody(t, rr)["code"])
}

// --- VerifyRegistration ---

func TestVerifyRegistration_NeverReturnsTokens(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("VerifyRegistration", mock.Anything, auth.VerifyCodeRequest{Email: "a@b.com", Code: "012345"}).
		Return(&auth.VerifyRegistrationResult{User: profile, NextStep: auth.NextStepLogin}, nil)
	h := NewAuthHandler(svc)

	rr := httptest.NewRecorder()
	h.VerifyRegistration(rr, jsonReq(t, http.MethodPost, "/", map[string]string{"email": "a@b.com", "code": "012345"}))

	assert.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "login", body["next_step"])
	assert.NotContains(t, body, "tokens")
}

func TestVerifyRegistration_MalformedCode(t *testing.T) {
	h := NewAuthHandler(&mockAuthSvc{})
	rr := httptest.NewRecorder()
	h.VerifyRegistration(rr, jsonReq(t, http.MethodPost, "/", map[string]string{"email": "a@b.com", "code": "12ab56"}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// --- Login ---

func TestLogin_RequiresOTP_PassesDeviceSignal(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Login", mock.Anything, mock.MatchedBy(func(req auth.LoginRequest) bool {
		return req.Device.UserAgent == "TestAgent/1.0" && req.Device.NetworkOrigin == "203.0.113.9"
	})).Return(&auth.LoginResult{RequiresOTP: true, MaskedEmail: "a@b.com"}, nil)
	h := NewAuthHandler(svc)

	r := jsonReq(t, http.MethodPost, "/", map[string]string{"email": "a@b.com", "password": "Passw0rd!"})
	r.Header.Set("User-Agent", "TestAgent/1.0")
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rr := httptest.NewRecorder()
	h.Login(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, true, body["requires_otp"])
	assert.NotContains(t, body, "tokens")
	svc.AssertExpectations(t)
}

func TestLogin_TrustedDeviceReturnsTokens(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Login", mock.Anything, mock.Anything).Return(&auth.LoginResult{
		User: profile, Tokens: &domain.TokenPair{AccessToken: "at", RefreshToken: "rt", TokenType: "Bearer"},
	}, nil)
	h := NewAuthHandler(svc)

	rr := httptest.NewRecorder()
	h.Login(rr, jsonReq(t, http.MethodPost, "/", map[string]string{"email": "a@b.com", "password": "Passw0rd!"}))

	var resp LoginEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.False(t, resp.RequiresOTP)
	require.NotNil(t, resp.Tokens)
	assert.Equal(t, "at", resp.Tokens.AccessToken)
}

func TestLogin_InfrastructureErrorIsGeneric(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Login", mock.Anything, mock.Anything).Return(nil, errors.New("dynamodb: connection reset"))
	h := NewAuthHandler(svc)

	rr := httptest.NewRecorder()
	h.Login(rr, jsonReq(t, http.MethodPost, "/", map[string]string{"email": "a@b.com", "password": "Passw0rd!"}))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "dynamodb")
}

func TestLogin_ErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{domain.ErrEmailNotVerified, http.StatusForbidden, "EMAIL_NOT_VERIFIED"},
		{domain.ErrAccountDeactivated, http.StatusForbidden, "ACCOUNT_DEACTIVATED"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			svc := &mockAuthSvc{}
			svc.On("Login", mock.Anything, mock.Anything).Return(nil, tc.err)
			rr := httptest.NewRecorder()
			NewAuthHandler(svc).Login(rr, jsonReq(t, http.MethodPost, "/", map[string]string{"email": "a@b.com", "password": "x"}))
			assert.Equal(t, tc.status, rr.Code)
			assert.Equal(t, tc.code, decodeBody(t, rr)["code"])
		})
	}
}

// --- VerifyLogin ---

func TestVerifyLogin_MismatchCarriesAttempts(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("VerifyLogin", mock.Anything, mock.Anything).Return(nil, domain.OTPMismatch(1))
	h := NewAuthHandler(svc)

	rr := httptest.NewRecorder()
	h.VerifyLogin(rr, jsonReq(t, http.MethodPost, "/", map[string]interface{}{"email": "a@b.com", "code": "000000", "trust_device": true}))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "OTP_MISMATCH", body["code"])
	assert.Equal(t, float64(1), body["attempts_remaining"])
}

func TestVerifyLogin_ZeroAttemptsRemainingIsReported(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("VerifyLogin", mock.Anything, mock.Anything).Return(nil, domain.OTPMismatch(0))
	rr := httptest.NewRecorder()
	NewAuthHandler(svc).VerifyLogin(rr, jsonReq(t, http.MethodPost, "/", map[string]string{"email": "a@b.com", "code": "000000"}))

	assert.Equal(t, float64(0), decodeBody(t, rr)["attempts_remaining"])
}

func TestVerifyLogin_Success(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("VerifyLogin", mock.Anything, mock.MatchedBy(func(req auth.VerifyLoginRequest) bool {
		return req.TrustDevice && req.DeviceLabel != nil && *req.DeviceLabel == "Work laptop"
	})).Return(&auth.VerifyLoginResult{User: profile, Tokens: &domain.TokenPair{AccessToken: "at"}, DeviceTrusted: true}, nil)
	h := NewAuthHandler(svc)

	rr := httptest.NewRecorder()
	h.VerifyLogin(rr, jsonReq(t, http.MethodPost, "/", map[string]interface{}{
		"email": "a@b.com", "code": "123456", "trust_device": true, "device_label": "Work laptop",
	}))

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp VerifyLoginEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.True(t, resp.DeviceTrusted)
	assert.Equal(t, "at", resp.Tokens.AccessToken)
}

// --- rate limited codes ---

func TestResendVerification_RateLimitedSetsRetryAfter(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("ResendVerification", mock.Anything, "a@b.com").Return(domain.OTPRateLimited(41500 * time.Millisecond))
	h := NewAuthHandler(svc)

	rr := httptest.NewRecorder()
	h.ResendVerification(rr, jsonReq(t, http.MethodPost, "/", map[string]string{"email": "a@b.com"}))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "42", rr.Header().Get("Retry-After"))
	body := decodeBody(t, rr)
	assert.Equal(t, "OTP_RATE_LIMITED", body["code"])
	assert.Equal(t, float64(42), body["retry_after_seconds"])
}

// --- Refresh ---

func TestRefresh_MissingToken(t *testing.T) {
	h := NewAuthHandler(&mockAuthSvc{})
	rr := httptest.NewRecorder()
	h.Refresh(rr, jsonReq(t, http.MethodPost, "/", map[string]string{}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRefresh_InactiveUser(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Refresh", mock.Anything, "rt").Return(nil, domain.ErrUserInactive)
	rr := httptest.NewRecorder()
	NewAuthHandler(svc).Refresh(rr, jsonReq(t, http.MethodPost, "/", map[string]string{"refresh_token": "rt"}))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "USER_INACTIVE", decodeBody(t, rr)["code"])
}

func TestRefresh_Success(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Refresh", mock.Anything, "rt").Return(&domain.TokenPair{AccessToken: "at2", RefreshToken: "rt2"}, nil)
	rr := httptest.NewRecorder()
	NewAuthHandler(svc).Refresh(rr, jsonReq(t, http.MethodPost, "/", map[string]string{"refresh_token": "rt"}))

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp TokensEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "at2", resp.Tokens.AccessToken)
}

// --- password reset ---

func TestRequestPasswordReset_AlwaysOK(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("RequestPasswordReset", mock.Anything, "nobody@b.com").Return(nil)
	rr := httptest.NewRecorder()
	NewAuthHandler(svc).RequestPasswordReset(rr, jsonReq(t, http.MethodPost, "/", map[string]string{"email": "nobody@b.com"}))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestResetPassword_WeakPassword(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("ResetPassword", mock.Anything, mock.Anything).Return(domain.WeakPassword("password must be at least 8 characters"))
	rr := httptest.NewRecorder()
	NewAuthHandler(svc).ResetPassword(rr, jsonReq(t, http.MethodPost, "/", map[string]string{
		"email": "a@b.com", "code": "123456", "new_password": "short",
	}))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "WEAK_PASSWORD", body["code"])
	assert.Equal(t, "password must be at least 8 characters", body["error"])
}

// --- ChangePassword ---

func TestChangePassword_UsesTokenSubject(t *testing.T) {
	svc := &mockAuthSvc{}
	want := auth.ChangePasswordRequest{CurrentPassword: "Passw0rd!", NewPassword: "Brand-new-pass"}
	svc.On("ChangePassword", mock.Anything, "u1", want).Return(nil)

	r := jsonReq(t, http.MethodPost, "/v1/auth/password/change", map[string]string{
		"current_password": "Passw0rd!", "new_password": "Brand-new-pass",
	})
	r = r.WithContext(withSubject(r.Context(), "u1"))
	rr := httptest.NewRecorder()
	NewAuthHandler(svc).ChangePassword(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

func TestChangePassword_Rejections(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{domain.ErrWrongPassword, "WRONG_CURRENT_PASSWORD"},
		{domain.ErrSamePassword, "SAME_PASSWORD"},
		{domain.WeakPassword("password must be at least 8 characters"), "WEAK_PASSWORD"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			svc := &mockAuthSvc{}
			svc.On("ChangePassword", mock.Anything, "u1", mock.Anything).Return(tc.err)
			r := jsonReq(t, http.MethodPost, "/", map[string]string{"current_password": "x", "new_password": "y"})
			r = r.WithContext(withSubject(r.Context(), "u1"))
			rr := httptest.NewRecorder()
			NewAuthHandler(svc).ChangePassword(rr, r)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tc.code, decodeBody(t, rr)["code"])
		})
	}
}

func TestChangePassword_MissingFieldsOrClaims(t *testing.T) {
	rr := httptest.NewRecorder()
	NewAuthHandler(&mockAuthSvc{}).ChangePassword(rr, jsonReq(t, http.MethodPost, "/", map[string]string{"new_password": "y"}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	r := jsonReq(t, http.MethodPost, "/", map[string]string{"new_password": "y"})
	r = r.WithContext(withSubject(r.Context(), "u1"))
	rr = httptest.NewRecorder()
	NewAuthHandler(&mockAuthSvc{}).ChangePassword(rr, r)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_FAILED", decodeBody(t, rr)["code"])
}

// --- Me ---

func TestMe_MissingClaims(t *testing.T) {
	rr := httptest.NewRecorder()
	NewAuthHandler(&mockAuthSvc{}).Me(rr, httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMe_ThroughAuthMiddleware(t *testing.T) {
	p := newTestJWTProvider(t)
	pair, err := p.IssuePair(&domain.User{UserID: "u1", Email: "a@b.com", AccountClass: domain.AccountIndividual})
	require.NoError(t, err)

	svc := &mockAuthSvc{}
	svc.On("Me", mock.Anything, "u1").Return(profile, nil)
	h := NewAuthHandler(svc)

	r := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	r.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rr := httptest.NewRecorder()
	middleware.Auth(p)(http.HandlerFunc(h.Me)).ServeHTTP(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp domain.UserProfile
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "a@b.com", resp.Email)
	assert.NotContains(t, rr.Body.String(), "password")
	svc.AssertExpectations(t)
}

func TestMe_InactiveUser(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Me", mock.Anything, "u1").Return(nil, domain.ErrUserInactive)
	r := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	r = r.WithContext(withSubject(r.Context(), "u1"))
	rr := httptest.NewRecorder()
	NewAuthHandler(svc).Me(rr, r)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func withSubject(ctx context.Context, sub string) context.Context {
	c := &jwtinfra.Claims{Type: jwtinfra.TypeAccess}
	c.Subject = sub
	return middleware.WithClaims(ctx, c)
}
