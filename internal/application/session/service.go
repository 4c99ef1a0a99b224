package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/insightora-auth/internal/domain"
	jwtinfra "github.com/insightora-auth/internal/infrastructure/jwt"
)

var tokensIssued = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_token_pairs_issued_total",
		Help: "Token pairs minted, by origin",
	},
	[]string{"origin"},
)

// Origins recorded when a pair is minted.
const (
	OriginLoginOTP      = "login_otp"
	OriginTrustedDevice = "trusted_device"
	originRefresh       = "refresh"
)

type tokenProvider interface {
	IssuePair(u *domain.User) (*domain.TokenPair, error)
	VerifyRefresh(token string) (*jwtinfra.Claims, error)
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

// Service is the only component that mints session tokens.
type Service interface {
	// Issue mints a pair for a user who has completed authentication.
	Issue(ctx context.Context, u *domain.User, origin string) (*domain.TokenPair, error)
	// Refresh exchanges a valid refresh token for a new pair.
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
}

type ServiceDeps struct {
	Tokens tokenProvider
	Users  userStore
}

type service struct {
	tokens tokenProvider
	users  userStore
}

func NewService(deps ServiceDeps) Service {
	return &service{tokens: deps.Tokens, users: deps.Users}
}

func (s *service) Issue(_ context.Context, u *domain.User, origin string) (*domain.TokenPair, error) {
	pair, err := s.tokens.IssuePair(u)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	tokensIssued.WithLabelValues(origin).Inc()
	slog.Info("session issued", "user_id", u.UserID, "origin", origin)
	return pair, nil
}

func (s *service) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	u, err := s.users.Get(ctx, claims.Subject)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !u.Active {
		return nil, domain.ErrUserInactive
	}
	if !u.Verified {
		return nil, domain.ErrInvalidToken
	}
	return s.Issue(ctx, u, originRefresh)
}
