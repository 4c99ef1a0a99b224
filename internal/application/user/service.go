package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/insightora-auth/internal/domain"
)

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	SetActive(ctx context.Context, userID string, active bool, at time.Time) error
}

type deviceRevoker interface {
	RevokeAll(ctx context.Context, userID string) (int, error)
}

// Service holds the operator-side account flows. Deactivation blocks login,
// verifyLogin and refresh on the next call; no token is revoked directly.
type Service interface {
	Get(ctx context.Context, userID string) (*domain.UserProfile, error)
	GetByEmail(ctx context.Context, email string) (*domain.UserProfile, error)
	Deactivate(ctx context.Context, email string) (*domain.UserProfile, error)
	Activate(ctx context.Context, email string) (*domain.UserProfile, error)
	RevokeDevices(ctx context.Context, email string) (int, error)
}

type ServiceDeps struct {
	Users   userStore
	Devices deviceRevoker
	Now     func() time.Time
}

type service struct {
	users   userStore
	devices deviceRevoker
	now     func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{users: deps.Users, devices: deps.Devices, now: deps.Now}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *service) Get(ctx context.Context, userID string) (*domain.UserProfile, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.Profile(), nil
}

func (s *service) GetByEmail(ctx context.Context, email string) (*domain.UserProfile, error) {
	u, err := s.lookup(ctx, email)
	if err != nil {
		return nil, err
	}
	return u.Profile(), nil
}

// Deactivate flips the account inactive and drops every trusted device so a
// later reactivation starts from the login code again.
func (s *service) Deactivate(ctx context.Context, email string) (*domain.UserProfile, error) {
	u, err := s.setActive(ctx, email, false)
	if err != nil {
		return nil, err
	}
	n, err := s.devices.RevokeAll(ctx, u.UserID)
	if err != nil {
		return nil, fmt.Errorf("revoke devices: %w", err)
	}
	slog.Info("user deactivated", "user_id", u.UserID, "devices_revoked", n)
	return u.Profile(), nil
}

func (s *service) Activate(ctx context.Context, email string) (*domain.UserProfile, error) {
	u, err := s.setActive(ctx, email, true)
	if err != nil {
		return nil, err
	}
	slog.Info("user activated", "user_id", u.UserID)
	return u.Profile(), nil
}

func (s *service) RevokeDevices(ctx context.Context, email string) (int, error) {
	u, err := s.lookup(ctx, email)
	if err != nil {
		return 0, err
	}
	return s.devices.RevokeAll(ctx, u.UserID)
}

func (s *service) setActive(ctx context.Context, email string, active bool) (*domain.User, error) {
	u, err := s.lookup(ctx, email)
	if err != nil {
		return nil, err
	}
	if u.Active == active {
		return u, nil
	}
	now := s.now().UTC()
	if err := s.users.SetActive(ctx, u.UserID, active, now); err != nil {
		return nil, fmt.Errorf("set active: %w", err)
	}
	u.Active = active
	u.UpdatedAt = now
	return u, nil
}

func (s *service) lookup(ctx context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required: %w", domain.ErrBadRequest)
	}
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("no user with email %q: %w", email, domain.ErrNotFound)
	}
	return u, err
}
