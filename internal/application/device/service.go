package device

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/insightora-auth/internal/domain"
)

type deviceStore interface {
	Upsert(ctx context.Context, d *domain.TrustedDevice) error
	Get(ctx context.Context, userID, fingerprint string) (*domain.TrustedDevice, error)
	Touch(ctx context.Context, userID, fingerprint string, at time.Time) error
	Deactivate(ctx context.Context, userID, fingerprint string) (bool, error)
	List(ctx context.Context, userID string) ([]domain.TrustedDevice, error)
	DeactivateAll(ctx context.Context, userID string) (int, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int, error)
}

// Service tracks which devices may skip the login code. It knows nothing
// about account classes; callers decide when trust applies.
type Service interface {
	IsTrusted(ctx context.Context, userID, fingerprint string) (bool, error)
	Trust(ctx context.Context, userID, fingerprint string, label *string) (*domain.TrustedDevice, error)
	Untrust(ctx context.Context, userID, fingerprint string) (int, error)
	RevokeAll(ctx context.Context, userID string) (int, error)
	List(ctx context.Context, userID string) ([]domain.TrustedDevice, error)
	DeactivateExpired(ctx context.Context) (int, error)
}

type ServiceDeps struct {
	Store         deviceStore
	TrustDuration time.Duration
	Now           func() time.Time
}

type service struct {
	store    deviceStore
	duration time.Duration
	now      func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{store: deps.Store, duration: deps.TrustDuration, now: deps.Now}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Fingerprint is a stable one-way digest of the client signal.
func Fingerprint(userAgent, networkOrigin string) string {
	sum := sha256.Sum256([]byte(userAgent + "|" + networkOrigin))
	return hex.EncodeToString(sum[:])
}

// FingerprintSignal is Fingerprint applied to a captured signal.
func FingerprintSignal(s domain.DeviceSignal) string {
	return Fingerprint(s.UserAgent, s.NetworkOrigin)
}

func (s *service) IsTrusted(ctx context.Context, userID, fingerprint string) (bool, error) {
	d, err := s.store.Get(ctx, userID, fingerprint)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load trusted device: %w", err)
	}
	if !d.Active {
		return false, nil
	}
	now := s.now().UTC()
	if !d.Valid(now) {
		if _, err := s.store.Deactivate(ctx, userID, fingerprint); err != nil {
			slog.Warn("failed to deactivate expired device", "user_id", userID, "err", err)
		}
		return false, nil
	}
	if err := s.store.Touch(ctx, userID, fingerprint, now); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Revoked between read and write.
			return false, nil
		}
		slog.Warn("failed to refresh device last-used", "user_id", userID, "err", err)
	}
	return true, nil
}

func (s *service) Trust(ctx context.Context, userID, fingerprint string, label *string) (*domain.TrustedDevice, error) {
	now := s.now().UTC()
	d := &domain.TrustedDevice{
		UserID:       userID,
		Fingerprint:  fingerprint,
		Label:        label,
		TrustedUntil: now.Add(s.duration),
		Active:       true,
		CreatedAt:    now,
		LastUsedAt:   now,
	}
	if err := s.store.Upsert(ctx, d); err != nil {
		return nil, fmt.Errorf("trust device: %w", err)
	}
	return d, nil
}

func (s *service) Untrust(ctx context.Context, userID, fingerprint string) (int, error) {
	ok, err := s.store.Deactivate(ctx, userID, fingerprint)
	if err != nil {
		return 0, fmt.Errorf("untrust device: %w", err)
	}
	if ok {
		return 1, nil
	}
	return 0, nil
}

func (s *service) RevokeAll(ctx context.Context, userID string) (int, error) {
	n, err := s.store.DeactivateAll(ctx, userID)
	if err != nil {
		return n, fmt.Errorf("revoke devices: %w", err)
	}
	if n > 0 {
		slog.Info("trusted devices revoked", "user_id", userID, "count", n)
	}
	return n, nil
}

func (s *service) List(ctx context.Context, userID string) ([]domain.TrustedDevice, error) {
	return s.store.List(ctx, userID)
}

func (s *service) DeactivateExpired(ctx context.Context) (int, error) {
	return s.store.DeactivateExpired(ctx, s.now().UTC())
}
