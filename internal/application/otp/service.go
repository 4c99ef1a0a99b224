package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/insightora-auth/internal/config"
	"github.com/insightora-auth/internal/domain"
	"github.com/insightora-auth/internal/pkg/id"
	pkgtoken "github.com/insightora-auth/internal/pkg/token"
)

// maxRaces bounds how often Verify re-reads after losing a compare-and-set.
const maxRaces = 8

type codeStore interface {
	Get(ctx context.Context, email string, purpose domain.OTPPurpose) (*domain.OneTimeCode, error)
	Replace(ctx context.Context, c *domain.OneTimeCode, cutoff time.Time) error
	IncrementAttempts(ctx context.Context, email string, purpose domain.OTPPurpose, codeID string, seen int) error
	MarkUsed(ctx context.Context, email string, purpose domain.OTPPurpose, codeID string, seen int) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Service owns the lifecycle of one-time codes. It never delivers codes itself.
type Service interface {
	// Issue creates a fresh code for (email, purpose), replacing any previous
	// one. It fails with domain.ErrOTPRateLimited inside the cooldown window.
	Issue(ctx context.Context, email string, purpose domain.OTPPurpose) (*domain.OneTimeCode, error)
	// Verify consumes the active code for (email, purpose) if code matches.
	Verify(ctx context.Context, email string, purpose domain.OTPPurpose, code string) error
	// DeleteExpired removes used or expired codes.
	DeleteExpired(ctx context.Context) (int, error)
}

type ServiceDeps struct {
	Store    codeStore
	Policy   config.OTPPolicy
	Generate func() (string, error) // defaults to a random 6-digit code
	Now      func() time.Time       // defaults to time.Now
}

type service struct {
	store    codeStore
	policy   config.OTPPolicy
	generate func() (string, error)
	now      func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		store:    deps.Store,
		policy:   deps.Policy,
		generate: deps.Generate,
		now:      deps.Now,
	}
	if s.generate == nil {
		s.generate = pkgtoken.NewOTP
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *service) Issue(ctx context.Context, email string, purpose domain.OTPPurpose) (*domain.OneTimeCode, error) {
	now := s.now().UTC()

	prev, err := s.store.Get(ctx, email, purpose)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load previous code: %w", err)
	default:
		if wait := prev.CreatedAt.Add(s.policy.Cooldown).Sub(now); wait > 0 {
			return nil, domain.OTPRateLimited(wait)
		}
	}

	code, err := s.generate()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	c := &domain.OneTimeCode{
		Email:     email,
		Purpose:   purpose,
		CodeID:    id.New(),
		Code:      code,
		ExpiresAt: now.Add(s.policy.TTL),
		CreatedAt: now,
	}
	if err := s.store.Replace(ctx, c, now.Add(-s.policy.Cooldown)); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Another request issued a code between our read and write.
			return nil, domain.OTPRateLimited(s.policy.Cooldown)
		}
		return nil, fmt.Errorf("store code: %w", err)
	}
	slog.Info("one-time code issued", "email", email, "purpose", purpose, "code_id", c.CodeID)
	return c, nil
}

func (s *service) Verify(ctx context.Context, email string, purpose domain.OTPPurpose, code string) error {
	for i := 0; i < maxRaces; i++ {
		err := s.verifyOnce(ctx, email, purpose, code)
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("verify code: too much contention: %w", domain.ErrConflict)
}

// verifyOnce evaluates the stored code and applies at most one conditional
// write. domain.ErrConflict means the record changed underneath and the
// caller must re-evaluate.
func (s *service) verifyOnce(ctx context.Context, email string, purpose domain.OTPPurpose, code string) error {
	c, err := s.store.Get(ctx, email, purpose)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrOTPNotFound
	}
	if err != nil {
		return fmt.Errorf("load code: %w", err)
	}
	if !c.Active(s.now()) {
		return domain.ErrOTPNotFound
	}

	if c.Attempts >= s.policy.MaxAttempts {
		if err := s.store.MarkUsed(ctx, email, purpose, c.CodeID, c.Attempts); err != nil && !errors.Is(err, domain.ErrConflict) {
			slog.Warn("failed to retire exhausted code", "email", email, "purpose", purpose, "err", err)
		}
		return domain.ErrOTPTooManyAttempts
	}

	if subtle.ConstantTimeCompare([]byte(c.Code), []byte(code)) != 1 {
		if err := s.store.IncrementAttempts(ctx, email, purpose, c.CodeID, c.Attempts); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return err
			}
			return fmt.Errorf("record attempt: %w", err)
		}
		remaining := s.policy.MaxAttempts - (c.Attempts + 1)
		if remaining < 0 {
			remaining = 0
		}
		return domain.OTPMismatch(remaining)
	}

	if err := s.store.MarkUsed(ctx, email, purpose, c.CodeID, c.Attempts); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return err
		}
		return fmt.Errorf("consume code: %w", err)
	}
	return nil
}

func (s *service) DeleteExpired(ctx context.Context) (int, error) {
	return s.store.DeleteExpired(ctx, s.now().UTC())
}
