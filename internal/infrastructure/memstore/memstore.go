// Package memstore holds in-process stores with the same conditional-write
// semantics as the DynamoDB repositories. They back tests and local runs
// without AWS.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/insightora-auth/internal/domain"
)

// Users is an in-memory user store with a unique email constraint.
type Users struct {
	mu      sync.RWMutex
	byID    map[string]domain.User
	byEmail map[string]string
}

func NewUsers() *Users {
	return &Users{byID: map[string]domain.User{}, byEmail: map[string]string{}}
}

func (s *Users) Create(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.Email]; ok {
		return fmt.Errorf("create user: %w", domain.ErrConflict)
	}
	if _, ok := s.byID[u.UserID]; ok {
		return fmt.Errorf("create user: %w", domain.ErrConflict)
	}
	s.byID[u.UserID] = *u
	s.byEmail[u.Email] = u.UserID
	return nil
}

func (s *Users) Get(_ context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[userID]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return &u, nil
}

func (s *Users) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return s.Get(ctx, id)
}

func (s *Users) MarkVerified(_ context.Context, userID string, at time.Time) error {
	return s.mutate(userID, false, func(u *domain.User) {
		u.Verified = true
		u.UpdatedAt = at
	})
}

func (s *Users) SetActive(_ context.Context, userID string, active bool, at time.Time) error {
	return s.mutate(userID, false, func(u *domain.User) {
		u.Active = active
		u.UpdatedAt = at
	})
}

func (s *Users) SetLastLogin(_ context.Context, userID string, at time.Time) error {
	return s.mutate(userID, false, func(u *domain.User) {
		u.LastLoginAt = &at
		u.UpdatedAt = at
	})
}

func (s *Users) SetPasswordHash(_ context.Context, userID, hash string, at time.Time) error {
	return s.mutate(userID, false, func(u *domain.User) {
		u.PasswordHash = hash
		u.UpdatedAt = at
	})
}

func (s *Users) ReplaceRegistration(_ context.Context, nu *domain.User) error {
	return s.mutate(nu.UserID, true, func(u *domain.User) {
		u.PasswordHash = nu.PasswordHash
		u.AccountClass = nu.AccountClass
		u.FirstName = nu.FirstName
		u.LastName = nu.LastName
		u.BusinessName = nu.BusinessName
		u.UpdatedAt = nu.UpdatedAt
	})
}

func (s *Users) mutate(userID string, onlyUnverified bool, fn func(*domain.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok || (onlyUnverified && u.Verified) {
		return fmt.Errorf("update user: %w", domain.ErrConflict)
	}
	fn(&u)
	s.byID[userID] = u
	return nil
}

type otpKey struct {
	email   string
	purpose domain.OTPPurpose
}

// OTPs is an in-memory one-time code store keyed by (email, purpose).
type OTPs struct {
	mu    sync.Mutex
	codes map[otpKey]domain.OneTimeCode
}

func NewOTPs() *OTPs {
	return &OTPs{codes: map[otpKey]domain.OneTimeCode{}}
}

func (s *OTPs) Get(_ context.Context, email string, purpose domain.OTPPurpose) (*domain.OneTimeCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[otpKey{email, purpose}]
	if !ok {
		return nil, fmt.Errorf("one-time code not found: %w", domain.ErrNotFound)
	}
	return &c, nil
}

func (s *OTPs) Replace(_ context.Context, c *domain.OneTimeCode, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := otpKey{c.Email, c.Purpose}
	if prev, ok := s.codes[k]; ok && prev.CreatedAt.After(cutoff) {
		return fmt.Errorf("replace one-time code: %w", domain.ErrConflict)
	}
	s.codes[k] = *c
	return nil
}

func (s *OTPs) IncrementAttempts(_ context.Context, email string, purpose domain.OTPPurpose, codeID string, seen int) error {
	return s.mutate(email, purpose, codeID, func(c *domain.OneTimeCode) bool {
		if c.Attempts != seen {
			return false
		}
		c.Attempts++
		return true
	})
}

func (s *OTPs) MarkUsed(_ context.Context, email string, purpose domain.OTPPurpose, codeID string, seen int) error {
	return s.mutate(email, purpose, codeID, func(c *domain.OneTimeCode) bool {
		if c.Attempts != seen {
			return false
		}
		c.Used = true
		return true
	})
}

func (s *OTPs) mutate(email string, purpose domain.OTPPurpose, codeID string, fn func(*domain.OneTimeCode) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := otpKey{email, purpose}
	c, ok := s.codes[k]
	if !ok || c.CodeID != codeID || c.Used || !fn(&c) {
		return fmt.Errorf("update one-time code: %w", domain.ErrConflict)
	}
	s.codes[k] = c
	return nil
}

func (s *OTPs) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, c := range s.codes {
		if c.Used || !now.Before(c.ExpiresAt) {
			delete(s.codes, k)
			n++
		}
	}
	return n, nil
}

type deviceKey struct {
	userID      string
	fingerprint string
}

// TrustedDevices is an in-memory trusted device store keyed by (user, fingerprint).
type TrustedDevices struct {
	mu      sync.Mutex
	devices map[deviceKey]domain.TrustedDevice
}

func NewTrustedDevices() *TrustedDevices {
	return &TrustedDevices{devices: map[deviceKey]domain.TrustedDevice{}}
}

func (s *TrustedDevices) Upsert(_ context.Context, d *domain.TrustedDevice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := deviceKey{d.UserID, d.Fingerprint}
	next := *d
	next.Active = true
	if prev, ok := s.devices[k]; ok {
		next.CreatedAt = prev.CreatedAt
	}
	s.devices[k] = next
	return nil
}

func (s *TrustedDevices) Get(_ context.Context, userID, fingerprint string) (*domain.TrustedDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceKey{userID, fingerprint}]
	if !ok {
		return nil, fmt.Errorf("trusted device not found: %w", domain.ErrNotFound)
	}
	return &d, nil
}

func (s *TrustedDevices) Touch(_ context.Context, userID, fingerprint string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := deviceKey{userID, fingerprint}
	d, ok := s.devices[k]
	if !ok || !d.Active {
		return fmt.Errorf("touch trusted device: %w", domain.ErrConflict)
	}
	d.LastUsedAt = at
	s.devices[k] = d
	return nil
}

func (s *TrustedDevices) Deactivate(_ context.Context, userID, fingerprint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deactivateLocked(deviceKey{userID, fingerprint}), nil
}

func (s *TrustedDevices) deactivateLocked(k deviceKey) bool {
	d, ok := s.devices[k]
	if !ok || !d.Active {
		return false
	}
	d.Active = false
	s.devices[k] = d
	return true
}

func (s *TrustedDevices) List(_ context.Context, userID string) ([]domain.TrustedDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TrustedDevice
	for k, d := range s.devices {
		if k.userID == userID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out, nil
}

func (s *TrustedDevices) DeactivateAll(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.devices {
		if k.userID == userID && s.deactivateLocked(k) {
			n++
		}
	}
	return n, nil
}

func (s *TrustedDevices) DeactivateExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, d := range s.devices {
		if d.Active && !now.Before(d.TrustedUntil) && s.deactivateLocked(k) {
			n++
		}
	}
	return n, nil
}
