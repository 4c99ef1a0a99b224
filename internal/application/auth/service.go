package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/insightora-auth/internal/application/device"
	"github.com/insightora-auth/internal/application/notify"
	"github.com/insightora-auth/internal/application/otp"
	"github.com/insightora-auth/internal/application/session"
	"github.com/insightora-auth/internal/domain"
	"github.com/insightora-auth/internal/pkg/id"
	"github.com/insightora-auth/internal/pkg/password"
)

type userStore interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	MarkVerified(ctx context.Context, userID string, at time.Time) error
	SetLastLogin(ctx context.Context, userID string, at time.Time) error
	SetPasswordHash(ctx context.Context, userID, hash string, at time.Time) error
	ReplaceRegistration(ctx context.Context, u *domain.User) error
}

type passwordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}

type notifier interface {
	Dispatch(ctx context.Context, e domain.Email)
}

// Service drives registration, login and their verification steps. Token
// pairs leave this service only from VerifyLogin, a trusted-device Login and
// Refresh.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error)
	ResendVerification(ctx context.Context, email string) error
	VerifyRegistration(ctx context.Context, req VerifyCodeRequest) (*VerifyRegistrationResult, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	VerifyLogin(ctx context.Context, req VerifyLoginRequest) (*VerifyLoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, req ResetPasswordRequest) error
	ChangePassword(ctx context.Context, userID string, req ChangePasswordRequest) error
	Me(ctx context.Context, userID string) (*domain.UserProfile, error)
	ListDevices(ctx context.Context, userID string) ([]domain.TrustedDevice, error)
	UntrustDevice(ctx context.Context, userID, fingerprint string) (int, error)
	RevokeAllDevices(ctx context.Context, userID string) (int, error)
}

type ServiceDeps struct {
	Users             userStore
	OTP               otp.Service
	Devices           device.Service
	Sessions          session.Service
	Hasher            passwordHasher
	Notifier          notifier
	OTPTTL            time.Duration // rendered into messages
	PasswordMinLength int
	LogCodes          bool // development only: log issued codes at DEBUG
	Now               func() time.Time
}

type service struct {
	users     userStore
	otp       otp.Service
	devices   device.Service
	sessions  session.Service
	hasher    passwordHasher
	notifier  notifier
	otpTTL    time.Duration
	minPwd    int
	logCodes  bool
	now       func() time.Time
	dummyOnce sync.Once
	dummyHash string
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		users:    deps.Users,
		otp:      deps.OTP,
		devices:  deps.Devices,
		sessions: deps.Sessions,
		hasher:   deps.Hasher,
		notifier: deps.Notifier,
		otpTTL:   deps.OTPTTL,
		minPwd:   deps.PasswordMinLength,
		logCodes: deps.LogCodes,
		now:      deps.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// --- registration ---

func (s *service) Register(ctx context.Context, req RegisterRequest) (res *RegisterResult, err error) {
	defer func() { observe("register", err) }()

	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ValidationError("email is invalid")
	}
	if !req.AccountClass.Valid() {
		return nil, domain.ValidationError("account_class must be Individual or Business")
	}
	if err := s.checkPassword(req.Password); err != nil {
		return nil, err
	}
	businessName, err := normalizeBusinessName(req.AccountClass, req.BusinessName)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Email:        email,
		PasswordHash: hash,
		AccountClass: req.AccountClass,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		BusinessName: businessName,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	existing, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if err := s.users.Create(ctx, u); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return nil, domain.ErrEmailExists
			}
			return nil, fmt.Errorf("create user: %w", err)
		}
		slog.Info("user registered", "user_id", u.UserID, "account_class", u.AccountClass)
		if err := s.sendCode(ctx, u, domain.PurposeEmailVerification); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("lookup user: %w", err)
	case existing.Verified:
		return nil, domain.ErrEmailExists
	default:
		// Unverified: registering again is a resend with the new details. The
		// code is issued first so a rate-limited attempt leaves the stored
		// registration untouched.
		u.UserID = existing.UserID
		u.CreatedAt = existing.CreatedAt
		c, err := s.issueCode(ctx, u.Email, domain.PurposeEmailVerification)
		if err != nil {
			return nil, err
		}
		if err := s.users.ReplaceRegistration(ctx, u); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return nil, domain.ErrEmailExists
			}
			return nil, fmt.Errorf("replace registration: %w", err)
		}
		slog.Info("unverified registration replaced", "user_id", u.UserID)
		s.deliverCode(ctx, u, c)
	}
	return &RegisterResult{UserID: u.UserID, Email: u.Email, OTPSent: true}, nil
}

func (s *service) ResendVerification(ctx context.Context, email string) (err error) {
	defer func() { observe("resend_verification", err) }()

	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if u.Verified {
		return nil
	}
	return s.sendCode(ctx, u, domain.PurposeEmailVerification)
}

func (s *service) VerifyRegistration(ctx context.Context, req VerifyCodeRequest) (res *VerifyRegistrationResult, err error) {
	defer func() { observe("verify_registration", err) }()

	u, err := s.userForCode(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if err := s.otp.Verify(ctx, u.Email, domain.PurposeEmailVerification, req.Code); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.users.MarkVerified(ctx, u.UserID, now); err != nil {
		return nil, fmt.Errorf("mark verified: %w", err)
	}
	u.Verified = true
	u.UpdatedAt = now
	slog.Info("email verified", "user_id", u.UserID)

	s.notifier.Dispatch(ctx, notify.Welcome(u.Email, u.DisplayName()))
	return &VerifyRegistrationResult{User: u.Profile(), NextStep: NextStepLogin}, nil
}

// --- login ---

func (s *service) Login(ctx context.Context, req LoginRequest) (res *LoginResult, err error) {
	defer func() { observe("login", err) }()

	u, err := s.users.GetByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, domain.ErrNotFound) {
		// Keep the unknown-email path as slow as a wrong password.
		s.hasher.Verify(req.Password, s.dummy())
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !s.hasher.Verify(req.Password, u.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	if !u.Verified {
		return nil, domain.ErrEmailNotVerified
	}
	if !u.Active {
		return nil, domain.ErrAccountDeactivated
	}

	if s.deviceTrustApplies(u, req.Device) {
		fp := device.FingerprintSignal(req.Device)
		trusted, err := s.devices.IsTrusted(ctx, u.UserID, fp)
		if err != nil {
			slog.Warn("device trust check failed; falling back to login code", "user_id", u.UserID, "err", err)
		}
		if trusted {
			s.recordLogin(ctx, u)
			tokens, err := s.sessions.Issue(ctx, u, session.OriginTrustedDevice)
			if err != nil {
				return nil, err
			}
			return &LoginResult{RequiresOTP: false, User: u.Profile(), Tokens: tokens}, nil
		}
	}

	if err := s.sendCode(ctx, u, domain.PurposeLoginVerification); err != nil {
		return nil, err
	}
	return &LoginResult{RequiresOTP: true, MaskedEmail: MaskEmail(u.Email)}, nil
}

func (s *service) VerifyLogin(ctx context.Context, req VerifyLoginRequest) (res *VerifyLoginResult, err error) {
	defer func() { observe("verify_login", err) }()

	u, err := s.userForCode(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if err := s.otp.Verify(ctx, u.Email, domain.PurposeLoginVerification, req.Code); err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, domain.ErrAccountDeactivated
	}

	s.recordLogin(ctx, u)

	trusted := false
	if req.TrustDevice && s.deviceTrustApplies(u, req.Device) {
		fp := device.FingerprintSignal(req.Device)
		if _, err := s.devices.Trust(ctx, u.UserID, fp, req.DeviceLabel); err != nil {
			slog.Warn("failed to trust device", "user_id", u.UserID, "err", err)
		} else {
			trusted = true
		}
	}

	tokens, err := s.sessions.Issue(ctx, u, session.OriginLoginOTP)
	if err != nil {
		return nil, err
	}
	return &VerifyLoginResult{User: u.Profile(), Tokens: tokens, DeviceTrusted: trusted}, nil
}

func (s *service) Refresh(ctx context.Context, refreshToken string) (pair *domain.TokenPair, err error) {
	defer func() { observe("refresh", err) }()
	return s.sessions.Refresh(ctx, refreshToken)
}

// --- password reset ---

func (s *service) RequestPasswordReset(ctx context.Context, email string) (err error) {
	defer func() { observe("request_password_reset", err) }()

	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if !u.Verified || !u.Active {
		return nil
	}
	if err := s.sendCode(ctx, u, domain.PurposePasswordReset); err != nil {
		if _, typed := domain.AsAuthError(err); typed {
			slog.Info("password reset code not sent", "user_id", u.UserID, "err", err)
			return nil
		}
		return err
	}
	return nil
}

func (s *service) ResetPassword(ctx context.Context, req ResetPasswordRequest) (err error) {
	defer func() { observe("reset_password", err) }()

	if err := s.checkPassword(req.NewPassword); err != nil {
		return err
	}
	u, err := s.userForCode(ctx, req.Email)
	if err != nil {
		return err
	}
	if err := s.otp.Verify(ctx, u.Email, domain.PurposePasswordReset, req.Code); err != nil {
		return err
	}
	if !u.Active {
		return domain.ErrAccountDeactivated
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.SetPasswordHash(ctx, u.UserID, hash, s.now().UTC()); err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	if _, err := s.devices.RevokeAll(ctx, u.UserID); err != nil {
		slog.Warn("failed to revoke devices after password reset", "user_id", u.UserID, "err", err)
	}
	slog.Info("password reset", "user_id", u.UserID)
	return nil
}

// --- authenticated user ---

// ChangePassword replaces the password of a signed-in user after checking the
// current one. Trusted devices are revoked as on reset.
func (s *service) ChangePassword(ctx context.Context, userID string, req ChangePasswordRequest) (err error) {
	defer func() { observe("change_password", err) }()

	if err := s.checkPassword(req.NewPassword); err != nil {
		return err
	}
	u, err := s.users.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrInvalidToken
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if !u.Active {
		return domain.ErrUserInactive
	}
	if !s.hasher.Verify(req.CurrentPassword, u.PasswordHash) {
		return domain.ErrWrongPassword
	}
	if req.NewPassword == req.CurrentPassword {
		return domain.ErrSamePassword
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.SetPasswordHash(ctx, u.UserID, hash, s.now().UTC()); err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	if _, err := s.devices.RevokeAll(ctx, u.UserID); err != nil {
		slog.Warn("failed to revoke devices after password change", "user_id", u.UserID, "err", err)
	}
	slog.Info("password changed", "user_id", u.UserID)
	return nil
}

func (s *service) Me(ctx context.Context, userID string) (*domain.UserProfile, error) {
	u, err := s.users.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !u.Active {
		return nil, domain.ErrUserInactive
	}
	return u.Profile(), nil
}

func (s *service) ListDevices(ctx context.Context, userID string) ([]domain.TrustedDevice, error) {
	return s.devices.List(ctx, userID)
}

func (s *service) UntrustDevice(ctx context.Context, userID, fingerprint string) (int, error) {
	return s.devices.Untrust(ctx, userID, fingerprint)
}

func (s *service) RevokeAllDevices(ctx context.Context, userID string) (int, error) {
	return s.devices.RevokeAll(ctx, userID)
}

// --- helpers ---

// userForCode resolves the user a code was sent to. An unknown email reads
// the same as a missing code.
func (s *service) userForCode(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrOTPNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return u, nil
}

// sendCode issues a code for purpose and hands it to the notifier.
func (s *service) sendCode(ctx context.Context, u *domain.User, purpose domain.OTPPurpose) error {
	c, err := s.issueCode(ctx, u.Email, purpose)
	if err != nil {
		return err
	}
	s.deliverCode(ctx, u, c)
	return nil
}

func (s *service) issueCode(ctx context.Context, email string, purpose domain.OTPPurpose) (*domain.OneTimeCode, error) {
	c, err := s.otp.Issue(ctx, email, purpose)
	if err != nil {
		return nil, err
	}
	if s.logCodes {
		slog.Debug("one-time code", "email", email, "purpose", purpose, "code", c.Code)
	}
	return c, nil
}

// deliverCode renders c for u and hands it to the notifier.
func (s *service) deliverCode(ctx context.Context, u *domain.User, c *domain.OneTimeCode) {
	var msg domain.Email
	switch c.Purpose {
	case domain.PurposeEmailVerification:
		msg = notify.VerificationCode(u.Email, u.DisplayName(), c.Code, s.otpTTL)
	case domain.PurposeLoginVerification:
		msg = notify.LoginCode(u.Email, u.DisplayName(), c.Code, s.otpTTL)
	case domain.PurposePasswordReset:
		msg = notify.PasswordResetCode(u.Email, u.DisplayName(), c.Code, s.otpTTL)
	}
	s.notifier.Dispatch(ctx, msg)
}

func (s *service) recordLogin(ctx context.Context, u *domain.User) {
	now := s.now().UTC()
	if err := s.users.SetLastLogin(ctx, u.UserID, now); err != nil {
		slog.Warn("failed to record last login", "user_id", u.UserID, "err", err)
		return
	}
	u.LastLoginAt = &now
}

// deviceTrustApplies reports whether trust may be checked or granted. Business
// accounts never use it, and without a client signal every device would
// share one fingerprint.
func (s *service) deviceTrustApplies(u *domain.User, sig domain.DeviceSignal) bool {
	return u.AccountClass == domain.AccountIndividual && !sig.Empty()
}

func (s *service) checkPassword(pw string) error {
	if len(pw) < s.minPwd {
		return domain.WeakPassword(fmt.Sprintf("password must be at least %d characters", s.minPwd))
	}
	if len(pw) > password.MaxLength {
		return domain.WeakPassword(fmt.Sprintf("password must be at most %d bytes", password.MaxLength))
	}
	return nil
}

func (s *service) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("dummy-password-for-timing")
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

func normalizeBusinessName(class domain.AccountClass, name *string) (*string, error) {
	if class != domain.AccountBusiness {
		return nil, nil
	}
	if name == nil || strings.TrimSpace(*name) == "" {
		return nil, domain.ErrMissingBusinessName
	}
	trimmed := strings.TrimSpace(*name)
	return &trimmed, nil
}
