package auth

import "github.com/insightora-auth/internal/domain"

type RegisterRequest struct {
	Email        string              `json:"email" validate:"required,email,max=254"`
	Password     string              `json:"password" validate:"required"`
	FirstName    string              `json:"first_name" validate:"required,max=100"`
	LastName     string              `json:"last_name" validate:"required,max=100"`
	AccountClass domain.AccountClass `json:"account_class" validate:"required,account_class"`
	BusinessName *string             `json:"business_name" validate:"omitempty,max=200"`
}

type RegisterResult struct {
	UserID  string
	Email   string
	OTPSent bool
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type VerifyCodeRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Code  string `json:"code" validate:"required,otp"`
}

// NextStepLogin tells the client that verification is done and a full
// login is required before any session exists.
const NextStepLogin = "login"

type VerifyRegistrationResult struct {
	User     *domain.UserProfile
	NextStep string
}

type LoginRequest struct {
	Email    string              `json:"email" validate:"required,email,max=254"`
	Password string              `json:"password" validate:"required"`
	Device   domain.DeviceSignal `json:"-"`
}

// LoginResult either asks for the login code (RequiresOTP, MaskedEmail) or,
// for a trusted device, carries the finished session (User, Tokens).
type LoginResult struct {
	RequiresOTP bool
	MaskedEmail string
	User        *domain.UserProfile
	Tokens      *domain.TokenPair
}

type VerifyLoginRequest struct {
	Email       string              `json:"email" validate:"required,email,max=254"`
	Code        string              `json:"code" validate:"required,otp"`
	TrustDevice bool                `json:"trust_device"`
	DeviceLabel *string             `json:"device_label" validate:"omitempty,max=100"`
	Device      domain.DeviceSignal `json:"-"`
}

type VerifyLoginResult struct {
	User          *domain.UserProfile
	Tokens        *domain.TokenPair
	DeviceTrusted bool
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Code        string `json:"code" validate:"required,otp"`
	NewPassword string `json:"new_password" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}
