package domain

import "time"

// AccountClass separates personal accounts from business accounts.
// Business accounts always go through the login OTP step.
type AccountClass string

const (
	AccountIndividual AccountClass = "Individual"
	AccountBusiness   AccountClass = "Business"
)

// Valid reports whether c is one of the known account classes.
func (c AccountClass) Valid() bool {
	return c == AccountIndividual || c == AccountBusiness
}

type User struct {
	UserID       string       `json:"id" dynamodbav:"user_id"`
	Email        string       `json:"email" dynamodbav:"email"`
	PasswordHash string       `json:"-" dynamodbav:"password_hash"`
	AccountClass AccountClass `json:"account_class" dynamodbav:"account_class"`
	FirstName    string       `json:"first_name" dynamodbav:"first_name"`
	LastName     string       `json:"last_name" dynamodbav:"last_name"`
	BusinessName *string      `json:"business_name,omitempty" dynamodbav:"business_name"`
	Verified     bool         `json:"verified" dynamodbav:"verified"`
	Active       bool         `json:"active" dynamodbav:"active"`
	CreatedAt    time.Time    `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time    `json:"updated" dynamodbav:"updated_at"`
	LastLoginAt  *time.Time   `json:"last_login,omitempty" dynamodbav:"last_login_at"`
}

// UserProfile is the public projection of a User returned to clients.
type UserProfile struct {
	UserID       string       `json:"id"`
	Email        string       `json:"email"`
	AccountClass AccountClass `json:"account_class"`
	FirstName    string       `json:"first_name"`
	LastName     string       `json:"last_name"`
	BusinessName *string      `json:"business_name,omitempty"`
	Verified     bool         `json:"verified"`
	Active       bool         `json:"active"`
	CreatedAt    time.Time    `json:"created"`
	LastLoginAt  *time.Time   `json:"last_login,omitempty"`
}

func (u *User) Profile() *UserProfile {
	if u == nil {
		return nil
	}
	return &UserProfile{
		UserID:       u.UserID,
		Email:        u.Email,
		AccountClass: u.AccountClass,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		BusinessName: u.BusinessName,
		Verified:     u.Verified,
		Active:       u.Active,
		CreatedAt:    u.CreatedAt,
		LastLoginAt:  u.LastLoginAt,
	}
}

// DisplayName is used to address the user in notifications.
func (u *User) DisplayName() string {
	if u.BusinessName != nil && *u.BusinessName != "" {
		return *u.BusinessName
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Email
}
