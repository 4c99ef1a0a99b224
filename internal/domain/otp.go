package domain

import "time"

// OTPPurpose scopes a one-time code. A code issued for one purpose can never
// satisfy a verification for another.
type OTPPurpose string

const (
	PurposeEmailVerification OTPPurpose = "email_verification"
	PurposeLoginVerification OTPPurpose = "login_verification"
	PurposePasswordReset     OTPPurpose = "password_reset"
)

func (p OTPPurpose) Valid() bool {
	switch p {
	case PurposeEmailVerification, PurposeLoginVerification, PurposePasswordReset:
		return true
	}
	return false
}

// OneTimeCode is stored one item per (email, purpose): issuing a new code
// replaces the previous one. CodeID identifies a single issuance and is the
// compare-and-set guard for attempt and used updates.
// ExpiresAt doubles as the DynamoDB TTL attribute (Unix seconds).
type OneTimeCode struct {
	Email     string     `json:"email" dynamodbav:"email"`
	Purpose   OTPPurpose `json:"purpose" dynamodbav:"purpose"`
	CodeID    string     `json:"code_id" dynamodbav:"code_id"`
	Code      string     `json:"-" dynamodbav:"code"`
	Attempts  int        `json:"attempts" dynamodbav:"attempts"`
	Used      bool       `json:"used" dynamodbav:"used"`
	ExpiresAt time.Time  `json:"expires_at" dynamodbav:"expires_at,unixtime"`
	CreatedAt time.Time  `json:"created" dynamodbav:"created_at,unixtime"`
}

// Active reports whether the code can still be consumed at now.
func (c *OneTimeCode) Active(now time.Time) bool {
	return !c.Used && now.Before(c.ExpiresAt)
}
