package domain

import "time"

// DeviceSignal carries the client attributes a device fingerprint is derived from.
type DeviceSignal struct {
	UserAgent     string
	NetworkOrigin string
}

// Empty reports whether no client signal was captured.
func (s DeviceSignal) Empty() bool {
	return s.UserAgent == "" && s.NetworkOrigin == ""
}

// TrustedDevice exempts one (user, fingerprint) pair from the login OTP step
// while Active and before TrustedUntil.
type TrustedDevice struct {
	UserID       string    `json:"user_id" dynamodbav:"user_id"`
	Fingerprint  string    `json:"fingerprint" dynamodbav:"fingerprint"`
	Label        *string   `json:"label,omitempty" dynamodbav:"label"`
	TrustedUntil time.Time `json:"trusted_until" dynamodbav:"trusted_until,unixtime"`
	Active       bool      `json:"active" dynamodbav:"active"`
	CreatedAt    time.Time `json:"created" dynamodbav:"created_at"`
	LastUsedAt   time.Time `json:"last_used" dynamodbav:"last_used_at"`
}

// Valid reports whether trust holds at now.
func (d *TrustedDevice) Valid(now time.Time) bool {
	return d.Active && now.Before(d.TrustedUntil)
}
