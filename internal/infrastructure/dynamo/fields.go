package dynamo

// DynamoDB attribute names used in update and condition expressions.
const (
	fieldUserID       = "user_id"
	fieldEmail        = "email"
	fieldPurpose      = "purpose"
	fieldFingerprint  = "fingerprint"
	fieldCodeID       = "code_id"
	fieldAttempts     = "attempts"
	fieldUsed         = "used"
	fieldExpiresAt    = "expires_at"
	fieldCreatedAt    = "created_at"
	fieldUpdatedAt    = "updated_at"
	fieldVerified     = "verified"
	fieldActive       = "active"
	fieldLastLoginAt  = "last_login_at"
	fieldPasswordHash = "password_hash"
	fieldAccountClass = "account_class"
	fieldFirstName    = "first_name"
	fieldLastName     = "last_name"
	fieldBusinessName = "business_name"
	fieldLabel        = "label"
	fieldTrustedUntil = "trusted_until"
	fieldLastUsedAt   = "last_used_at"
	fieldOwnerID      = "owner_id"
)
