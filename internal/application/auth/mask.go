package auth

import "strings"

// MaskEmail hides most of the local part: "alice@x.io" becomes "al**e@x.io",
// "ab@x.io" becomes "a*@x.io".
func MaskEmail(email string) string {
	local, domainPart, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return email
	}
	r := []rune(local)
	var masked string
	if len(r) <= 2 {
		masked = string(r[0]) + strings.Repeat("*", len(r)-1)
	} else {
		masked = string(r[:2]) + strings.Repeat("*", len(r)-3) + string(r[len(r)-1])
	}
	return masked + "@" + domainPart
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
