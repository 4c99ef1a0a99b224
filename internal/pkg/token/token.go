package token

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// OTPDigits is the width of every one-time code.
const OTPDigits = 6

// NumericCode returns a uniformly random decimal code of exactly digits
// characters. Leading zeros are kept, so the result must be treated as a
// string and never parsed to an integer.
func NumericCode(digits int) (string, error) {
	if digits <= 0 || digits > 18 {
		return "", fmt.Errorf("generate code: unsupported width %d", digits)
	}
	upper := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, upper)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}

// NewOTP generates a 6-digit one-time code.
func NewOTP() (string, error) {
	return NumericCode(OTPDigits)
}
