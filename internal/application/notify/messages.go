package notify

import (
	"fmt"
	"time"

	"github.com/insightora-auth/internal/domain"
)

func minutes(d time.Duration) string {
	m := int(d / time.Minute)
	if m <= 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}

// VerificationCode renders the email-verification code message.
func VerificationCode(to, name, code string, ttl time.Duration) domain.Email {
	return domain.Email{
		To:      to,
		Subject: "Verify your email address",
		Body: fmt.Sprintf("Hi %s,\n\nYour verification code is %s.\nIt expires in %s.\n\n"+
			"If you did not create an account, you can ignore this email.\n", name, code, minutes(ttl)),
	}
}

// LoginCode renders the second-factor code sent during login.
func LoginCode(to, name, code string, ttl time.Duration) domain.Email {
	return domain.Email{
		To:      to,
		Subject: "Your sign-in code",
		Body: fmt.Sprintf("Hi %s,\n\nUse %s to finish signing in.\nIt expires in %s.\n\n"+
			"If this was not you, change your password right away.\n", name, code, minutes(ttl)),
	}
}

// PasswordResetCode renders the password reset code message.
func PasswordResetCode(to, name, code string, ttl time.Duration) domain.Email {
	return domain.Email{
		To:      to,
		Subject: "Reset your password",
		Body: fmt.Sprintf("Hi %s,\n\nYour password reset code is %s.\nIt expires in %s.\n\n"+
			"Resetting your password signs out every remembered device.\n", name, code, minutes(ttl)),
	}
}

// Welcome renders the message sent once the email address is verified.
func Welcome(to, name string) domain.Email {
	return domain.Email{
		To:      to,
		Subject: "Welcome aboard",
		Body:    fmt.Sprintf("Hi %s,\n\nYour email address is verified. You can now sign in.\n", name),
	}
}
