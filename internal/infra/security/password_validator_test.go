package security

import (
	"errors"
	"testing"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

func TestDefaultPasswordValidatorSuccess(t *testing.T) {
	validator := DefaultPasswordValidator()

	password := "C0mplex!Passphrase#2025"
	if strength := zxcvbn.PasswordStrength(password, nil); strength.Score < defaultMinZxcvbnScore {
		t.Fatalf("test password unexpectedly weak: score=%d", strength.Score)
	}
	if err := validator.Validate(password); err != nil {
		t.Fatalf("expected password to pass validation, got %v", err)
	}
}

func TestDefaultPasswordValidatorViolations(t *testing.T) {
	validator := DefaultPasswordValidator()

	assertViolation := func(password, expectedCode string) {
		t.Helper()
		err := validator.Validate(password)
		if err == nil {
			t.Fatalf("expected validation error for %s", expectedCode)
		}
		var vErr *PasswordValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected PasswordValidationError, got %T", err)
		}
		if vErr.Code != expectedCode {
			t.Fatalf("expected %s code, got %s", expectedCode, vErr.Code)
		}
	}

	assertViolation("Sh0rt!", "min_length")
	assertViolation("password", "weak_password")
}

func TestPasswordValidatorContextInputs(t *testing.T) {
	validator := NewPasswordValidatorWithContext("alice@example.com")

	// The email itself scores low once supplied as a user input.
	if err := validator.Validate("alice@example.com"); err == nil {
		t.Fatal("expected email-derived password to be rejected")
	}
}

func TestCustomPasswordValidator(t *testing.T) {
	validator := NewPasswordValidator(
		MinLengthRule(4),
		RequireDigitRule(),
		RequireDifferentFrom("existing1"),
	)

	if err := validator.Validate("fresh2"); err != nil {
		t.Fatalf("expected valid password, got %v", err)
	}
	if err := validator.Validate("existing1"); err == nil {
		t.Fatal("expected reuse of current password to fail")
	}
	if err := validator.Validate("nodigits"); err == nil {
		t.Fatal("expected digit rule violation")
	}
}
