// internal/auth/password.go
//
// Password hashing and one-time secrets.
//
// Context
//   Passwords are stored as bcrypt hashes at cost 10.  Reset links, email
//   verification links, and second-factor codes are random values minted
//   here.  In the test environment every minted value is fixed so end-to-end
//   tests can follow a link without reading mail.
//
//------------------------------------------------------------------------------

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor.
const PasswordCost = 10

// TestSecret is what every Tokens method returns in deterministic mode.
const TestSecret = "123456"

// HashPassword returns the bcrypt hash of pw.
func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// CheckPassword reports whether pw matches hash.  An empty password or hash
// never matches.
func CheckPassword(hash, pw string) bool {
	if hash == "" || pw == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Tokens mints one-time secrets.  The zero value is random.
type Tokens struct {
	Deterministic bool
}

// Link returns a 64 character token for reset links.
func (t Tokens) Link() (string, error) {
	if t.Deterministic {
		return TestSecret, nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate link token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// VerifyLink returns a token for email verification links.  Deterministic
// tokens carry the username so several test accounts stay distinct.
func (t Tokens) VerifyLink(username string) (string, error) {
	if t.Deterministic {
		return TestSecret + username, nil
	}
	return t.Link()
}

// TwoFactorCode returns a six digit code.
func (t Tokens) TwoFactorCode() (string, error) {
	if t.Deterministic {
		return TestSecret, nil
	}
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate 2fa code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
