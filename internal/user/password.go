package user

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/crypto/bcrypt"
)

const (
	legacyDigestLength = sha256.Size * 2

	// MaxPasswordBytes is the longest password bcrypt accepts.
	MaxPasswordBytes = 72
)

// HashPassword returns a bcrypt hash of the plain-text password. Empty or
// over-long passwords are reported as ErrInvalidInput.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", eris.Wrap(ErrInvalidInput, "password is required")
	}
	if len(password) > MaxPasswordBytes {
		return "", eris.Wrapf(ErrInvalidInput, "password must be at most %d bytes", MaxPasswordBytes)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if eris.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", eris.Wrap(ErrInvalidInput, err.Error())
		}
		return "", eris.Wrap(err, "hashing password")
	}

	return string(hashed), nil
}

// CheckPassword compares a stored hash with a plain-text password.
// Rows written before bcrypt hold an unsalted SHA-256 hex digest; those still
// verify, and needsRehash tells the caller to upgrade the stored value.
func CheckPassword(stored, password string) (ok bool, needsRehash bool) {
	if isLegacyDigest(stored) {
		sum := sha256.Sum256([]byte(password))
		candidate := hex.EncodeToString(sum[:])
		match := subtle.ConstantTimeCompare([]byte(strings.ToLower(stored)), []byte(candidate)) == 1
		return match, match
	}

	if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)); err != nil {
		return false, false
	}

	return true, false
}

func isLegacyDigest(stored string) bool {
	if len(stored) != legacyDigestLength {
		return false
	}
	_, err := hex.DecodeString(stored)
	return err == nil
}
