package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const (
	alphanumeric   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	accessCodeSet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	passwordSymbol = "!@#$%&*?"
)

func randomFrom(charset string, n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("length must be positive, got %d", n)
	}
	max := big.NewInt(int64(len(charset)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		out[i] = charset[idx.Int64()]
	}
	return string(out), nil
}

// GenerateRandomString returns n alphanumeric characters from crypto/rand
func GenerateRandomString(n int) (string, error) {
	return randomFrom(alphanumeric, n)
}

// GenerateAccessCode avoids look-alike characters (0/O, 1/I) so codes can be read aloud
func GenerateAccessCode(n int) (string, error) {
	return randomFrom(accessCodeSet, n)
}

// GeneratePassword returns a one-time password for provisioned accounts
func GeneratePassword(n int) (string, error) {
	return randomFrom(alphanumeric+passwordSymbol, n)
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
