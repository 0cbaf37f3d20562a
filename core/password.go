package core

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is the work factor for new hashes. Raising it invalidates no
// stored hashes; bcrypt embeds the cost in the hash itself.
const bcryptCost = bcrypt.DefaultCost

// HashPassword produces a salted adaptive hash of the plaintext.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// VerifyPassword reports whether plaintext matches the stored hash.
// A mismatch is (false, nil), never an error. Only a malformed stored hash
// yields ErrVerifierFault; callers treat that as authentication failure,
// not a crash.
func VerifyPassword(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", ErrVerifierFault, err)
}
