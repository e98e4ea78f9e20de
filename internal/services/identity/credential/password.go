package credential

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Password holds a member's password credential as a bcrypt hash.
type Password struct {
	Hash string `json:"hash"`
}

// HashPassword derives a password credential from plaintext.
func HashPassword(plaintext string) (Password, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return Password{}, fmt.Errorf("hash password: %w", err)
	}
	return Password{Hash: string(hash)}, nil
}

// Verify reports whether plaintext matches the stored hash.
func (p Password) Verify(plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(p.Hash), []byte(plaintext)) == nil
}
