package helpers

import "golang.org/x/crypto/bcrypt"

// PasswordHashCost is the bcrypt cost factor. 12 puts a single verification
// around 100ms on commodity hardware.
const PasswordHashCost = 12

// HashPassword hashes the plain text password using bcrypt. bcrypt salts
// per call, so hashing the same plaintext twice yields different digests.
func HashPassword(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), PasswordHashCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CompareHashAndPassword compares a bcrypt hash with a plain password
func CompareHashAndPassword(hash string, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
