package auth

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"

	"ktu-bizconnect/internal/saleerrors"
)

// HashPassword is used by cmd/migrate to produce ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// AdminAccount is the single configured back-office login.
type AdminAccount struct {
	Username     string
	PasswordHash string
}

// dummyHash keeps the bcrypt cost paid on unknown usernames.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-the-password"), bcrypt.MinCost)

func (a AdminAccount) Check(username, password string) error {
	if a.PasswordHash == "" {
		return saleerrors.ErrInvalidCredentials
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.Username)) == 1
	hash := []byte(a.PasswordHash)
	if !userOK {
		hash = dummyHash
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || !userOK {
		return saleerrors.ErrInvalidCredentials
	}
	return nil
}
