package utils

import (
	"github.com/google/uuid"
)

// GenerateSaleID returns a new quick-sale ID
func GenerateSaleID() string {
	return uuid.NewString()
}

func GenerateProductID() string {
	return uuid.NewString()
}

func GenerateBidID() string {
	return uuid.NewString()
}

// GenerateTokenID returns a random JWT id used for revocation
func GenerateTokenID() string {
	return uuid.NewString()
}

// CanonicalUUID accepts any form uuid.Parse does (urn, braces, no hyphens) and returns
// the lower-case hyphenated one the database stores. Used to reject junk path IDs before
// they reach the database.
func CanonicalUUID(s string) (string, bool) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}
