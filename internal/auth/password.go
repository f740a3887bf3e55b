package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword derives a bcrypt hash for an agent credential. Costs below
// the bcrypt minimum fall back to the library default so a zero-valued
// config never produces weak hashes.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword reports via error whether plain matches the stored agent
// credential hash.
func ComparePassword(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
