package utils

import "golang.org/x/crypto/bcrypt"

// DefaultBcryptCost is the hashing work factor applied when the
// configured cost is outside bcrypt's supported range.
const DefaultBcryptCost = 12

// HashPassword hashes a plaintext password at the given bcrypt cost.
// Costs outside [bcrypt.MinCost, bcrypt.MaxCost] fall back to
// DefaultBcryptCost, so a misconfigured deployment never stores weak
// hashes.
func HashPassword(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches the stored hash.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
