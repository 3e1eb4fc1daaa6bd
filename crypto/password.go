package crypto

import "golang.org/x/crypto/bcrypt"

// HashFrequencyPassword hashes a frequency's join password for at-rest
// storage in persisted dial-slot metadata. Distinct from
// DeriveKeyFromPassword: this hash is never used as key material, only
// compared against on join.
func HashFrequencyPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyFrequencyPassword reports whether password matches a hash produced
// by HashFrequencyPassword.
func VerifyFrequencyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
