package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword produces the stored hash for an AgentGroup's configured
// password. Operators run this once (via `networknode config hash`) and
// paste the result into the network config file.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
