package usecases

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuth guards the admin API with a single operator account. The password
// is hashed at startup; Login issues a short-lived JWT consumed by the HTTP
// middleware.
type AdminAuth struct {
	username     string
	passwordHash []byte
	jwtSecret    []byte
}

// NewAdminAuth hashes the configured admin credentials.
func NewAdminAuth(username, password, jwtSecret string) (*AdminAuth, error) {
	if username == "" || password == "" {
		return nil, errors.New("admin credentials not configured")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &AdminAuth{
		username:     username,
		passwordHash: hashed,
		jwtSecret:    []byte(jwtSecret),
	}, nil
}

// Login verifies the credentials and returns a signed token.
func (a *AdminAuth) Login(username, password string) (string, error) {
	if username != a.username {
		return "", errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", errors.New("invalid credentials")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  username,
		"role": "admin",
		"exp":  time.Now().Add(24 * time.Hour).Unix(),
	})
	signed, err := token.SignedString(a.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %v", err)
	}
	return signed, nil
}
