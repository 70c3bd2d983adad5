package usecases

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminAuthRequiresCredentials(t *testing.T) {
	_, err := NewAdminAuth("", "pw", "secret")
	assert.Error(t, err)
	_, err = NewAdminAuth("root", "", "secret")
	assert.Error(t, err)
}

func TestAdminAuthLogin(t *testing.T) {
	auth, err := NewAdminAuth("root", "hunter2", "test-secret")
	require.NoError(t, err)

	_, err = auth.Login("root", "wrong")
	assert.Error(t, err)
	_, err = auth.Login("someone", "hunter2")
	assert.Error(t, err)

	signed, err := auth.Login("root", "hunter2")
	require.NoError(t, err)

	parsed, err := jwt.Parse(signed, func(tok *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "root", claims["sub"])
	assert.Equal(t, "admin", claims["role"])
}
