package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyToken(t *testing.T) {
	m := NewJWTManager("secret", 1)

	tokenString, err := m.GenerateToken("admin", "ADMIN")
	require.NoError(t, err)

	claims, err := m.VerifyToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "ADMIN", claims.Role)
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	m := NewJWTManager("secret", 1)
	other := NewJWTManager("different", 1)

	tokenString, err := m.GenerateToken("admin", "ADMIN")
	require.NoError(t, err)

	_, err = other.VerifyToken(tokenString)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	m := NewJWTManager("secret", 1)
	_, err := m.VerifyToken("not.a.token")
	assert.Error(t, err)
}

func TestGenerateRandomString(t *testing.T) {
	a := GenerateRandomString(16)
	b := GenerateRandomString(16)
	assert.Len(t, a, 32) // hex 编码后长度翻倍
	assert.NotEqual(t, a, b)
}
