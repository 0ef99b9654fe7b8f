package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Run("generates 64 character hex string", func(t *testing.T) {
		token, err := GenerateToken()
		require.NoError(t, err)
		assert.Len(t, token, 64)
	})

	t.Run("generates unique tokens", func(t *testing.T) {
		token1, _ := GenerateToken()
		token2, _ := GenerateToken()
		assert.NotEqual(t, token1, token2)
	})

	t.Run("generates valid hex", func(t *testing.T) {
		token, _ := GenerateToken()
		for _, c := range token {
			assert.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f'))
		}
	})
}

func TestHashToken(t *testing.T) {
	t.Run("returns 64 character hex string", func(t *testing.T) {
		hash := HashToken("test-token")
		assert.Len(t, hash, 64)
	})

	t.Run("same input produces same hash", func(t *testing.T) {
		assert.Equal(t, HashToken("test-token"), HashToken("test-token"))
	})

	t.Run("different input produces different hash", func(t *testing.T) {
		assert.NotEqual(t, HashToken("token-1"), HashToken("token-2"))
	})
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual("abc", "abc"))
	assert.False(t, ConstantTimeEqual("abc", "abd"))
	assert.False(t, ConstantTimeEqual("abc", "abcd"))
}

func TestMaskPIN(t *testing.T) {
	assert.Equal(t, "1*****", MaskPIN("123456"))
	assert.Equal(t, "0*****", MaskPIN("000042"))
	assert.Equal(t, "", MaskPIN(""))
}

func TestIsValidDeviceID(t *testing.T) {
	assert.True(t, IsValidDeviceID("tablet-livingroom"))
	assert.True(t, IsValidDeviceID("a1b2c3d4-e5f6"))
	assert.False(t, IsValidDeviceID(""))
	assert.False(t, IsValidDeviceID("-leading-dash"))
	assert.False(t, IsValidDeviceID("has space"))
	assert.False(t, IsValidDeviceID("has/slash"))
}

func TestIsValidPINFormat(t *testing.T) {
	assert.True(t, IsValidPINFormat("000123"))
	assert.True(t, IsValidPINFormat("999999"))
	assert.False(t, IsValidPINFormat(""))
	assert.False(t, IsValidPINFormat("123"))
	assert.False(t, IsValidPINFormat("1234567"))
	assert.False(t, IsValidPINFormat("12a456"))
}
