package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("prof-1", RoleIssuer, "intelliattend", "test-key", 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.True(t, pair.RefreshExp.After(pair.AccessExp))

	claims, err := Parse(pair.AccessToken, "test-key", "intelliattend")
	require.NoError(t, err)
	assert.Equal(t, "prof-1", claims.Subject)
	assert.Equal(t, RoleIssuer, claims.Role)
}

func TestParseWrongKey(t *testing.T) {
	pair, err := Issue("prof-1", RoleIssuer, "intelliattend", "test-key", time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "other-key", "intelliattend")
	assert.Error(t, err)
}

func TestParseIssuerMismatch(t *testing.T) {
	pair, err := Issue("dev-1", RoleDevice, "someone-else", "test-key", time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "test-key", "intelliattend")
	assert.Error(t, err)
}

func TestParseExpiredToken(t *testing.T) {
	pair, err := Issue("dev-1", RoleDevice, "intelliattend", "test-key", -time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "test-key", "intelliattend")
	assert.Error(t, err)
}

func TestParseGarbage(t *testing.T) {
	_, err := Parse("not.a.jwt", "test-key", "intelliattend")
	assert.Error(t, err)
}
