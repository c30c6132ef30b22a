package activation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bala333sr/IntelliAttend-sub000/internal/session"
)

func newTestIssuer(t *testing.T) (*Issuer, *session.Registry) {
	t.Helper()
	reg := session.NewRegistry(session.NewMemoryStore(), session.NewMemoryClassDirectory(),
		session.Config{RotationInterval: time.Minute}, nil, nil, nil)
	t.Cleanup(reg.Close)
	iss := NewIssuer(reg, 6, 5*time.Minute, 30*time.Second, nil, nil)
	return iss, reg
}

func TestIssueProducesDigitCode(t *testing.T) {
	iss, _ := newTestIssuer(t)

	c, err := iss.Issue("prof-1")
	require.NoError(t, err)
	assert.Len(t, c.Code, 6)
	for _, r := range c.Code {
		assert.True(t, r >= '0' && r <= '9', "code %q is not all digits", c.Code)
	}
	assert.Equal(t, "prof-1", c.IssuerID)
	assert.False(t, c.Redeemed)
	assert.Equal(t, 5*time.Minute, c.ExpiresAt.Sub(c.IssuedAt))
}

func TestIssueRateLimitsWithinWindow(t *testing.T) {
	iss, _ := newTestIssuer(t)

	_, err := iss.Issue("prof-1")
	require.NoError(t, err)

	_, err = iss.Issue("prof-1")
	assert.ErrorIs(t, err, ErrRateLimited)

	// Another issuer is unaffected.
	_, err = iss.Issue("prof-2")
	assert.NoError(t, err)
}

func TestIssueReplacesAfterReissueWindow(t *testing.T) {
	iss, _ := newTestIssuer(t)

	base := time.Now()
	iss.now = func() time.Time { return base }
	first, err := iss.Issue("prof-1")
	require.NoError(t, err)

	iss.now = func() time.Time { return base.Add(time.Minute) }
	second, err := iss.Issue("prof-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.Code, second.Code)

	// The replaced code no longer redeems.
	_, err = iss.Redeem(context.Background(), first.Code, "C1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedeemCreatesSession(t *testing.T) {
	iss, reg := newTestIssuer(t)

	c, err := iss.Issue("prof-1")
	require.NoError(t, err)

	s, err := iss.Redeem(context.Background(), c.Code, "C1")
	require.NoError(t, err)
	assert.Equal(t, "C1", s.ClassRef)
	assert.Equal(t, "prof-1", s.IssuerRef)
	assert.Equal(t, session.StatusActive, s.Status)

	got, err := reg.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, got.Status)
}

func TestRedeemUnknownCode(t *testing.T) {
	iss, _ := newTestIssuer(t)
	_, err := iss.Redeem(context.Background(), "000000", "C1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedeemTwiceFails(t *testing.T) {
	iss, _ := newTestIssuer(t)

	c, err := iss.Issue("prof-1")
	require.NoError(t, err)
	_, err = iss.Redeem(context.Background(), c.Code, "C1")
	require.NoError(t, err)

	_, err = iss.Redeem(context.Background(), c.Code, "C2")
	assert.ErrorIs(t, err, ErrAlreadyUsed)
}

func TestRedeemExpiredCode(t *testing.T) {
	iss, _ := newTestIssuer(t)

	c, err := iss.Issue("prof-1")
	require.NoError(t, err)

	iss.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	_, err = iss.Redeem(context.Background(), c.Code, "C1")
	assert.ErrorIs(t, err, ErrExpired)
}

func TestRedeemRollsBackOnRegistryConflict(t *testing.T) {
	iss, reg := newTestIssuer(t)

	// Occupy the class slot so the gated creation is rejected.
	_, err := reg.Create(context.Background(), "C1", "prof-0", 0)
	require.NoError(t, err)

	c, err := iss.Issue("prof-1")
	require.NoError(t, err)

	_, err = iss.Redeem(context.Background(), c.Code, "C1")
	assert.ErrorIs(t, err, session.ErrConflict)

	// The code survives the failed redemption and works elsewhere.
	s, err := iss.Redeem(context.Background(), c.Code, "C2")
	require.NoError(t, err)
	assert.Equal(t, "C2", s.ClassRef)
}
