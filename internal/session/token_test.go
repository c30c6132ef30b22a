package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadRoundTrip(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	issued := time.Now().UTC()
	tok := newToken(secret, "sess-1", 7, issued, Config{}.withDefaults())

	sid, seq, sig, err := ParsePayload(tok.Payload())
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sid)
	assert.Equal(t, uint64(7), seq)
	assert.Equal(t, tok.Signature, sig)
	assert.Equal(t, signToken(secret, "sess-1", 7, issued), sig)
}

func TestParsePayloadMalformed(t *testing.T) {
	cases := []string{
		"",
		"not-base64!!!",
		"YWJj",            // "abc": no parts
		"YS4wLmZm",        // "a.0.ff": zero sequence
		"YS54LmZm",        // "a.x.ff": non-numeric sequence
		"YS4xLnp6",        // "a.1.zz": bad hex signature
		"LjEuZmY",         // ".1.ff": empty session id
	}
	for _, c := range cases {
		_, _, _, err := ParsePayload(c)
		assert.Error(t, err, "payload %q", c)
	}
}

func TestTokenValidityWindow(t *testing.T) {
	cfg := Config{RotationInterval: 5 * time.Second, GraceBuffer: 2 * time.Second}.withDefaults()
	issued := time.Now()
	tok := newToken([]byte("secret"), "s", 1, issued, cfg)
	assert.Equal(t, issued.Add(7*time.Second), tok.ValidUntil)
}

func TestSignatureBoundToAllParts(t *testing.T) {
	secret := []byte("secret")
	issued := time.Now()
	base := signToken(secret, "s1", 1, issued)

	assert.NotEqual(t, base, signToken(secret, "s2", 1, issued))
	assert.NotEqual(t, base, signToken(secret, "s1", 2, issued))
	assert.NotEqual(t, base, signToken(secret, "s1", 1, issued.Add(time.Millisecond)))
	assert.NotEqual(t, base, signToken([]byte("other"), "s1", 1, issued))
}
