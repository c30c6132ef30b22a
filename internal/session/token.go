package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RotatedToken is one emitted credential. Sequence numbers are strictly
// increasing per session starting at 1; validity covers one rotation interval
// plus the grace buffer.
type RotatedToken struct {
	SessionID  string    `json:"session_id"`
	Sequence   uint64    `json:"sequence"`
	IssuedAt   time.Time `json:"issued_at"`
	ValidUntil time.Time `json:"valid_until"`
	Signature  []byte    `json:"-"`
}

// Payload renders the opaque string a display surface encodes (e.g. as a QR)
// and a scanner submits back verbatim.
func (t RotatedToken) Payload() string {
	raw := fmt.Sprintf("%s.%d.%s", t.SessionID, t.Sequence, hex.EncodeToString(t.Signature))
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParsePayload decodes a submitted payload back into its claim parts.
func ParsePayload(payload string) (sessionID string, sequence uint64, signature []byte, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", 0, nil, fmt.Errorf("decode token payload: %w", err)
	}
	parts := strings.Split(string(raw), ".")
	if len(parts) != 3 || parts[0] == "" {
		return "", 0, nil, fmt.Errorf("malformed token payload")
	}
	sequence, err = strconv.ParseUint(parts[1], 10, 64)
	if err != nil || sequence == 0 {
		return "", 0, nil, fmt.Errorf("malformed token sequence")
	}
	signature, err = hex.DecodeString(parts[2])
	if err != nil {
		return "", 0, nil, fmt.Errorf("malformed token signature")
	}
	return parts[0], sequence, signature, nil
}

// signToken computes the per-token MAC keyed by the session base secret.
func signToken(secret []byte, sessionID string, sequence uint64, issuedAt time.Time) []byte {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s|%d|%d", sessionID, sequence, issuedAt.UnixMilli())
	return mac.Sum(nil)
}

func newToken(secret []byte, sessionID string, sequence uint64, issuedAt time.Time, cfg Config) RotatedToken {
	return RotatedToken{
		SessionID:  sessionID,
		Sequence:   sequence,
		IssuedAt:   issuedAt,
		ValidUntil: issuedAt.Add(cfg.RotationInterval + cfg.GraceBuffer),
		Signature:  signToken(secret, sessionID, sequence, issuedAt),
	}
}
