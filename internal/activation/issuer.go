package activation

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Bala333sr/IntelliAttend-sub000/internal/metrics"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/session"
)

var (
	ErrNotFound    = errors.New("activation code not found")
	ErrExpired     = errors.New("activation code expired")
	ErrAlreadyUsed = errors.New("activation code already redeemed")
	ErrRateLimited = errors.New("an unredeemed code is still outstanding")
)

// Code is a single-use numeric credential gating session creation.
type Code struct {
	Code      string    `json:"code"`
	IssuerID  string    `json:"issuer_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Redeemed  bool      `json:"redeemed"`
	SessionID string    `json:"session_id,omitempty"`
}

// Issuer generates and tracks activation codes. Codes are minutes-lived and
// process-local; a restart invalidates outstanding ones, which only costs the
// instructor a re-issue.
type Issuer struct {
	mu       sync.Mutex
	codes    map[string]*Code
	byIssuer map[string]*Code

	registry     *session.Registry
	length       int
	ttl          time.Duration
	reissueAfter time.Duration
	metrics      *metrics.Registry
	log          *zap.Logger
	now          func() time.Time
}

// NewIssuer builds an issuer bound to the session registry. length is the
// number of code digits (minimum 6 enforced).
func NewIssuer(registry *session.Registry, length int, ttl, reissueAfter time.Duration, m *metrics.Registry, log *zap.Logger) *Issuer {
	if length < 6 {
		length = 6
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Issuer{
		codes:        make(map[string]*Code),
		byIssuer:     make(map[string]*Code),
		registry:     registry,
		length:       length,
		ttl:          ttl,
		reissueAfter: reissueAfter,
		metrics:      m,
		log:          log,
		now:          time.Now,
	}
}

// Issue generates a fresh single-use code for issuerID. While an unredeemed,
// unexpired code is outstanding, re-requesting within the reissue window
// fails with ErrRateLimited.
func (i *Issuer) Issue(issuerID string) (Code, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	i.purgeLocked(now)

	if prev, ok := i.byIssuer[issuerID]; ok && !prev.Redeemed && now.Before(prev.ExpiresAt) {
		if now.Sub(prev.IssuedAt) < i.reissueAfter {
			return Code{}, ErrRateLimited
		}
		delete(i.codes, prev.Code)
	}

	var value string
	for {
		v, err := randomDigits(i.length)
		if err != nil {
			return Code{}, err
		}
		if _, taken := i.codes[v]; !taken {
			value = v
			break
		}
	}

	c := &Code{
		Code:      value,
		IssuerID:  issuerID,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.ttl),
	}
	i.codes[value] = c
	i.byIssuer[issuerID] = c
	i.metrics.IncCodeIssued()
	i.log.Info("activation code issued", zap.String("issuer_id", issuerID), zap.Time("expires_at", c.ExpiresAt))
	return *c, nil
}

// Redeem atomically consumes a code and creates the session it gates.
// Redemption and session creation are all-or-nothing: if the registry rejects
// creation the code is rolled back to unredeemed.
func (i *Issuer) Redeem(ctx context.Context, code, classRef string) (session.Session, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	c, ok := i.codes[code]
	if !ok {
		return session.Session{}, ErrNotFound
	}
	if c.Redeemed {
		return session.Session{}, ErrAlreadyUsed
	}
	if i.now().After(c.ExpiresAt) {
		return session.Session{}, ErrExpired
	}

	c.Redeemed = true
	s, err := i.registry.Create(ctx, classRef, c.IssuerID, 0)
	if err != nil {
		c.Redeemed = false
		return session.Session{}, err
	}
	c.SessionID = s.ID
	i.log.Info("activation code redeemed",
		zap.String("issuer_id", c.IssuerID),
		zap.String("class_ref", classRef),
		zap.String("session_id", s.ID))
	return s, nil
}

// purgeLocked drops expired unredeemed codes. Caller holds i.mu.
func (i *Issuer) purgeLocked(now time.Time) {
	for v, c := range i.codes {
		if !c.Redeemed && now.After(c.ExpiresAt) {
			delete(i.codes, v)
			if i.byIssuer[c.IssuerID] == c {
				delete(i.byIssuer, c.IssuerID)
			}
		}
	}
}

func randomDigits(n int) (string, error) {
	max := big.NewInt(10)
	out := make([]byte, n)
	for idx := range out {
		d, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[idx] = byte('0' + d.Int64())
	}
	return string(out), nil
}
