package session

import (
	"context"
	"errors"
	"time"

	"github.com/Bala333sr/IntelliAttend-sub000/internal/evidence"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether no further tokens or accepted scans are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

var (
	ErrNotFound          = errors.New("session not found")
	ErrConflict          = errors.New("class already has an active session")
	ErrTerminal          = errors.New("session is terminal")
	ErrNoToken           = errors.New("no token emitted yet")
	ErrTokenUnknown      = errors.New("token sequence unknown")
	ErrTokenExpired      = errors.New("token expired")
	ErrSignatureMismatch = errors.New("token signature mismatch")
)

// ClassInfo is the roster snapshot resolved once at session creation and
// carried immutably with the session, so validation never re-queries
// class configuration mid-flight.
type ClassInfo struct {
	Ref           string
	Room          *evidence.Location
	NetworkSSID   string
	EnrolledCount int
}

// Config carries the rotation tunables frozen into a session at creation.
type Config struct {
	RotationInterval time.Duration
	GraceBuffer      time.Duration
	RetainedTokens   int
	Window           time.Duration
}

func (c Config) withDefaults() Config {
	if c.RotationInterval <= 0 {
		c.RotationInterval = 5 * time.Second
	}
	if c.GraceBuffer < 0 {
		c.GraceBuffer = 0
	}
	if c.RetainedTokens <= 0 {
		c.RetainedTokens = 3
	}
	if c.Window <= 0 {
		c.Window = 10 * time.Minute
	}
	return c
}

// Session is a read-mostly snapshot of one attendance session. The base
// secret never appears here; it stays inside the registry and is only ever
// used to sign and verify rotated tokens.
type Session struct {
	ID              string    `json:"id"`
	ClassRef        string    `json:"class_ref"`
	IssuerRef       string    `json:"issuer_ref"`
	CreatedAt       time.Time `json:"created_at"`
	WindowEnd       time.Time `json:"window_end"`
	Status          Status    `json:"status"`
	CurrentSequence uint64    `json:"current_sequence"`
	EnrolledCount   int       `json:"enrolled_count"`
	PresentCount    int       `json:"present_count"`
	Class           ClassInfo `json:"-"`
	Config          Config    `json:"-"`
}

// Store persists session state. The registry is authoritative in memory;
// write-through failures are logged and never resurrect or block a
// transition.
type Store interface {
	InsertSession(ctx context.Context, s Session) error
	UpdateSessionStatus(ctx context.Context, id string, status Status) error
	// SaveToken records an emitted token, advances the stored sequence and
	// prunes ledger rows older than the retained window.
	SaveToken(ctx context.Context, tok RotatedToken, keep int) error
	IncrementPresent(ctx context.Context, id string) error
}

// ClassDirectory reads the externally maintained roster. The engine never
// writes through this interface.
type ClassDirectory interface {
	GetClass(ctx context.Context, ref string) (ClassInfo, error)
}

// TokenCache projects the current token for display surfaces.
type TokenCache interface {
	SetCurrentToken(ctx context.Context, sessionID, payload string, validUntil time.Time) error
}
