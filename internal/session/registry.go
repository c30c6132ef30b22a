package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Bala333sr/IntelliAttend-sub000/internal/metrics"
)

// Registry is the authoritative map of session id to session state and the
// single lock domain for status transitions. Each session carries its own
// mutex so scans against different sessions never contend; the registry-level
// lock only guards the maps. Lock order is registry before entry, and a
// goroutine holding an entry lock never takes the registry lock.
type Registry struct {
	mu            sync.RWMutex
	byID          map[string]*entry
	activeByClass map[string]string

	store    Store
	classes  ClassDirectory
	cache    TokenCache
	defaults Config
	metrics  *metrics.Registry
	log      *zap.Logger

	rootCtx    context.Context
	rootCancel context.CancelFunc

	now func() time.Time
}

type entry struct {
	mu     sync.Mutex
	s      Session
	secret []byte
	ring   []RotatedToken
	cancel context.CancelFunc
}

// NewRegistry builds a registry. classes, cache and m may be nil; store must
// not be.
func NewRegistry(store Store, classes ClassDirectory, defaults Config, cache TokenCache, m *metrics.Registry, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		byID:          make(map[string]*entry),
		activeByClass: make(map[string]string),
		store:         store,
		classes:       classes,
		cache:         cache,
		defaults:      defaults.withDefaults(),
		metrics:       m,
		log:           log,
		rootCtx:       ctx,
		rootCancel:    cancel,
		now:           time.Now,
	}
}

// Close cancels every rotation loop. Session state stays readable.
func (r *Registry) Close() {
	r.rootCancel()
}

// Create opens a new Active session for classRef, emits the first rotated
// token synchronously and starts the rotation loop. It fails with ErrConflict
// while another session for the same class is Active. A window of 0 uses the
// configured default.
func (r *Registry) Create(ctx context.Context, classRef, issuerRef string, window time.Duration) (Session, error) {
	cfg := r.defaults
	if window > 0 {
		cfg.Window = window
	}

	info := ClassInfo{Ref: classRef}
	if r.classes != nil {
		resolved, err := r.classes.GetClass(ctx, classRef)
		if err != nil {
			r.log.Warn("class lookup failed, proceeding without roster snapshot",
				zap.String("class_ref", classRef), zap.Error(err))
		} else {
			resolved.Ref = classRef
			info = resolved
		}
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return Session{}, err
	}

	now := r.now()
	s := Session{
		ID:            uuid.NewString(),
		ClassRef:      classRef,
		IssuerRef:     issuerRef,
		CreatedAt:     now,
		WindowEnd:     now.Add(cfg.Window),
		Status:        StatusActive,
		EnrolledCount: info.EnrolledCount,
		Class:         info,
		Config:        cfg,
	}
	e := &entry{s: s, secret: secret}

	r.mu.Lock()
	if existing, ok := r.activeByClass[classRef]; ok && r.entryActive(existing) {
		r.mu.Unlock()
		return Session{}, ErrConflict
	}
	r.byID[s.ID] = e
	r.activeByClass[classRef] = s.ID
	r.mu.Unlock()

	if err := r.store.InsertSession(ctx, s); err != nil {
		r.mu.Lock()
		delete(r.byID, s.ID)
		if r.activeByClass[classRef] == s.ID {
			delete(r.activeByClass, classRef)
		}
		r.mu.Unlock()
		return Session{}, err
	}

	rotCtx, cancel := context.WithCancel(r.rootCtx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	// Sequence 1 is emitted at creation time; the loop handles the rest.
	r.rotateOnce(rotCtx, e)
	go r.runRotator(rotCtx, e)

	r.metrics.SessionOpened()
	r.log.Info("session created",
		zap.String("session_id", s.ID),
		zap.String("class_ref", classRef),
		zap.String("issuer_ref", issuerRef),
		zap.Time("window_end", s.WindowEnd))
	return r.snapshot(e), nil
}

// entryActive reports whether id maps to a live Active entry, pruning the
// class index when it does not. Caller holds r.mu.
func (r *Registry) entryActive(id string) bool {
	e, ok := r.byID[id]
	if !ok {
		return false
	}
	e.mu.Lock()
	active := e.s.Status == StatusActive
	e.mu.Unlock()
	return active
}

// Get returns a snapshot of the session.
func (r *Registry) Get(id string) (Session, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Session{}, err
	}
	return r.snapshot(e), nil
}

// Stop transitions Active to Completed. Stopping a session that is already
// terminal is a no-op returning the current state, so duplicate stop requests
// from concurrent callers are harmless.
func (r *Registry) Stop(ctx context.Context, id, actor string) (Session, error) {
	return r.terminate(ctx, id, actor, StatusCompleted)
}

// Cancel is the administrative terminal transition.
func (r *Registry) Cancel(ctx context.Context, id, actor string) (Session, error) {
	return r.terminate(ctx, id, actor, StatusCancelled)
}

func (r *Registry) terminate(_ context.Context, id, actor string, to Status) (Session, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	if e.s.Status.Terminal() {
		s := e.s
		e.mu.Unlock()
		return s, nil
	}
	e.s.Status = to
	s := e.s
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.clearActive(s.ClassRef, s.ID)
	r.metrics.SessionClosed()

	// Detached context: the caller's may be the rotator's own, which was
	// just cancelled above.
	wctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := r.store.UpdateSessionStatus(wctx, id, to); err != nil {
		r.log.Error("session status write-through failed",
			zap.String("session_id", id), zap.String("status", string(to)), zap.Error(err))
	}
	r.log.Info("session terminated",
		zap.String("session_id", id),
		zap.String("status", string(to)),
		zap.String("actor", actor))
	return s, nil
}

// Sweep expires every Active session whose window has passed. Safe to run
// concurrently with Stop and rotation; whichever transition lands first wins.
func (r *Registry) Sweep(ctx context.Context) int {
	r.mu.RLock()
	candidates := make([]*entry, 0, len(r.byID))
	for _, e := range r.byID {
		candidates = append(candidates, e)
	}
	r.mu.RUnlock()

	now := r.now()
	expired := 0
	for _, e := range candidates {
		e.mu.Lock()
		due := e.s.Status == StatusActive && !now.Before(e.s.WindowEnd)
		id := e.s.ID
		e.mu.Unlock()
		if !due {
			continue
		}
		if s, err := r.terminate(ctx, id, "sweeper", StatusExpired); err == nil && s.Status == StatusExpired {
			expired++
		}
	}
	return expired
}

// StartSweeper runs Sweep on the given cadence until ctx is done.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := r.Sweep(ctx); n > 0 {
					r.log.Info("sweeper expired sessions", zap.Int("count", n))
				}
			}
		}
	}()
}

// CurrentToken returns the most recently rotated token for an active session.
func (r *Registry) CurrentToken(id string) (RotatedToken, error) {
	e, err := r.lookup(id)
	if err != nil {
		return RotatedToken{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s.Status.Terminal() {
		return RotatedToken{}, ErrTerminal
	}
	if len(e.ring) == 0 {
		return RotatedToken{}, ErrNoToken
	}
	return e.ring[len(e.ring)-1], nil
}

// ValidateClaim checks a submitted token claim against the retained ring at
// time at: the session must be Active, the sequence must still be resident,
// the validity window must cover at, and the MAC recomputed from the base
// secret must match. On success it returns a session snapshot for scoring.
func (r *Registry) ValidateClaim(id string, sequence uint64, signature []byte, at time.Time) (Session, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.s.Status.Terminal() {
		return Session{}, ErrTerminal
	}
	var tok *RotatedToken
	for i := range e.ring {
		if e.ring[i].Sequence == sequence {
			tok = &e.ring[i]
			break
		}
	}
	if tok == nil {
		return Session{}, ErrTokenUnknown
	}
	if at.After(tok.ValidUntil) {
		return Session{}, ErrTokenExpired
	}
	expected := signToken(e.secret, e.s.ID, tok.Sequence, tok.IssuedAt)
	if !hmac.Equal(signature, expected) {
		return Session{}, ErrSignatureMismatch
	}
	return e.s, nil
}

// RecordPresent bumps the in-memory present counter and writes it through.
func (r *Registry) RecordPresent(ctx context.Context, id string) {
	e, err := r.lookup(id)
	if err != nil {
		return
	}
	e.mu.Lock()
	e.s.PresentCount++
	e.mu.Unlock()

	if err := r.store.IncrementPresent(ctx, id); err != nil {
		r.log.Warn("present count write-through failed", zap.String("session_id", id), zap.Error(err))
	}
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (r *Registry) snapshot(e *entry) Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s
}

func (r *Registry) clearActive(classRef, id string) {
	r.mu.Lock()
	if r.activeByClass[classRef] == id {
		delete(r.activeByClass, classRef)
	}
	r.mu.Unlock()
}
