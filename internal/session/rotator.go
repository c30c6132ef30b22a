package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// runRotator drives one session's token cadence. The loop exits when its
// context is cancelled (stop, cancel, registry close) or when rotateOnce
// observes a terminal state, so termination is seen within one tick.
func (r *Registry) runRotator(ctx context.Context, e *entry) {
	e.mu.Lock()
	interval := e.s.Config.RotationInterval
	e.mu.Unlock()

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !r.rotateOnce(ctx, e) {
				return
			}
		}
	}
}

// rotateOnce emits the next token for e, or expires the session when its
// window has elapsed. Returns false once the session is terminal.
func (r *Registry) rotateOnce(ctx context.Context, e *entry) bool {
	e.mu.Lock()
	if e.s.Status != StatusActive {
		e.mu.Unlock()
		return false
	}
	now := r.now()
	if !now.Before(e.s.WindowEnd) {
		id := e.s.ID
		e.mu.Unlock()
		r.terminate(ctx, id, "rotator", StatusExpired)
		return false
	}

	e.s.CurrentSequence++
	tok := newToken(e.secret, e.s.ID, e.s.CurrentSequence, now, e.s.Config)
	e.ring = append(e.ring, tok)
	// Evict beyond the retained count, but never a token still inside its
	// grace window: a validation lookup may be racing on it.
	for len(e.ring) > e.s.Config.RetainedTokens && now.After(e.ring[0].ValidUntil) {
		e.ring = e.ring[1:]
	}
	keep := e.s.Config.RetainedTokens
	e.mu.Unlock()

	if err := r.store.SaveToken(ctx, tok, keep); err != nil {
		r.log.Warn("token ledger write-through failed",
			zap.String("session_id", tok.SessionID),
			zap.Uint64("sequence", tok.Sequence),
			zap.Error(err))
	}
	if r.cache != nil {
		if err := r.cache.SetCurrentToken(ctx, tok.SessionID, tok.Payload(), tok.ValidUntil); err != nil {
			r.log.Warn("token projection cache failed", zap.String("session_id", tok.SessionID), zap.Error(err))
		}
	}
	r.metrics.IncRotation()
	r.log.Debug("token rotated",
		zap.String("session_id", tok.SessionID),
		zap.Uint64("sequence", tok.Sequence),
		zap.Time("valid_until", tok.ValidUntil))
	return true
}
