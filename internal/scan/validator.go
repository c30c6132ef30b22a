package scan

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Bala333sr/IntelliAttend-sub000/internal/metrics"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/queue"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/session"
)

// Config is the scoring policy applied to every scan.
type Config struct {
	GeofenceRadiusM  float64
	AccuracyCeilingM float64
	ProximityStrong  float64
	ProximityWeak    float64
	AcceptThreshold  float64
	RejectFloor      float64
	LateGrace        time.Duration
	Weights          Weights
}

func (c Config) withDefaults() Config {
	if c.GeofenceRadiusM <= 0 {
		c.GeofenceRadiusM = 30
	}
	if c.ProximityStrong == 0 {
		c.ProximityStrong = -70
	}
	if c.ProximityWeak == 0 {
		c.ProximityWeak = -85
	}
	if c.AcceptThreshold <= 0 {
		c.AcceptThreshold = 0.6
	}
	if c.RejectFloor < 0 {
		c.RejectFloor = 0
	}
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights()
	}
	return c
}

// Validator is the engine's entry point for attendee submissions. It never
// retries internally; every call either definitively succeeds or fails with
// a kinded error the caller can act on.
type Validator struct {
	registry *session.Registry
	records  RecordStore
	reviews  queue.Queue
	metrics  *metrics.Registry
	log      *zap.Logger
	cfg      Config
	now      func() time.Time
}

// NewValidator wires the pipeline. reviews and m may be nil.
func NewValidator(registry *session.Registry, records RecordStore, reviews queue.Queue, cfg Config, m *metrics.Registry, log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{
		registry: registry,
		records:  records,
		reviews:  reviews,
		metrics:  m,
		log:      log,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// Validate runs one submission through the pipeline: token claim, duplicate
// check, factor scoring, verdict, atomic persist. Structural failures return
// a kinded error with no side effects; only scored outcomes produce a record.
func (v *Validator) Validate(ctx context.Context, ev Evidence) (Record, error) {
	if ev.SubjectID == "" {
		return Record{}, reject(KindBadEvidence, "subject_id is required")
	}
	if ev.TokenPayload == "" {
		return Record{}, reject(KindBadEvidence, "token is required")
	}
	sessionID, sequence, signature, err := session.ParsePayload(ev.TokenPayload)
	if err != nil {
		return Record{}, reject(KindBadEvidence, err.Error())
	}

	now := v.now()
	sess, err := v.registry.ValidateClaim(sessionID, sequence, signature, now)
	if err != nil {
		return Record{}, v.rejectClaim(err)
	}

	// Fast-path duplicate check; the insert below stays the authority.
	if exists, err := v.records.Exists(ctx, sess.ID, ev.SubjectID); err != nil {
		return Record{}, reject(KindStorageUnavailable, "duplicate check failed")
	} else if exists {
		return Record{}, reject(KindAlreadyRecorded, "attendance already recorded")
	}

	fb := v.scoreFactors(sess, ev)
	trust := combineTrust(v.cfg.Weights, fb)

	if trust < v.cfg.RejectFloor {
		v.metrics.IncRejection(string(KindEvidenceRejected))
		return Record{}, reject(KindEvidenceRejected, "evidence below minimum trust floor")
	}

	status := StatusSuspicious
	if trust >= v.cfg.AcceptThreshold {
		status = StatusPresent
		if v.cfg.LateGrace > 0 && now.After(sess.CreatedAt.Add(v.cfg.LateGrace)) {
			status = StatusLate
		}
	}

	rec := Record{
		ID:         uuid.NewString(),
		SessionID:  sess.ID,
		SubjectID:  ev.SubjectID,
		DeviceRef:  ev.DeviceRef,
		RecordedAt: now,
		Status:     status,
		TrustScore: trust,
		Factors:    fb,
	}
	if err := v.records.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrAlreadyRecorded) {
			return Record{}, reject(KindAlreadyRecorded, "attendance already recorded")
		}
		return Record{}, reject(KindStorageUnavailable, "record write failed")
	}

	if status == StatusPresent || status == StatusLate {
		v.registry.RecordPresent(ctx, sess.ID)
	}
	v.metrics.IncScan(string(status))
	v.metrics.ObserveTrust(trust)

	if status == StatusSuspicious {
		v.flagForReview(ctx, rec)
	}

	v.log.Info("scan recorded",
		zap.String("session_id", sess.ID),
		zap.String("subject_id", ev.SubjectID),
		zap.String("status", string(status)),
		zap.Float64("trust_score", trust))
	return rec, nil
}

func (v *Validator) rejectClaim(err error) error {
	var kind Kind
	switch {
	case errors.Is(err, session.ErrNotFound):
		kind = KindSessionNotFound
	case errors.Is(err, session.ErrTerminal):
		kind = KindSessionTerminal
	case errors.Is(err, session.ErrTokenUnknown), errors.Is(err, session.ErrNoToken):
		kind = KindTokenUnknown
	case errors.Is(err, session.ErrTokenExpired):
		kind = KindTokenExpired
	case errors.Is(err, session.ErrSignatureMismatch):
		kind = KindSignatureMismatch
	default:
		kind = KindBadEvidence
	}
	v.metrics.IncRejection(string(kind))
	return reject(kind, err.Error())
}

// flagForReview publishes a suspicious record to the review queue. Best
// effort: the record itself is already durable.
func (v *Validator) flagForReview(ctx context.Context, rec Record) {
	if v.reviews == nil {
		return
	}
	body, err := json.Marshal(ReviewMessage{
		RecordID:   rec.ID,
		SessionID:  rec.SessionID,
		SubjectID:  rec.SubjectID,
		TrustScore: rec.TrustScore,
		Reason:     failureReason(rec.Factors),
	})
	if err != nil {
		return
	}
	if err := v.reviews.Publish(ctx, queue.Message{Type: queue.TypeScanSuspicious, Body: body}); err != nil {
		v.log.Warn("review publish failed", zap.String("record_id", rec.ID), zap.Error(err))
	}
}
