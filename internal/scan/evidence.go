package scan

import (
	"context"
	"errors"
	"time"

	"github.com/Bala333sr/IntelliAttend-sub000/internal/evidence"
)

// LocationReading is a reported coordinate plus its claimed accuracy.
type LocationReading struct {
	evidence.Location
	AccuracyM float64 `json:"accuracy_m"`
}

// Evidence is one scan submission. Optional factors use explicit pointers or
// empty slices so "not supplied" is distinguishable from a failed reading.
type Evidence struct {
	TokenPayload      string           `json:"token"`
	SubjectID         string           `json:"subject_id"`
	DeviceRef         string           `json:"device_ref"`
	LivenessAsserted  bool             `json:"liveness_asserted"`
	Location          *LocationReading `json:"location,omitempty"`
	ProximityReadings []float64        `json:"proximity_readings,omitempty"`
	NetworkSSID       *string          `json:"network_ssid,omitempty"`
}

// RecordStatus is the verdict stored with an accepted record. Structural
// failures never produce a record, so Invalid never appears here.
type RecordStatus string

const (
	StatusPresent    RecordStatus = "present"
	StatusLate       RecordStatus = "late"
	StatusSuspicious RecordStatus = "suspicious"
)

// FactorBreakdown holds the per-factor outcomes that went into a trust
// score. Nil means the factor was not collected and counted for nothing.
type FactorBreakdown struct {
	Liveness  *evidence.Factor `json:"liveness,omitempty"`
	Location  *evidence.Factor `json:"location,omitempty"`
	Proximity *evidence.Factor `json:"proximity,omitempty"`
	Network   *evidence.Factor `json:"network,omitempty"`
}

// Record is one immutable attendance row, unique per (session, subject).
type Record struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id"`
	SubjectID  string          `json:"subject_id"`
	DeviceRef  string          `json:"device_ref,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
	Status     RecordStatus    `json:"status"`
	TrustScore float64         `json:"trust_score"`
	Factors    FactorBreakdown `json:"factors"`
}

// ErrAlreadyRecorded is returned by RecordStore.Insert when the
// (session, subject) pair already has a row.
var ErrAlreadyRecorded = errors.New("attendance already recorded for subject")

// RecordStore persists attendance records. Insert must be atomic with the
// duplicate check: two racing inserts for the same pair yield exactly one row
// and one ErrAlreadyRecorded.
type RecordStore interface {
	Insert(ctx context.Context, rec Record) error
	Exists(ctx context.Context, sessionID, subjectID string) (bool, error)
}

// ReviewItem queues a suspicious record for human review.
type ReviewItem struct {
	ID        string    `json:"id"`
	RecordID  string    `json:"record_id"`
	SessionID string    `json:"session_id"`
	SubjectID string    `json:"subject_id"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// ReviewStore persists review work items; consumed by the review worker.
type ReviewStore interface {
	InsertReviewItem(ctx context.Context, item ReviewItem) error
	GetRecord(ctx context.Context, id string) (Record, error)
}

// ReviewMessage is the queue payload linking a suspicious record to review.
type ReviewMessage struct {
	RecordID   string  `json:"record_id"`
	SessionID  string  `json:"session_id"`
	SubjectID  string  `json:"subject_id"`
	TrustScore float64 `json:"trust_score"`
	Reason     string  `json:"reason"`
}
