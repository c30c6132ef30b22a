package scan

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bala333sr/IntelliAttend-sub000/internal/evidence"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/queue"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/session"
)

var testRoom = evidence.Location{Lat: 12.9716, Lng: 77.5946}

type validatorFixture struct {
	validator *Validator
	registry  *session.Registry
	repo      *MemoryRepository
	reviews   *queue.InMemory
	session   session.Session
	payload   string
}

func newValidatorFixture(t *testing.T, cfg Config) *validatorFixture {
	t.Helper()

	classes := session.NewMemoryClassDirectory()
	classes.Put(session.ClassInfo{
		Ref:           "C1",
		Room:          &testRoom,
		NetworkSSID:   "campus-wifi",
		EnrolledCount: 40,
	})
	reg := session.NewRegistry(session.NewMemoryStore(), classes, session.Config{
		RotationInterval: time.Minute,
		GraceBuffer:      2 * time.Hour,
		Window:           4 * time.Hour,
	}, nil, nil, nil)
	t.Cleanup(reg.Close)

	s, err := reg.Create(context.Background(), "C1", "prof-1", 0)
	require.NoError(t, err)
	tok, err := reg.CurrentToken(s.ID)
	require.NoError(t, err)

	repo := NewMemoryRepository()
	reviews := queue.NewInMemory(8)
	v := NewValidator(reg, repo, reviews, cfg, nil, nil)
	return &validatorFixture{
		validator: v,
		registry:  reg,
		repo:      repo,
		reviews:   reviews,
		session:   s,
		payload:   tok.Payload(),
	}
}

func strongEvidence(fx *validatorFixture, subject string) Evidence {
	ssid := "campus-wifi"
	return Evidence{
		TokenPayload:      fx.payload,
		SubjectID:         subject,
		DeviceRef:         "dev-1",
		LivenessAsserted:  true,
		Location:          &LocationReading{Location: testRoom, AccuracyM: 8},
		ProximityReadings: []float64{-65},
		NetworkSSID:       &ssid,
	}
}

func TestValidateAcceptsStrongEvidence(t *testing.T) {
	fx := newValidatorFixture(t, Config{RejectFloor: 0.2, LateGrace: 10 * time.Minute})

	rec, err := fx.validator.Validate(context.Background(), strongEvidence(fx, "stu-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusPresent, rec.Status)
	assert.Equal(t, fx.session.ID, rec.SessionID)
	assert.GreaterOrEqual(t, rec.TrustScore, 0.6)
	require.NotNil(t, rec.Factors.Location)
	assert.True(t, rec.Factors.Location.Pass)

	assert.Equal(t, 1, fx.repo.Count())
	got, err := fx.registry.Get(fx.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.PresentCount)
}

func TestValidateStructuralFailures(t *testing.T) {
	fx := newValidatorFixture(t, Config{})

	_, err := fx.validator.Validate(context.Background(), Evidence{TokenPayload: fx.payload})
	assert.Equal(t, KindBadEvidence, KindOf(err))

	_, err = fx.validator.Validate(context.Background(), Evidence{SubjectID: "stu-1"})
	assert.Equal(t, KindBadEvidence, KindOf(err))

	_, err = fx.validator.Validate(context.Background(), Evidence{SubjectID: "stu-1", TokenPayload: "%%%"})
	assert.Equal(t, KindBadEvidence, KindOf(err))

	assert.Zero(t, fx.repo.Count(), "structural failures leave no record")
}

func TestValidateUnknownSession(t *testing.T) {
	fx := newValidatorFixture(t, Config{})

	payload := base64.RawURLEncoding.EncodeToString([]byte("no-such-session.1.ff"))
	_, err := fx.validator.Validate(context.Background(), Evidence{SubjectID: "stu-1", TokenPayload: payload})
	assert.Equal(t, KindSessionNotFound, KindOf(err))
}

func TestValidateTerminalSession(t *testing.T) {
	fx := newValidatorFixture(t, Config{})

	_, err := fx.registry.Stop(context.Background(), fx.session.ID, "prof-1")
	require.NoError(t, err)

	_, err = fx.validator.Validate(context.Background(), strongEvidence(fx, "stu-1"))
	assert.Equal(t, KindSessionTerminal, KindOf(err))
}

func TestValidateExpiredToken(t *testing.T) {
	fx := newValidatorFixture(t, Config{})

	fx.validator.now = func() time.Time { return time.Now().Add(3 * time.Hour) }
	_, err := fx.validator.Validate(context.Background(), strongEvidence(fx, "stu-1"))
	assert.Equal(t, KindTokenExpired, KindOf(err))
}

func TestValidateSignatureMismatch(t *testing.T) {
	fx := newValidatorFixture(t, Config{})

	forged := base64.RawURLEncoding.EncodeToString([]byte(fx.session.ID + ".1.00ff"))
	_, err := fx.validator.Validate(context.Background(), Evidence{SubjectID: "stu-1", TokenPayload: forged})
	assert.Equal(t, KindSignatureMismatch, KindOf(err))
}

func TestValidateDuplicateSubject(t *testing.T) {
	fx := newValidatorFixture(t, Config{RejectFloor: 0.2})

	_, err := fx.validator.Validate(context.Background(), strongEvidence(fx, "stu-1"))
	require.NoError(t, err)

	_, err = fx.validator.Validate(context.Background(), strongEvidence(fx, "stu-1"))
	assert.Equal(t, KindAlreadyRecorded, KindOf(err))
	assert.Equal(t, 1, fx.repo.Count())

	got, _ := fx.registry.Get(fx.session.ID)
	assert.Equal(t, 1, got.PresentCount, "replay does not double count")
}

func TestValidateSuspiciousBandQueuesReview(t *testing.T) {
	fx := newValidatorFixture(t, Config{RejectFloor: 0.2})

	// Liveness and network pass, location fails hard: trust lands between
	// the floor and the accept threshold.
	ssid := "campus-wifi"
	ev := Evidence{
		TokenPayload:     fx.payload,
		SubjectID:        "stu-1",
		LivenessAsserted: true,
		Location:         &LocationReading{Location: evidence.Location{Lat: 13.05, Lng: 77.60}, AccuracyM: 5},
		NetworkSSID:      &ssid,
	}
	rec, err := fx.validator.Validate(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, StatusSuspicious, rec.Status)
	assert.Less(t, rec.TrustScore, 0.6)
	assert.GreaterOrEqual(t, rec.TrustScore, 0.2)

	got, _ := fx.registry.Get(fx.session.ID)
	assert.Zero(t, got.PresentCount, "suspicious records do not count as present")

	msgs, err := fx.reviews.Consume(context.Background())
	require.NoError(t, err)
	select {
	case msg := <-msgs:
		assert.Equal(t, queue.TypeScanSuspicious, msg.Type)
		var rm ReviewMessage
		require.NoError(t, json.Unmarshal(msg.Body, &rm))
		assert.Equal(t, rec.ID, rm.RecordID)
		assert.Contains(t, rm.Reason, "location")
	case <-time.After(time.Second):
		t.Fatal("no review message published")
	}
}

func TestValidateRejectsBelowFloor(t *testing.T) {
	fx := newValidatorFixture(t, Config{RejectFloor: 0.2})

	// Only liveness collected, and it fails.
	_, err := fx.validator.Validate(context.Background(), Evidence{
		TokenPayload: fx.payload,
		SubjectID:    "stu-1",
	})
	assert.Equal(t, KindEvidenceRejected, KindOf(err))
	assert.Zero(t, fx.repo.Count(), "rejected scans leave no record")
}

func TestValidateLateAfterGrace(t *testing.T) {
	fx := newValidatorFixture(t, Config{RejectFloor: 0.2, LateGrace: 10 * time.Minute})

	fx.validator.now = func() time.Time { return fx.session.CreatedAt.Add(30 * time.Minute) }
	rec, err := fx.validator.Validate(context.Background(), strongEvidence(fx, "stu-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusLate, rec.Status)

	got, _ := fx.registry.Get(fx.session.ID)
	assert.Equal(t, 1, got.PresentCount, "late still counts as present")
}

func TestValidateNetworkMismatchLowersTrust(t *testing.T) {
	fx := newValidatorFixture(t, Config{RejectFloor: 0.2})

	match, err := fx.validator.Validate(context.Background(), strongEvidence(fx, "stu-1"))
	require.NoError(t, err)

	wrong := "coffee-shop"
	ev := strongEvidence(fx, "stu-2")
	ev.NetworkSSID = &wrong
	mismatch, err := fx.validator.Validate(context.Background(), ev)
	require.NoError(t, err)

	assert.Less(t, mismatch.TrustScore, match.TrustScore)
	require.NotNil(t, mismatch.Factors.Network)
	assert.False(t, mismatch.Factors.Network.Pass)
}

func TestValidateConcurrentSameSubject(t *testing.T) {
	fx := newValidatorFixture(t, Config{RejectFloor: 0.2})

	const attempts = 16
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = fx.validator.Validate(context.Background(), strongEvidence(fx, "stu-1"))
		}(i)
	}
	wg.Wait()

	var accepted, duplicates int
	for _, err := range results {
		switch {
		case err == nil:
			accepted++
		case KindOf(err) == KindAlreadyRecorded:
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, attempts-1, duplicates)
	assert.Equal(t, 1, fx.repo.Count())

	got, _ := fx.registry.Get(fx.session.ID)
	assert.Equal(t, 1, got.PresentCount)
}
