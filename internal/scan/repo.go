package scan

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Bala333sr/IntelliAttend-sub000/internal/evidence"
)

// Repository persists scan data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a new record. The unique (session_id, subject_id) index plus
// ON CONFLICT DO NOTHING makes the duplicate check and the write one atomic
// statement; zero rows affected means a row already existed.
func (r *Repository) Insert(ctx context.Context, rec Record) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, session_id, subject_id, device_ref, recorded_at, status, trust_score, liveness_conf, location_conf, proximity_conf, network_conf)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (session_id, subject_id) DO NOTHING
	`, rec.ID, rec.SessionID, rec.SubjectID, rec.DeviceRef, rec.RecordedAt, rec.Status, rec.TrustScore,
		conf(rec.Factors.Liveness), conf(rec.Factors.Location), conf(rec.Factors.Proximity), conf(rec.Factors.Network))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyRecorded
	}
	return nil
}

// Exists reports whether the pair already has a record.
func (r *Repository) Exists(ctx context.Context, sessionID, subjectID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM attendance_records WHERE session_id = $1 AND subject_id = $2
	`, sessionID, subjectID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// GetRecord returns a single record by id.
func (r *Repository) GetRecord(ctx context.Context, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, subject_id, device_ref, recorded_at, status, trust_score, liveness_conf, location_conf, proximity_conf, network_conf
		FROM attendance_records WHERE id = $1
	`, id)
	var (
		rec            Record
		lv, lc, px, nw sql.NullFloat64
	)
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.SubjectID, &rec.DeviceRef, &rec.RecordedAt, &rec.Status, &rec.TrustScore, &lv, &lc, &px, &nw); err != nil {
		return Record{}, err
	}
	rec.Factors = FactorBreakdown{
		Liveness:  factorFrom(lv),
		Location:  factorFrom(lc),
		Proximity: factorFrom(px),
		Network:   factorFrom(nw),
	}
	return rec, nil
}

// ListRecords returns a session's records, newest first.
func (r *Repository) ListRecords(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, subject_id, device_ref, recorded_at, status, trust_score, liveness_conf, location_conf, proximity_conf, network_conf
		FROM attendance_records WHERE session_id = $1
		ORDER BY recorded_at DESC LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var (
			rec            Record
			lv, lc, px, nw sql.NullFloat64
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.SubjectID, &rec.DeviceRef, &rec.RecordedAt, &rec.Status, &rec.TrustScore, &lv, &lc, &px, &nw); err != nil {
			return nil, err
		}
		rec.Factors = FactorBreakdown{
			Liveness:  factorFrom(lv),
			Location:  factorFrom(lc),
			Proximity: factorFrom(px),
			Network:   factorFrom(nw),
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// InsertReviewItem queues a suspicious record for review.
func (r *Repository) InsertReviewItem(ctx context.Context, item ReviewItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO review_items (id, record_id, session_id, subject_id, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, item.ID, item.RecordID, item.SessionID, item.SubjectID, item.Reason, item.CreatedAt)
	return err
}

// UpsertDevice ensures a scanner device record exists.
func (r *Repository) UpsertDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return errors.New("device id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (device_id)
		VALUES ($1)
		ON CONFLICT (device_id) DO NOTHING
	`, deviceID)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (device_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, deviceID, token, expiresAt)
	return err
}

func conf(f *evidence.Factor) *float64 {
	if f == nil {
		return nil
	}
	c := f.Confidence
	return &c
}

func factorFrom(v sql.NullFloat64) *evidence.Factor {
	if !v.Valid {
		return nil
	}
	return &evidence.Factor{Pass: v.Float64 > 0, Confidence: v.Float64}
}
