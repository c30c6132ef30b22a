package session

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"

	"github.com/Bala333sr/IntelliAttend-sub000/internal/evidence"
)

// Repository persists session state in Postgres and reads the externally
// maintained classes roster. It implements both Store and ClassDirectory.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertSession writes a new session row.
func (r *Repository) InsertSession(ctx context.Context, s Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, class_ref, issuer_ref, status, created_at, window_end, current_sequence, enrolled_count, present_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, s.ID, s.ClassRef, s.IssuerRef, s.Status, s.CreatedAt, s.WindowEnd, int64(s.CurrentSequence), s.EnrolledCount, s.PresentCount)
	return err
}

// UpdateSessionStatus records a lifecycle transition.
func (r *Repository) UpdateSessionStatus(ctx context.Context, id string, status Status) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET status = $2 WHERE id = $1`, id, status)
	return err
}

// SaveToken appends to the token ledger, advances the stored sequence and
// prunes rows that fell out of the retained window.
func (r *Repository) SaveToken(ctx context.Context, tok RotatedToken, keep int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_tokens (session_id, sequence, issued_at, valid_until, signature)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (session_id, sequence) DO NOTHING
	`, tok.SessionID, int64(tok.Sequence), tok.IssuedAt, tok.ValidUntil, hex.EncodeToString(tok.Signature)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET current_sequence = $2 WHERE id = $1 AND current_sequence < $2
	`, tok.SessionID, int64(tok.Sequence)); err != nil {
		return err
	}
	if keep > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM session_tokens WHERE session_id = $1 AND sequence <= $2 - $3
		`, tok.SessionID, int64(tok.Sequence), keep); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// IncrementPresent bumps the aggregate count.
func (r *Repository) IncrementPresent(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET present_count = present_count + 1 WHERE id = $1`, id)
	return err
}

// GetClass reads the roster snapshot for a class. Unknown classes return a
// bare ClassInfo so sessions can still run without geo or network factors.
func (r *Repository) GetClass(ctx context.Context, ref string) (ClassInfo, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT room_lat, room_lng, COALESCE(network_ssid, ''), enrolled_count
		FROM classes WHERE class_ref = $1
	`, ref)
	var (
		lat, lng sql.NullFloat64
		ssid     string
		enrolled int
	)
	if err := row.Scan(&lat, &lng, &ssid, &enrolled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ClassInfo{Ref: ref}, nil
		}
		return ClassInfo{}, err
	}
	info := ClassInfo{Ref: ref, NetworkSSID: ssid, EnrolledCount: enrolled}
	if lat.Valid && lng.Valid {
		info.Room = &evidence.Location{Lat: lat.Float64, Lng: lng.Float64}
	}
	return info, nil
}
