package repository

import (
	"context"
	"database/sql"
	"time"
)

// GenerationLogRepo records document generations for quota accounting.
// All timestamps are UTC; a "day" is the half-open range [from, to).
type GenerationLogRepo struct {
	db *sql.DB
}

func NewGenerationLogRepo(db *sql.DB) *GenerationLogRepo { return &GenerationLogRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions.
func (r *GenerationLogRepo) DB() *sql.DB { return r.db }

// CreateTx writes a log row unconditionally.
func (r *GenerationLogRepo) CreateTx(ctx context.Context, tx *sql.Tx, userID uint64, docType string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO document_generation_logs (user_id, generated_at, document_type) VALUES (?, ?, ?)`,
		userID, at.UTC(), docType)
	return err
}

// InsertIfUnderLimitTx writes a log row only while the user has fewer
// than limit rows in [from, to).  Count and insert are one statement,
// so two requests cannot both slip under the limit.  It reports
// whether the row was written.
func (r *GenerationLogRepo) InsertIfUnderLimitTx(ctx context.Context, tx *sql.Tx, userID uint64, docType string, at, from, to time.Time, limit int) (bool, error) {
	const q = `INSERT INTO document_generation_logs (user_id, generated_at, document_type)
               SELECT ?, ?, ? FROM (SELECT 1 AS one) AS seed
               WHERE (SELECT COUNT(*) FROM document_generation_logs
                      WHERE user_id = ? AND generated_at >= ? AND generated_at < ?) < ?`
	res, err := tx.ExecContext(ctx, q,
		userID, at.UTC(), docType,
		userID, from.UTC(), to.UTC(), limit)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CountBetween counts a user's generations in [from, to).
func (r *GenerationLogRepo) CountBetween(ctx context.Context, userID uint64, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_generation_logs WHERE user_id = ? AND generated_at >= ? AND generated_at < ?`,
		userID, from.UTC(), to.UTC()).Scan(&n)
	return n, err
}
