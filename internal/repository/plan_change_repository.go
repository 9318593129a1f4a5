package repository

import (
	"context"
	"database/sql"

	"github.com/legallyup/backend/internal/model"
)

// PlanChangeRepo is the append-only audit ledger of plan mutations.
type PlanChangeRepo struct {
	db *sql.DB
}

func NewPlanChangeRepo(db *sql.DB) *PlanChangeRepo { return &PlanChangeRepo{db: db} }

// CreateTx appends a ledger row inside tx and sets pc.ID.
func (r *PlanChangeRepo) CreateTx(ctx context.Context, tx *sql.Tx, pc *model.PlanChange) error {
	const q = `INSERT INTO plan_changes (user_id, old_plan, new_plan, payment_id, reason, changed_at)
               VALUES (?, ?, ?, ?, ?, ?)`
	var paymentID any
	if pc.PaymentID != nil {
		paymentID = *pc.PaymentID
	}
	res, err := tx.ExecContext(ctx, q, pc.UserID, pc.OldPlan, pc.NewPlan, paymentID, pc.Reason, pc.ChangedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	pc.ID = uint64(id)
	return nil
}

// ListByUser returns a user's ledger in the order it was written.
func (r *PlanChangeRepo) ListByUser(ctx context.Context, userID uint64) ([]model.PlanChange, error) {
	const q = `SELECT id, user_id, old_plan, new_plan, payment_id, reason, changed_at
               FROM plan_changes
               WHERE user_id = ?
               ORDER BY changed_at, id`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.PlanChange{}
	for rows.Next() {
		var (
			pc        model.PlanChange
			paymentID sql.NullInt64
		)
		if err := rows.Scan(&pc.ID, &pc.UserID, &pc.OldPlan, &pc.NewPlan, &paymentID, &pc.Reason, &pc.ChangedAt); err != nil {
			return nil, err
		}
		if paymentID.Valid {
			id := uint64(paymentID.Int64)
			pc.PaymentID = &id
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}
