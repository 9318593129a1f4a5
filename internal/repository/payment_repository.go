package repository

import (
	"context"
	"database/sql"

	"github.com/legallyup/backend/internal/model"
)

// PaymentRepo appends to and reads from the payments table.  Rows are
// immutable: there is no update or delete path.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions.
func (r *PaymentRepo) DB() *sql.DB { return r.db }

const paymentColumns = "id, user_id, plan, amount, payment_method, status, transaction_id, payment_date"

func scanPayment(row interface{ Scan(...any) error }) (model.Payment, error) {
	var p model.Payment
	err := row.Scan(&p.ID, &p.UserID, &p.Plan, &p.Amount, &p.PaymentMethod, &p.Status, &p.TransactionID, &p.PaymentDate)
	return p, err
}

// CreateTx inserts a payment within the scope of an existing
// transaction and populates the generated ID on p.  A reused
// transaction id yields ErrDuplicateTransaction.  The caller must
// commit or rollback the transaction.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	const q = `INSERT INTO payments (user_id, plan, amount, payment_method, status, transaction_id, payment_date)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		p.UserID, p.Plan, p.Amount.StringFixed(2), p.PaymentMethod, p.Status, p.TransactionID, p.PaymentDate.UTC())
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateTransaction
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// LatestPaidSuccess returns the most recent successful payment for a
// non-free plan.  When the user has none, sql.ErrNoRows is returned.
func (r *PaymentRepo) LatestPaidSuccess(ctx context.Context, userID uint64) (model.Payment, error) {
	const q = `SELECT ` + paymentColumns + `
               FROM payments
               WHERE user_id = ? AND status = ? AND plan <> ?
               ORDER BY payment_date DESC, id DESC
               LIMIT 1`
	return scanPayment(r.db.QueryRowContext(ctx, q, userID, model.PaymentSuccess, model.PlanFree))
}

// ListByUser returns every payment of a user, newest first.
func (r *PaymentRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Payment, error) {
	const q = `SELECT ` + paymentColumns + `
               FROM payments
               WHERE user_id = ?
               ORDER BY payment_date DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
