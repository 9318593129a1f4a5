package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/legallyup/backend/internal/model"
	"github.com/legallyup/backend/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,username,email,password_hash,role,plan,is_active,created_at,updated_at"

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Plan, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// Create inserts a user on the free plan and returns its ID.
func (r *UserRepo) Create(ctx context.Context, username, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, role, plan) VALUES (?,?,?,?,?)",
		strings.TrimSpace(username), email, hash, role, model.PlanFree)
	if err != nil {
		if isDuplicateKey(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// GetPlan returns the stored plan of a user, or sql.ErrNoRows.
func (r *UserRepo) GetPlan(ctx context.Context, id uint64) (model.PlanTier, error) {
	var p model.PlanTier
	err := r.DB.QueryRowContext(ctx, "SELECT plan FROM users WHERE id=? LIMIT 1", id).Scan(&p)
	return p, err
}

// GetPlanTx is GetPlan inside a transaction.
func (r *UserRepo) GetPlanTx(ctx context.Context, tx *sql.Tx, id uint64) (model.PlanTier, error) {
	var p model.PlanTier
	err := tx.QueryRowContext(ctx, "SELECT plan FROM users WHERE id=? LIMIT 1", id).Scan(&p)
	return p, err
}

// UpdatePlanIfTx sets users.plan to `to` only while it still equals
// `from`.  It reports whether a row was changed; false means another
// writer moved the plan first.
func (r *UserRepo) UpdatePlanIfTx(ctx context.Context, tx *sql.Tx, id uint64, from, to model.PlanTier, at time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE users SET plan=?, updated_at=? WHERE id=? AND plan=?",
		to, at, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DowngradeIfLapsedTx moves a user from `from` to free, but only while
// the plan is still `from` and no successful paid payment is dated
// after activeSince.  A payment that lands concurrently keeps the row
// out of the update, so a renewal can never be undone by a stale
// reconcile.
func (r *UserRepo) DowngradeIfLapsedTx(ctx context.Context, tx *sql.Tx, id uint64, from model.PlanTier, activeSince, at time.Time) (bool, error) {
	const q = `UPDATE users SET plan=?, updated_at=?
               WHERE id=? AND plan=?
                 AND NOT EXISTS (SELECT 1 FROM payments p
                                 WHERE p.user_id = users.id AND p.status = ? AND p.plan <> ? AND p.payment_date > ?)`
	res, err := tx.ExecContext(ctx, q,
		model.PlanFree, at, id, from,
		model.PaymentSuccess, model.PlanFree, activeSince.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdatePassword replaces the password hash of a user.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, password string, cost int) error {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET password_hash=? WHERE id=?", hash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListPaidIDs returns the ids of users whose stored plan is not free.
// The reconcile command walks this list.
func (r *UserRepo) ListPaidIDs(ctx context.Context) ([]uint64, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT id FROM users WHERE plan <> ? ORDER BY id", model.PlanFree)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
