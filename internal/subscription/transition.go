package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/legallyup/backend/internal/metrics"
	"github.com/legallyup/backend/internal/model"
)

// Change is a requested plan mutation.  Reason may be left empty: it
// then defaults to payment when PaymentID is set and system otherwise.
type Change struct {
	UserID    uint64
	NewPlan   model.PlanTier
	PaymentID *uint64
	Reason    model.ChangeReason
}

func (c Change) reason() model.ChangeReason {
	if c.Reason != "" {
		return c.Reason
	}
	if c.PaymentID != nil {
		return model.ReasonPayment
	}
	return model.ReasonSystem
}

// TransitionTx is the only path that writes users.plan on request.  It
// reads the current plan, moves it with a conditional update and
// appends the ledger row, all inside tx.
//
// A change to the plan the user already holds is rejected with
// ErrPlanUnchanged, except for a paid renewal: the same non-free tier
// backed by a new payment, which is recorded like any other change.
func (s *Service) TransitionTx(ctx context.Context, tx *sql.Tx, c Change) (model.PlanChange, error) {
	const op = "transition"
	if _, ok := model.ParsePlanTier(string(c.NewPlan)); !ok {
		return model.PlanChange{}, invalid(op, ErrInvalidPlan, fmt.Sprintf("unknown plan %q", c.NewPlan))
	}
	old, err := s.users.GetPlanTx(ctx, tx, c.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PlanChange{}, notFound(op, ErrUserNotFound)
	}
	if err != nil {
		return model.PlanChange{}, upstream(op, err)
	}
	renewal := c.PaymentID != nil && c.NewPlan.IsPaid()
	if old == c.NewPlan && !renewal {
		return model.PlanChange{}, conflict(op, ErrPlanUnchanged, fmt.Sprintf("user is already on the %s plan", old))
	}

	now := s.clock()
	moved, err := s.users.UpdatePlanIfTx(ctx, tx, c.UserID, old, c.NewPlan, now)
	if err != nil {
		return model.PlanChange{}, upstream(op, err)
	}
	if !moved {
		return model.PlanChange{}, conflict(op, ErrPlanMoved, "plan changed concurrently, retry")
	}
	pc := model.PlanChange{
		UserID:    c.UserID,
		OldPlan:   old,
		NewPlan:   c.NewPlan,
		PaymentID: c.PaymentID,
		Reason:    c.reason(),
		ChangedAt: now,
	}
	if err := s.changes.CreateTx(ctx, tx, &pc); err != nil {
		return model.PlanChange{}, upstream(op, err)
	}
	return pc, nil
}

// Transition runs TransitionTx in its own transaction, for callers
// that hold none.  Payments and plan selection call TransitionTx inside
// the transaction that also writes their payment row; expiry goes
// through the conditional lapse update instead.
func (s *Service) Transition(ctx context.Context, c Change) (model.PlanChange, error) {
	var pc model.PlanChange
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		pc, err = s.TransitionTx(ctx, tx, c)
		return err
	})
	if err != nil {
		return model.PlanChange{}, upstream("transition", err)
	}
	metrics.PlanChangesTotal.WithLabelValues(string(pc.Reason)).Inc()
	return pc, nil
}

// lapseTx downgrades a paid user whose entitlement has run out.  The
// update only applies while the plan is still `from` and no active
// payment exists, so of two concurrent reconcilers exactly one writes
// the ledger row; the other gets changed=false.
func (s *Service) lapseTx(ctx context.Context, tx *sql.Tx, userID uint64, from model.PlanTier, reason model.ChangeReason) (model.PlanChange, bool, error) {
	now := s.clock()
	activeSince := now.Add(-s.cfg.Period)
	changed, err := s.users.DowngradeIfLapsedTx(ctx, tx, userID, from, activeSince, now)
	if err != nil || !changed {
		return model.PlanChange{}, false, err
	}
	pc := model.PlanChange{
		UserID:    userID,
		OldPlan:   from,
		NewPlan:   model.PlanFree,
		Reason:    reason,
		ChangedAt: now,
	}
	if err := s.changes.CreateTx(ctx, tx, &pc); err != nil {
		return model.PlanChange{}, false, err
	}
	return pc, true, nil
}

// expiryOf returns when a payment made at paidAt stops entitling.
func (s *Service) expiryOf(paidAt time.Time) time.Time {
	return paidAt.UTC().Add(s.cfg.Period)
}
