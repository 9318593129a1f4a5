package subscription

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/legallyup/backend/internal/metrics"
	"github.com/legallyup/backend/internal/model"
	"github.com/legallyup/backend/internal/queue"
)

// Entitlement is the derived right to unmetered usage.
type Entitlement struct {
	IsPaid bool
	Plan   model.PlanTier
	Expiry *time.Time
}

var freeEntitlement = Entitlement{Plan: model.PlanFree}

// ReconcileResult is the outcome of one reconcile pass.  Change is set
// only when this call wrote the downgrade.
type ReconcileResult struct {
	Entitlement Entitlement
	Change      *model.PlanChange
}

// Evaluate returns a user's effective entitlement.  A paid plan with no
// backing payment, or whose last payment is older than the period, is
// downgraded to free as part of the call (see Reconcile).
func (s *Service) Evaluate(ctx context.Context, userID uint64) (Entitlement, error) {
	res, err := s.Reconcile(ctx, userID)
	if err != nil {
		return Entitlement{}, err
	}
	return res.Entitlement, nil
}

// Reconcile brings users.plan in line with payment history and
// reports the resulting entitlement.  It is idempotent: once a user is
// consistent, further calls write nothing.
//
//   - free users are returned as is, payments are not read;
//   - a paid plan without any successful paid payment drops to free
//     with reason system;
//   - a paid plan whose latest payment is at least Period old drops to
//     free with reason expiration.
func (s *Service) Reconcile(ctx context.Context, userID uint64) (ReconcileResult, error) {
	const op = "reconcile"
	plan, err := s.users.GetPlan(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return ReconcileResult{}, notFound(op, ErrUserNotFound)
	}
	if err != nil {
		return ReconcileResult{}, upstream(op, err)
	}
	if plan == model.PlanFree {
		return ReconcileResult{Entitlement: freeEntitlement}, nil
	}

	latest, err := s.payments.LatestPaidSuccess(ctx, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return s.lapse(ctx, userID, plan, model.ReasonSystem)
	case err != nil:
		return ReconcileResult{}, upstream(op, err)
	}

	expiry := s.expiryOf(latest.PaymentDate)
	if !s.clock().Before(expiry) {
		return s.lapse(ctx, userID, plan, model.ReasonExpiration)
	}
	return ReconcileResult{Entitlement: Entitlement{IsPaid: true, Plan: latest.Plan, Expiry: &expiry}}, nil
}

func (s *Service) lapse(ctx context.Context, userID uint64, from model.PlanTier, reason model.ChangeReason) (ReconcileResult, error) {
	var (
		pc      model.PlanChange
		changed bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		pc, changed, err = s.lapseTx(ctx, tx, userID, from, reason)
		return err
	})
	if err != nil {
		return ReconcileResult{}, upstream("reconcile", err)
	}
	if !changed {
		// Someone else moved the plan between our read and the update:
		// a concurrent reconcile, or a payment that renewed it.
		// Evaluate again against the new state.
		return s.reread(ctx, userID)
	}

	metrics.PlanChangesTotal.WithLabelValues(string(reason)).Inc()
	s.log.Info().
		Uint64("user_id", userID).
		Str("old_plan", string(from)).
		Str("reason", string(reason)).
		Msg("plan downgraded to free")
	s.publish(ctx, queue.Envelope{
		Type: queue.TypePlanChanged,
		PlanChanged: &queue.PlanChangedEvent{
			UserID:    userID,
			OldPlan:   string(from),
			NewPlan:   string(model.PlanFree),
			Reason:    string(reason),
			ChangedAt: pc.ChangedAt.Format(time.RFC3339),
		},
	})
	return ReconcileResult{Entitlement: freeEntitlement, Change: &pc}, nil
}

// reread evaluates without healing.  It is used after losing a
// downgrade race, so it never recurses into another write.
func (s *Service) reread(ctx context.Context, userID uint64) (ReconcileResult, error) {
	const op = "reconcile"
	plan, err := s.users.GetPlan(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return ReconcileResult{}, notFound(op, ErrUserNotFound)
	}
	if err != nil {
		return ReconcileResult{}, upstream(op, err)
	}
	if plan == model.PlanFree {
		return ReconcileResult{Entitlement: freeEntitlement}, nil
	}
	latest, err := s.payments.LatestPaidSuccess(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ReconcileResult{Entitlement: freeEntitlement}, nil
		}
		return ReconcileResult{}, upstream(op, err)
	}
	expiry := s.expiryOf(latest.PaymentDate)
	if !s.clock().Before(expiry) {
		return ReconcileResult{Entitlement: freeEntitlement}, nil
	}
	return ReconcileResult{Entitlement: Entitlement{IsPaid: true, Plan: latest.Plan, Expiry: &expiry}}, nil
}

// ReconcileAll runs Reconcile for every user whose stored plan is
// paid and returns how many were downgraded.  It stops at the first
// store error.
func (s *Service) ReconcileAll(ctx context.Context) (int, error) {
	ids, err := s.users.ListPaidIDs(ctx)
	if err != nil {
		return 0, upstream("reconcile_all", err)
	}
	n := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		res, err := s.Reconcile(ctx, id)
		if err != nil {
			if KindOf(err) == KindNotFound {
				continue
			}
			return n, err
		}
		if res.Change != nil {
			n++
		}
	}
	return n, nil
}

// Status is the subscription summary shown to a user.
type Status struct {
	IsPaid        bool
	Plan          model.PlanTier
	Expiry        *time.Time
	DaysRemaining int
}

// Status evaluates the user and adds whole days left until expiry.
func (s *Service) Status(ctx context.Context, userID uint64) (Status, error) {
	ent, err := s.Evaluate(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	st := Status{IsPaid: ent.IsPaid, Plan: ent.Plan, Expiry: ent.Expiry}
	if ent.Expiry != nil {
		if left := ent.Expiry.Sub(s.clock()); left > 0 {
			st.DaysRemaining = int(left / (24 * time.Hour))
		}
	}
	return st, nil
}
