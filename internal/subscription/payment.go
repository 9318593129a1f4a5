package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/legallyup/backend/internal/metrics"
	"github.com/legallyup/backend/internal/model"
	"github.com/legallyup/backend/internal/queue"
	"github.com/legallyup/backend/internal/repository"
)

const (
	maxMethodLen = 32
	// FreeMethod is stored on the zero-amount payment written when a
	// user selects the free plan.
	FreeMethod = "none"
)

var maxAmount = decimal.RequireFromString("99999999.99")

// PaymentRequest is a payment reported by the checkout flow.
type PaymentRequest struct {
	UserID uint64
	Plan   model.PlanTier
	Amount decimal.Decimal
	Method string
}

// Receipt is returned once a payment and its plan change are committed.
type Receipt struct {
	PaymentID     uint64
	TransactionID string
	PreviousPlan  model.PlanTier
	Plan          model.PlanTier
	Expiry        *time.Time
}

func (r PaymentRequest) validate(op string) (PaymentRequest, error) {
	plan, ok := model.ParsePlanTier(string(r.Plan))
	if !ok || !plan.IsPaid() {
		return r, invalid(op, ErrInvalidPlan, "plan must be pro or attorney")
	}
	r.Plan = plan
	if !r.Amount.IsPositive() || r.Amount.GreaterThan(maxAmount) {
		return r, invalid(op, ErrInvalidAmount, "amount must be a positive number")
	}
	if !r.Amount.Equal(r.Amount.Round(2)) {
		return r, invalid(op, ErrInvalidAmount, "amount has more than two decimal places")
	}
	r.Method = strings.TrimSpace(r.Method)
	if r.Method == "" || len(r.Method) > maxMethodLen {
		return r, invalid(op, ErrInvalidMethod, "payment_method is required")
	}
	return r, nil
}

// RecordPayment appends a successful payment and moves the user to the
// paid plan in one transaction.  Paying again for the current paid
// plan renews it: the window restarts at the new payment date.
func (s *Service) RecordPayment(ctx context.Context, req PaymentRequest) (Receipt, error) {
	const op = "record_payment"
	req, err := req.validate(op)
	if err != nil {
		return Receipt{}, err
	}

	p := model.Payment{
		UserID:        req.UserID,
		Plan:          req.Plan,
		Amount:        req.Amount,
		PaymentMethod: req.Method,
		Status:        model.PaymentSuccess,
		TransactionID: s.newTxnID(),
		PaymentDate:   s.clock(),
	}
	pc, err := s.recordTx(ctx, op, &p)
	if err != nil {
		return Receipt{}, err
	}

	expiry := s.expiryOf(p.PaymentDate)
	metrics.PaymentsTotal.WithLabelValues(string(p.Plan)).Inc()
	metrics.PlanChangesTotal.WithLabelValues(string(pc.Reason)).Inc()
	s.log.Info().
		Uint64("user_id", p.UserID).
		Str("transaction_id", p.TransactionID).
		Str("plan", string(p.Plan)).
		Str("amount", p.Amount.StringFixed(2)).
		Msg("payment recorded")
	s.publish(ctx, queue.Envelope{
		Type: queue.TypePaymentRecorded,
		PaymentRecorded: &queue.PaymentRecordedEvent{
			UserID:        p.UserID,
			PaymentID:     p.ID,
			TransactionID: p.TransactionID,
			Plan:          string(p.Plan),
			Amount:        p.Amount.StringFixed(2),
			ExpiresAt:     expiry.Format(time.RFC3339),
		},
	})
	return Receipt{
		PaymentID:     p.ID,
		TransactionID: p.TransactionID,
		PreviousPlan:  pc.OldPlan,
		Plan:          p.Plan,
		Expiry:        &expiry,
	}, nil
}

// SelectPlan handles an explicit plan choice.  Paid tiers must go
// through RecordPayment.  Choosing free is recorded as a zero-amount
// payment so the user's history shows the downgrade, and is rejected
// when the user is already on free.
func (s *Service) SelectPlan(ctx context.Context, userID uint64, plan model.PlanTier) (Receipt, error) {
	const op = "select_plan"
	tier, ok := model.ParsePlanTier(string(plan))
	if !ok {
		return Receipt{}, invalid(op, ErrInvalidPlan, fmt.Sprintf("unknown plan %q", plan))
	}
	if tier.IsPaid() {
		return Receipt{}, invalid(op, ErrInvalidPlan, "paid plans are selected by processing a payment")
	}

	p := model.Payment{
		UserID:        userID,
		Plan:          model.PlanFree,
		Amount:        decimal.Zero,
		PaymentMethod: FreeMethod,
		Status:        model.PaymentSuccess,
		TransactionID: s.newTxnID(),
		PaymentDate:   s.clock(),
	}
	pc, err := s.recordTx(ctx, op, &p)
	if err != nil {
		return Receipt{}, err
	}

	metrics.PlanChangesTotal.WithLabelValues(string(pc.Reason)).Inc()
	s.log.Info().
		Uint64("user_id", userID).
		Str("old_plan", string(pc.OldPlan)).
		Msg("user selected free plan")
	s.publish(ctx, queue.Envelope{
		Type: queue.TypePlanChanged,
		PlanChanged: &queue.PlanChangedEvent{
			UserID:    userID,
			OldPlan:   string(pc.OldPlan),
			NewPlan:   string(pc.NewPlan),
			Reason:    string(pc.Reason),
			ChangedAt: pc.ChangedAt.Format(time.RFC3339),
		},
	})
	return Receipt{
		PaymentID:     p.ID,
		TransactionID: p.TransactionID,
		PreviousPlan:  pc.OldPlan,
		Plan:          model.PlanFree,
	}, nil
}

// recordTx inserts p and performs the matching transition.  A free
// payment is a user request; a paid one is tied to its payment id.
func (s *Service) recordTx(ctx context.Context, op string, p *model.Payment) (model.PlanChange, error) {
	var pc model.PlanChange
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		// Check the transition before writing anything so a rejected
		// change leaves no payment row behind on any driver.
		current, err := s.users.GetPlanTx(ctx, tx, p.UserID)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(op, ErrUserNotFound)
		}
		if err != nil {
			return err
		}
		if current == model.PlanFree && p.Plan == model.PlanFree {
			return conflict(op, ErrPlanUnchanged, "user is already on the free plan")
		}

		if err := s.payments.CreateTx(ctx, tx, p); err != nil {
			if errors.Is(err, repository.ErrDuplicateTransaction) {
				return conflict(op, ErrDuplicatePayment, "transaction id already recorded")
			}
			return err
		}
		c := Change{UserID: p.UserID, NewPlan: p.Plan}
		if p.Plan.IsPaid() {
			id := p.ID
			c.PaymentID = &id
		} else {
			c.Reason = model.ReasonUserRequest
		}
		pc, err = s.TransitionTx(ctx, tx, c)
		return err
	})
	if err != nil {
		return model.PlanChange{}, upstream(op, err)
	}
	return pc, nil
}

// PaymentHistory lists a user's payments, newest first.
func (s *Service) PaymentHistory(ctx context.Context, userID uint64) ([]model.Payment, error) {
	const op = "payment_history"
	if err := s.ensureUser(ctx, op, userID); err != nil {
		return nil, err
	}
	out, err := s.payments.ListByUser(ctx, userID)
	if err != nil {
		return nil, upstream(op, err)
	}
	return out, nil
}

// PlanHistory returns the audit ledger of a user in write order.
func (s *Service) PlanHistory(ctx context.Context, userID uint64) ([]model.PlanChange, error) {
	const op = "plan_history"
	if err := s.ensureUser(ctx, op, userID); err != nil {
		return nil, err
	}
	out, err := s.changes.ListByUser(ctx, userID)
	if err != nil {
		return nil, upstream(op, err)
	}
	return out, nil
}

func (s *Service) ensureUser(ctx context.Context, op string, userID uint64) error {
	_, err := s.users.GetPlan(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(op, ErrUserNotFound)
	}
	if err != nil {
		return upstream(op, err)
	}
	return nil
}
