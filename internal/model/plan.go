package model

import "strings"

// PlanTier is the unit of entitlement stored in users.plan.
type PlanTier string

const (
	PlanFree     PlanTier = "free"
	PlanPro      PlanTier = "pro"
	PlanAttorney PlanTier = "attorney"
)

// ParsePlanTier normalizes s and reports whether it names a known tier.
func ParsePlanTier(s string) (PlanTier, bool) {
	p := PlanTier(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PlanFree, PlanPro, PlanAttorney:
		return p, true
	}
	return "", false
}

// IsPaid reports whether the tier requires a payment to hold.
func (p PlanTier) IsPaid() bool { return p == PlanPro || p == PlanAttorney }

func (p PlanTier) String() string { return string(p) }

// ChangeReason explains why a plan_changes row was written.
type ChangeReason string

const (
	ReasonPayment     ChangeReason = "payment"
	ReasonSystem      ChangeReason = "system"
	ReasonExpiration  ChangeReason = "expiration"
	ReasonUserRequest ChangeReason = "user_request"
)

// PaymentStatus is the outcome recorded on a payments row.
type PaymentStatus string

const (
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)
