package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is an immutable record of a payment attempt.  Rows are
// inserted once and never updated.  TransactionID is globally unique
// and doubles as the idempotency key for crediting a plan.
//
// Fields:
//  ID            – primary key identifier.
//  UserID        – paying user.
//  Plan          – tier the payment was made for (free for the
//                  zero-amount free selection).
//  Amount        – amount charged, two decimal places.
//  PaymentMethod – method reported by the client (card, paypal, ...).
//  Status        – success or failed.
//  TransactionID – unique transaction identifier.
//  PaymentDate   – when the payment was recorded (UTC).
type Payment struct {
	ID            uint64          `json:"id"`             // payments.id
	UserID        uint64          `json:"user_id"`        // payments.user_id
	Plan          PlanTier        `json:"plan"`           // payments.plan
	Amount        decimal.Decimal `json:"amount"`         // payments.amount
	PaymentMethod string          `json:"payment_method"` // payments.payment_method
	Status        PaymentStatus   `json:"status"`         // payments.status
	TransactionID string          `json:"transaction_id"` // payments.transaction_id
	PaymentDate   time.Time       `json:"payment_date"`   // payments.payment_date
}
