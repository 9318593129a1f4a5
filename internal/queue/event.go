// Package queue defines message payloads exchanged over the message broker.
package queue

// NotificationsQueue is the durable queue every notification event is
// published to.  The worker consumes it and sends e-mail.
const NotificationsQueue = "notifications"

// Event types carried in Envelope.Type.
const (
	TypePaymentRecorded = "payment.recorded"
	TypePlanChanged     = "plan.changed"
	TypeOTPRequested    = "otp.requested"
)

// Envelope wraps every notification so a single queue can carry
// several event kinds.  Exactly one of the payload pointers is set,
// matching Type.
type Envelope struct {
	Type            string                `json:"type"`
	OccurredAt      string                `json:"occurred_at"`
	PaymentRecorded *PaymentRecordedEvent `json:"payment_recorded,omitempty"`
	PlanChanged     *PlanChangedEvent     `json:"plan_changed,omitempty"`
	OTPRequested    *OTPRequestedEvent    `json:"otp_requested,omitempty"`
}

// PaymentRecordedEvent is published after a payment and its plan
// change commit together.
type PaymentRecordedEvent struct {
	UserID        uint64 `json:"user_id"`
	PaymentID     uint64 `json:"payment_id"`
	TransactionID string `json:"transaction_id"`
	Plan          string `json:"plan"`
	Amount        string `json:"amount"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

// PlanChangedEvent is published for plan changes that the user did not
// directly ask for (expiry and system downgrades).
type PlanChangedEvent struct {
	UserID    uint64 `json:"user_id"`
	OldPlan   string `json:"old_plan"`
	NewPlan   string `json:"new_plan"`
	Reason    string `json:"reason"`
	ChangedAt string `json:"changed_at"`
}

// OTPRequestedEvent asks the notifier to deliver a one-time code.
type OTPRequestedEvent struct {
	Email     string `json:"email"`
	Purpose   string `json:"purpose"`
	Code      string `json:"code"`
	ExpiresAt string `json:"expires_at"`
}
