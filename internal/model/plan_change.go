package model

import "time"

// PlanChange is one row of the append-only audit ledger.  Replaying
// a user's rows in changed_at order reconstructs users.plan.
type PlanChange struct {
	ID        uint64       `json:"id"`                   // plan_changes.id
	UserID    uint64       `json:"user_id"`              // plan_changes.user_id
	OldPlan   PlanTier     `json:"old_plan"`             // plan_changes.old_plan
	NewPlan   PlanTier     `json:"new_plan"`             // plan_changes.new_plan
	PaymentID *uint64      `json:"payment_id,omitempty"` // plan_changes.payment_id (nullable)
	Reason    ChangeReason `json:"reason"`               // plan_changes.reason
	ChangedAt time.Time    `json:"changed_at"`           // plan_changes.changed_at
}

// GenerationLog records one allowed document generation.  Only the
// per-day count matters to the quota gate.
type GenerationLog struct {
	ID           uint64    // document_generation_logs.id
	UserID       uint64    // document_generation_logs.user_id
	GeneratedAt  time.Time // document_generation_logs.generated_at
	DocumentType string    // document_generation_logs.document_type
}
