package subscription

import (
	"context"
	"database/sql"
	"strings"

	"github.com/legallyup/backend/internal/metrics"
)

// DeniedMessage is the reason returned when a free user is over quota.
const DeniedMessage = "Daily document generation limit reached for free plan. Upgrade to generate more documents!"

// DefaultDocumentType is logged when the caller does not name one.
const DefaultDocumentType = "generic"

const maxDocumentTypeLen = 64

// Decision is the verdict of the quota gate.  Reason is empty when
// Allowed is true.
type Decision struct {
	Allowed bool
	Reason  string
}

// TryConsume decides whether userID may generate one document now and,
// if so, records the generation.  Paid users are unmetered.  Free
// users get Config.FreeDailyLimit generations per UTC calendar day;
// a denial writes nothing.
func (s *Service) TryConsume(ctx context.Context, userID uint64, docType string) (Decision, error) {
	const op = "try_consume"
	docType = strings.TrimSpace(docType)
	if docType == "" {
		docType = DefaultDocumentType
	}
	if len(docType) > maxDocumentTypeLen {
		return Decision{}, invalid(op, ErrInvalidDocument, "document_type is too long")
	}

	ent, err := s.Evaluate(ctx, userID)
	if err != nil {
		return Decision{}, err
	}

	now := s.clock()
	allowed := true
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if ent.IsPaid {
			return s.logs.CreateTx(ctx, tx, userID, docType, now)
		}
		from, to := dayBounds(now)
		var err error
		allowed, err = s.logs.InsertIfUnderLimitTx(ctx, tx, userID, docType, now, from, to, s.cfg.FreeDailyLimit)
		return err
	})
	if err != nil {
		return Decision{}, upstream(op, err)
	}

	if !allowed {
		metrics.GenerationsTotal.WithLabelValues("denied", string(ent.Plan)).Inc()
		s.log.Info().Uint64("user_id", userID).Str("document_type", docType).Msg("generation denied by daily quota")
		return Decision{Reason: DeniedMessage}, nil
	}
	metrics.GenerationsTotal.WithLabelValues("allowed", string(ent.Plan)).Inc()
	return Decision{Allowed: true}, nil
}

// QuotaStatus reports today's usage.  DailyLimit and Remaining are nil
// for unmetered plans.
type QuotaStatus struct {
	CanGenerate      bool
	DailyLimit       *int
	GenerationsToday int
	Remaining        *int
}

// Quota reports usage for the current UTC day without consuming.
func (s *Service) Quota(ctx context.Context, userID uint64) (QuotaStatus, error) {
	const op = "quota"
	ent, err := s.Evaluate(ctx, userID)
	if err != nil {
		return QuotaStatus{}, err
	}
	from, to := dayBounds(s.clock())
	used, err := s.logs.CountBetween(ctx, userID, from, to)
	if err != nil {
		return QuotaStatus{}, upstream(op, err)
	}
	if ent.IsPaid {
		return QuotaStatus{CanGenerate: true, GenerationsToday: used}, nil
	}
	limit := s.cfg.FreeDailyLimit
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return QuotaStatus{
		CanGenerate:      remaining > 0,
		DailyLimit:       &limit,
		GenerationsToday: used,
		Remaining:        &remaining,
	}, nil
}
