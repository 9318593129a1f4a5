package subscription

import (
	"github.com/shopspring/decimal"

	"github.com/legallyup/backend/internal/model"
)

// PlanInfo describes a tier for display.  DailyGenerations is nil for
// unmetered tiers.
type PlanInfo struct {
	Tier             model.PlanTier  `json:"tier"`
	Name             string          `json:"name"`
	MonthlyPrice     decimal.Decimal `json:"monthly_price"`
	DailyGenerations *int            `json:"daily_generations"`
	PeriodDays       int             `json:"period_days"`
}

// Catalogue lists the tiers in upgrade order.
func (s *Service) Catalogue() []PlanInfo {
	limit := s.cfg.FreeDailyLimit
	days := int(s.cfg.Period.Hours() / 24)
	return []PlanInfo{
		{Tier: model.PlanFree, Name: "Free", MonthlyPrice: decimal.Zero, DailyGenerations: &limit},
		{Tier: model.PlanPro, Name: "Pro", MonthlyPrice: s.cfg.ProPrice, PeriodDays: days},
		{Tier: model.PlanAttorney, Name: "Attorney", MonthlyPrice: s.cfg.AttorneyPrice, PeriodDays: days},
	}
}
