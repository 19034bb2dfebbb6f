package controllers

import (
	"net/http"

	"github.com/lumora-ai/lumora-backend/api/responses"
	"github.com/lumora-ai/lumora-backend/internal/plans"
	"github.com/lumora-ai/lumora-backend/pkg/logger"
)

type planResponse struct {
	Code           string   `json:"code"`
	Name           string   `json:"name"`
	MonthlyCredits int64    `json:"monthlyCredits"`
	PriceAmount    string   `json:"priceAmount"`
	CurrencyCode   string   `json:"currencyCode"`
	Features       []string `json:"features"`
}

type effectivePlanResponse struct {
	Code           string         `json:"code"`
	Name           string         `json:"name"`
	MonthlyCredits int64          `json:"monthlyCredits"`
	Features       []string       `json:"features"`
	RateLimits     map[string]int `json:"rateLimits"`
	Watermark      bool           `json:"watermark"`
}

// ListPlans returns the purchasable plan catalog with display pricing.
func ListPlans(svc plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		priced, err := svc.ListPricedPlans(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := make([]planResponse, 0, len(priced))
		for _, plan := range priced {
			resp = append(resp, planResponse{
				Code:           plan.Code,
				Name:           plan.Name,
				MonthlyCredits: plan.MonthlyCredits,
				PriceAmount:    plan.PriceAmount.StringFixed(2),
				CurrencyCode:   plan.CurrencyCode,
				Features:       plan.Features,
			})
		}
		responses.WriteSuccess(w, resp)
	}
}

// GetEffectivePlan resolves the caller's current plan entitlements.
func GetEffectivePlan(svc plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := actingUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		plan, err := svc.GetEffectivePlan(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, effectivePlanResponse{
			Code:           plan.Code,
			Name:           plan.Name,
			MonthlyCredits: plan.MonthlyCredits,
			Features:       plan.Features,
			RateLimits:     plan.RateLimits,
			Watermark:      plan.Watermark,
		})
	}
}
