package handlers

import (
	"net/http"
	"strings"

	domain "github.com/rupeeplan/api/internal/domain"
	"github.com/rupeeplan/api/internal/platform/httpx"
	"github.com/rupeeplan/api/internal/services"
)

func (h *MeHandlers) listCalculations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.calculations == nil {
		writeServiceUnavailable(ctx, w, "calculation_service_unavailable", "calculation service is unavailable")
		return
	}

	identity, ok := requestIdentity(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	pagination, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.CalculationListFilter{
		UserRef:    identity.UID,
		Pagination: pagination,
	}
	if segment := parseSegmentParam(r); segment != nil {
		filter.Segment = segment
	}

	page, err := h.calculations.ListCalculations(ctx, filter)
	if err != nil {
		writeCalculationError(ctx, w, err)
		return
	}

	items := make([]calculationPayload, 0, len(page.Items))
	for _, calculation := range page.Items {
		items = append(items, buildCalculationPayload(calculation))
	}

	writeJSONResponse(w, http.StatusOK, calculationListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

type calculationListResponse struct {
	Items         []calculationPayload `json:"items"`
	NextPageToken string               `json:"nextPageToken,omitempty"`
}

type calculationPayload struct {
	ID        string                     `json:"id"`
	Segment   string                     `json:"segment"`
	Name      string                     `json:"name,omitempty"`
	Email     string                     `json:"email,omitempty"`
	Phone     string                     `json:"phone,omitempty"`
	Personal  *personalAssessmentPayload `json:"personal,omitempty"`
	Business  *businessAssessmentPayload `json:"business,omitempty"`
	CreatedAt string                     `json:"createdAt"`
}

type personalAssessmentPayload struct {
	GrossIncome        float64                  `json:"grossIncome"`
	TotalDeductions    float64                  `json:"totalDeductions"`
	TaxableIncome      float64                  `json:"taxableIncome"`
	TaxWithoutPlanning int64                    `json:"taxWithoutPlanning"`
	TaxAfterPlanning   int64                    `json:"taxAfterPlanning"`
	TotalSavings       int64                    `json:"totalSavings"`
	Breakdown          personalBreakdownPayload `json:"breakdown"`
}

type personalBreakdownPayload struct {
	Section80C       float64 `json:"section80C"`
	Section80D       float64 `json:"section80D"`
	NPS80CCD1B       float64 `json:"nps80CCD1B"`
	HomeLoanInterest float64 `json:"homeLoanInterest"`
}

type businessAssessmentPayload struct {
	BusinessType       string                   `json:"businessType"`
	Turnover           float64                  `json:"turnover"`
	NetProfit          float64                  `json:"netProfit"`
	TotalDeductions    float64                  `json:"totalDeductions"`
	TaxableProfit      float64                  `json:"taxableProfit"`
	TaxWithoutPlanning int64                    `json:"taxWithoutPlanning"`
	TaxAfterPlanning   int64                    `json:"taxAfterPlanning"`
	TotalSavings       int64                    `json:"totalSavings"`
	Breakdown          businessBreakdownPayload `json:"breakdown"`
}

type businessBreakdownPayload struct {
	Depreciation        float64 `json:"depreciation"`
	SalaryExpenses      float64 `json:"salaryExpenses"`
	RDExpenses          float64 `json:"rdExpenses"`
	RDWeightedDeduction float64 `json:"rdWeightedDeduction"`
}

func buildCalculationPayload(calculation domain.TaxCalculation) calculationPayload {
	payload := calculationPayload{
		ID:        calculation.ID,
		Segment:   string(calculation.Segment),
		Name:      calculation.Name,
		Email:     calculation.Email,
		Phone:     calculation.Phone,
		CreatedAt: formatTime(calculation.CreatedAt),
	}
	if calculation.Personal != nil {
		payload.Personal = buildPersonalAssessmentPayload(*calculation.Personal)
	}
	if calculation.Business != nil {
		payload.Business = buildBusinessAssessmentPayload(*calculation.Business)
	}
	return payload
}

func buildPersonalAssessmentPayload(assessment domain.PersonalTaxAssessment) *personalAssessmentPayload {
	return &personalAssessmentPayload{
		GrossIncome:        assessment.GrossIncome,
		TotalDeductions:    assessment.TotalDeductions,
		TaxableIncome:      assessment.TaxableIncome,
		TaxWithoutPlanning: assessment.TaxWithoutPlanning,
		TaxAfterPlanning:   assessment.TaxAfterPlanning,
		TotalSavings:       assessment.TotalSavings,
		Breakdown: personalBreakdownPayload{
			Section80C:       assessment.Breakdown.Section80C,
			Section80D:       assessment.Breakdown.Section80D,
			NPS80CCD1B:       assessment.Breakdown.NPS80CCD1B,
			HomeLoanInterest: assessment.Breakdown.HomeLoanInterest,
		},
	}
}

func buildBusinessAssessmentPayload(assessment domain.BusinessTaxAssessment) *businessAssessmentPayload {
	return &businessAssessmentPayload{
		BusinessType:       string(assessment.BusinessType),
		Turnover:           assessment.AnnualTurnover,
		NetProfit:          assessment.AnnualProfit,
		TotalDeductions:    assessment.TotalDeductions,
		TaxableProfit:      assessment.TaxableProfit,
		TaxWithoutPlanning: assessment.TaxWithoutPlanning,
		TaxAfterPlanning:   assessment.TaxAfterPlanning,
		TotalSavings:       assessment.TotalSavings,
		Breakdown: businessBreakdownPayload{
			Depreciation:        assessment.Breakdown.Depreciation,
			SalaryExpenses:      assessment.Breakdown.SalaryExpenses,
			RDExpenses:          assessment.Breakdown.RDExpenses,
			RDWeightedDeduction: assessment.Breakdown.RDWeightedDeduction,
		},
	}
}

func parseSegmentParam(r *http.Request) *domain.TaxSegment {
	value := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("segment")))
	if value == "" {
		return nil
	}
	segment := domain.TaxSegment(value)
	return &segment
}
