package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/rupeeplan/api/internal/domain"
	"github.com/rupeeplan/api/internal/platform/auth"
	"github.com/rupeeplan/api/internal/platform/httpx"
	"github.com/rupeeplan/api/internal/services"
)

const (
	maxCalculatorBodySize = 16 * 1024

	defaultCalculatorRateLimit  = 30
	defaultCalculatorRateWindow = time.Minute
)

// CalculatorHandlers serves the public tax savings calculators and the
// business tax information sheet. Calculator runs work without a session;
// when one is present the stored calculation is attributed to the caller.
type CalculatorHandlers struct {
	calculations services.CalculationService
	content      services.ContentService
	sessions     *auth.SessionManager
	limiter      rateLimiter
}

// CalculatorOption customises calculator handler behaviour.
type CalculatorOption func(*CalculatorHandlers)

// WithCalculatorRateLimit overrides the per-client calculator quota. A
// non-positive limit or window disables rate limiting.
func WithCalculatorRateLimit(limit int, window time.Duration) CalculatorOption {
	return func(h *CalculatorHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, time.Now)
	}
}

// NewCalculatorHandlers constructs the public calculator endpoints.
func NewCalculatorHandlers(calculations services.CalculationService, content services.ContentService, sessions *auth.SessionManager, opts ...CalculatorOption) *CalculatorHandlers {
	h := &CalculatorHandlers{
		calculations: calculations,
		content:      content,
		sessions:     sessions,
		limiter:      newSimpleRateLimiter(defaultCalculatorRateLimit, defaultCalculatorRateWindow, time.Now),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the calculator endpoints on the provided router.
func (h *CalculatorHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.sessions != nil {
		group = group.With(h.sessions.OptionalSession())
	}
	group.Post("/tax/personal/calculate", h.calculatePersonal)
	group.Post("/tax/business/calculate", h.calculateBusiness)
	group.Get("/tax/business/information", h.businessInformation)
}

func (h *CalculatorHandlers) calculatePersonal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.calculations == nil {
		writeServiceUnavailable(ctx, w, "calculation_service_unavailable", "calculation service is unavailable")
		return
	}
	if !h.allow(r) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many calculator requests, retry later", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxCalculatorBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req personalCalculateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	cmd := services.PersonalCalculationCommand{
		Input: domain.PersonalTaxInput{
			GrossIncome:      req.GrossIncome,
			Section80C:       req.Section80C,
			Section80D:       req.Section80D,
			NPS80CCD1B:       req.NPS80CCD1B,
			HomeLoanInterest: req.HomeLoanInterest,
		},
		FullName: req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
	}
	if identity, ok := requestIdentity(ctx); ok {
		cmd.UserRef = &identity.UID
	}

	calculation, err := h.calculations.CalculatePersonal(ctx, cmd)
	if err != nil {
		writeCalculationError(ctx, w, err)
		return
	}

	assessment := calculation.Personal
	writeJSONResponse(w, http.StatusOK, personalCalculationResponse{
		ID:                 calculation.ID,
		GrossIncome:        assessment.GrossIncome,
		TotalDeductions:    assessment.TotalDeductions,
		TaxableIncome:      assessment.TaxableIncome,
		TaxWithoutPlanning: assessment.TaxWithoutPlanning,
		TaxAfterPlanning:   assessment.TaxAfterPlanning,
		TotalSavings:       assessment.TotalSavings,
		Message:            "Tax calculation completed successfully",
		Breakdown: personalBreakdownPayload{
			Section80C:       assessment.Breakdown.Section80C,
			Section80D:       assessment.Breakdown.Section80D,
			NPS80CCD1B:       assessment.Breakdown.NPS80CCD1B,
			HomeLoanInterest: assessment.Breakdown.HomeLoanInterest,
		},
	})
}

func (h *CalculatorHandlers) calculateBusiness(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.calculations == nil {
		writeServiceUnavailable(ctx, w, "calculation_service_unavailable", "calculation service is unavailable")
		return
	}
	if !h.allow(r) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many calculator requests, retry later", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxCalculatorBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req businessCalculateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	cmd := services.BusinessCalculationCommand{
		Input: domain.BusinessTaxInput{
			BusinessType:   domain.BusinessType(req.BusinessType),
			AnnualTurnover: req.AnnualTurnover,
			AnnualProfit:   req.AnnualProfit,
			Depreciation:   req.Depreciation,
			SalaryExpenses: req.SalaryExpenses,
			RDExpenses:     req.RDExpenses,
		},
		FullName: req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
	}
	if identity, ok := requestIdentity(ctx); ok {
		cmd.UserRef = &identity.UID
	}

	calculation, err := h.calculations.CalculateBusiness(ctx, cmd)
	if err != nil {
		writeCalculationError(ctx, w, err)
		return
	}

	assessment := calculation.Business
	writeJSONResponse(w, http.StatusOK, businessCalculationResponse{
		ID:                 calculation.ID,
		Turnover:           assessment.AnnualTurnover,
		NetProfit:          assessment.AnnualProfit,
		TotalDeductions:    assessment.TotalDeductions,
		TaxableIncome:      assessment.TaxableProfit,
		TaxWithoutPlanning: assessment.TaxWithoutPlanning,
		TaxAfterPlanning:   assessment.TaxAfterPlanning,
		TotalSavings:       assessment.TotalSavings,
		Message:            "Business tax calculation completed successfully",
		Breakdown: businessBreakdownPayload{
			Depreciation:        assessment.Breakdown.Depreciation,
			SalaryExpenses:      assessment.Breakdown.SalaryExpenses,
			RDExpenses:          assessment.Breakdown.RDExpenses,
			RDWeightedDeduction: assessment.Breakdown.RDWeightedDeduction,
		},
	})
}

func (h *CalculatorHandlers) businessInformation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		writeServiceUnavailable(ctx, w, "content_service_unavailable", "content service is unavailable")
		return
	}

	info, err := h.content.BusinessTaxInformation(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("content_error", "failed to load business tax information", http.StatusInternalServerError))
		return
	}

	rates := make([]businessTaxRatePayload, 0, len(info.TaxRates))
	for _, rate := range info.TaxRates {
		rates = append(rates, businessTaxRatePayload{
			BusinessType: string(rate.BusinessType),
			Description:  rate.Description,
			RatePercent:  rate.RatePercent,
			CessPercent:  rate.CessPercent,
		})
	}

	writeJSONResponse(w, http.StatusOK, businessInformationResponse{
		TaxRates: rates,
		PresumptiveScheme: presumptiveSchemePayload{
			Section:           info.PresumptiveScheme.Section,
			TurnoverLimit:     info.PresumptiveScheme.TurnoverLimit,
			DeemedProfitRate:  info.PresumptiveScheme.DeemedProfitRate,
			EligibleStructure: string(info.PresumptiveScheme.EligibleStructure),
			Notes:             info.PresumptiveScheme.Notes,
		},
		DeductionTips: info.DeductionTips,
		UpdatedForFY:  info.UpdatedForFY,
	})
}

// allow applies the per-client quota. The router's RealIP middleware rewrites
// RemoteAddr before this runs, so the key is the caller's public address.
func (h *CalculatorHandlers) allow(r *http.Request) bool {
	if h.limiter == nil {
		return true
	}
	return h.limiter.Allow(clientKey(r))
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

type personalCalculateRequest struct {
	GrossIncome      float64 `json:"grossIncome"`
	Section80C       float64 `json:"section80C"`
	Section80D       float64 `json:"section80D"`
	NPS80CCD1B       float64 `json:"nps80CCD1B"`
	HomeLoanInterest float64 `json:"homeLoanInterest"`
	Name             string  `json:"name"`
	Email            string  `json:"email"`
	Phone            string  `json:"phone"`
}

type businessCalculateRequest struct {
	BusinessType   string  `json:"businessType"`
	AnnualTurnover float64 `json:"annualTurnover"`
	AnnualProfit   float64 `json:"annualProfit"`
	Depreciation   float64 `json:"depreciation"`
	SalaryExpenses float64 `json:"salaryExpenses"`
	RDExpenses     float64 `json:"rdExpenses"`
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	Phone          string  `json:"phone"`
}

type personalCalculationResponse struct {
	ID                 string                   `json:"id"`
	GrossIncome        float64                  `json:"grossIncome"`
	TotalDeductions    float64                  `json:"totalDeductions"`
	TaxableIncome      float64                  `json:"taxableIncome"`
	TaxWithoutPlanning int64                    `json:"taxWithoutPlanning"`
	TaxAfterPlanning   int64                    `json:"taxAfterPlanning"`
	TotalSavings       int64                    `json:"totalSavings"`
	Message            string                   `json:"message"`
	Breakdown          personalBreakdownPayload `json:"breakdown"`
}

type businessCalculationResponse struct {
	ID                 string                   `json:"id"`
	Turnover           float64                  `json:"turnover"`
	NetProfit          float64                  `json:"netProfit"`
	TotalDeductions    float64                  `json:"totalDeductions"`
	TaxableIncome      float64                  `json:"taxableIncome"`
	TaxWithoutPlanning int64                    `json:"taxWithoutPlanning"`
	TaxAfterPlanning   int64                    `json:"taxAfterPlanning"`
	TotalSavings       int64                    `json:"totalSavings"`
	Message            string                   `json:"message"`
	Breakdown          businessBreakdownPayload `json:"breakdown"`
}

type businessInformationResponse struct {
	TaxRates          []businessTaxRatePayload `json:"taxRates"`
	PresumptiveScheme presumptiveSchemePayload `json:"presumptiveScheme"`
	DeductionTips     []string                 `json:"deductionTips"`
	UpdatedForFY      string                   `json:"updatedForFY"`
}

type businessTaxRatePayload struct {
	BusinessType string  `json:"businessType"`
	Description  string  `json:"description"`
	RatePercent  float64 `json:"ratePercent"`
	CessPercent  float64 `json:"cessPercent"`
}

type presumptiveSchemePayload struct {
	Section           string  `json:"section"`
	TurnoverLimit     float64 `json:"turnoverLimit"`
	DeemedProfitRate  float64 `json:"deemedProfitRate"`
	EligibleStructure string  `json:"eligibleStructure"`
	Notes             string  `json:"notes"`
}

func writeCalculationError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCalculationInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCalculationNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("calculation_not_found", "calculation not found", http.StatusNotFound))
	case isRepositoryUnavailable(err):
		httpx.WriteError(ctx, w, httpx.NewError("calculation_service_unavailable", "calculation repository unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("calculation_error", "failed to calculate tax savings", http.StatusInternalServerError))
	}
}
