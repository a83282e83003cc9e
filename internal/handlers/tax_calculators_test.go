package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/rupeeplan/api/internal/domain"
	"github.com/rupeeplan/api/internal/services"
)

type stubCalculationService struct {
	personalFn func(ctx context.Context, cmd services.PersonalCalculationCommand) (services.TaxCalculation, error)
	businessFn func(ctx context.Context, cmd services.BusinessCalculationCommand) (services.TaxCalculation, error)
	listFn     func(ctx context.Context, filter services.CalculationListFilter) (domain.CursorPage[services.TaxCalculation], error)
}

func (s *stubCalculationService) CalculatePersonal(ctx context.Context, cmd services.PersonalCalculationCommand) (services.TaxCalculation, error) {
	if s.personalFn != nil {
		return s.personalFn(ctx, cmd)
	}
	return services.TaxCalculation{}, errors.New("not implemented")
}

func (s *stubCalculationService) CalculateBusiness(ctx context.Context, cmd services.BusinessCalculationCommand) (services.TaxCalculation, error) {
	if s.businessFn != nil {
		return s.businessFn(ctx, cmd)
	}
	return services.TaxCalculation{}, errors.New("not implemented")
}

func (s *stubCalculationService) ListCalculations(ctx context.Context, filter services.CalculationListFilter) (domain.CursorPage[services.TaxCalculation], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.TaxCalculation]{}, errors.New("not implemented")
}

type stubContentService struct {
	informationFn func(ctx context.Context) (services.BusinessTaxInformation, error)
}

func (s *stubContentService) BusinessTaxInformation(ctx context.Context) (services.BusinessTaxInformation, error) {
	if s.informationFn != nil {
		return s.informationFn(ctx)
	}
	return services.BusinessTaxInformation{}, errors.New("not implemented")
}

func samplePersonalCalculation(id string) services.TaxCalculation {
	return services.TaxCalculation{
		ID:      id,
		Segment: domain.TaxSegmentPersonal,
		Personal: &domain.PersonalTaxAssessment{
			GrossIncome:        1200000,
			TotalDeductions:    250000,
			TaxableIncome:      950000,
			TaxWithoutPlanning: 179400,
			TaxAfterPlanning:   101400,
			TotalSavings:       78000,
			Breakdown: domain.PersonalDeductionBreakdown{
				Section80C:       150000,
				Section80D:       25000,
				NPS80CCD1B:       50000,
				HomeLoanInterest: 25000,
			},
		},
		CreatedAt: time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC),
	}
}

func newCalculatorRouter(h *CalculatorHandlers) *chi.Mux {
	router := chi.NewRouter()
	h.Routes(router)
	return router
}

func TestCalculatePersonalAnonymous(t *testing.T) {
	var captured services.PersonalCalculationCommand
	service := &stubCalculationService{
		personalFn: func(_ context.Context, cmd services.PersonalCalculationCommand) (services.TaxCalculation, error) {
			captured = cmd
			return samplePersonalCalculation("calc-1"), nil
		},
	}

	handler := NewCalculatorHandlers(service, &stubContentService{}, nil)
	router := newCalculatorRouter(handler)

	body := `{"grossIncome":1200000,"section80C":180000,"section80D":25000,"nps80CCD1B":50000,"homeLoanInterest":25000,"name":"Asha Verma","email":"asha@example.in"}`
	req := httptest.NewRequest(http.MethodPost, "/tax/personal/calculate", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserRef != nil {
		t.Fatalf("anonymous run must not carry a user ref, got %v", captured.UserRef)
	}
	if captured.Input.GrossIncome != 1200000 || captured.Input.Section80C != 180000 {
		t.Fatalf("unexpected calculator input %+v", captured.Input)
	}
	if captured.FullName != "Asha Verma" || captured.Email != "asha@example.in" {
		t.Fatalf("unexpected contact details %+v", captured)
	}

	var payload personalCalculationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.ID != "calc-1" {
		t.Fatalf("expected calculation id, got %q", payload.ID)
	}
	if payload.TotalSavings != 78000 || payload.TaxAfterPlanning != 101400 {
		t.Fatalf("unexpected savings figures %+v", payload)
	}
	if payload.Message != "Tax calculation completed successfully" {
		t.Fatalf("unexpected message %q", payload.Message)
	}
	if payload.Breakdown.Section80C != 150000 {
		t.Fatalf("expected capped 80C in breakdown, got %v", payload.Breakdown.Section80C)
	}
}

func TestCalculatePersonalAttachesIdentity(t *testing.T) {
	var captured services.PersonalCalculationCommand
	service := &stubCalculationService{
		personalFn: func(_ context.Context, cmd services.PersonalCalculationCommand) (services.TaxCalculation, error) {
			captured = cmd
			return samplePersonalCalculation("calc-2"), nil
		},
	}

	handler := NewCalculatorHandlers(service, &stubContentService{}, nil)
	router := newCalculatorRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/tax/personal/calculate", strings.NewReader(`{"grossIncome":900000}`))
	req = withTestIdentity(req, "user-1", "asha@example.in")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserRef == nil || *captured.UserRef != "user-1" {
		t.Fatalf("expected stored run attributed to caller, got %v", captured.UserRef)
	}
}

func TestCalculateBusinessResponseShape(t *testing.T) {
	service := &stubCalculationService{
		businessFn: func(_ context.Context, cmd services.BusinessCalculationCommand) (services.TaxCalculation, error) {
			if cmd.Input.BusinessType != domain.BusinessTypePrivateLimited {
				t.Fatalf("unexpected business type %q", cmd.Input.BusinessType)
			}
			return services.TaxCalculation{
				ID:      "calc-3",
				Segment: domain.TaxSegmentBusiness,
				Business: &domain.BusinessTaxAssessment{
					BusinessType:       domain.BusinessTypePrivateLimited,
					AnnualTurnover:     25000000,
					AnnualProfit:       4000000,
					TotalDeductions:    1550000,
					TaxableProfit:      2450000,
					TaxWithoutPlanning: 1040000,
					TaxAfterPlanning:   637000,
					TotalSavings:       403000,
					Breakdown: domain.BusinessDeductionBreakdown{
						Depreciation:        500000,
						SalaryExpenses:      600000,
						RDExpenses:          300000,
						RDWeightedDeduction: 450000,
					},
				},
				CreatedAt: time.Date(2025, 6, 4, 12, 30, 0, 0, time.UTC),
			}, nil
		},
	}

	handler := NewCalculatorHandlers(service, &stubContentService{}, nil)
	router := newCalculatorRouter(handler)

	body := `{"businessType":"private-limited","annualTurnover":25000000,"annualProfit":4000000,"depreciation":500000,"salaryExpenses":600000,"rdExpenses":300000}`
	req := httptest.NewRequest(http.MethodPost, "/tax/business/calculate", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload businessCalculationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Turnover != 25000000 || payload.NetProfit != 4000000 {
		t.Fatalf("unexpected turnover figures %+v", payload)
	}
	if payload.TaxableIncome != 2450000 {
		t.Fatalf("expected taxable profit under the taxableIncome key, got %v", payload.TaxableIncome)
	}
	if payload.Message != "Business tax calculation completed successfully" {
		t.Fatalf("unexpected message %q", payload.Message)
	}
	if payload.Breakdown.RDWeightedDeduction != 450000 {
		t.Fatalf("expected weighted R&D deduction, got %v", payload.Breakdown.RDWeightedDeduction)
	}
	responseBody := rr.Body.String()
	if !strings.Contains(responseBody, `"taxableIncome"`) || strings.Contains(responseBody, `"taxableProfit"`) {
		t.Fatalf("business response must keep the taxableIncome key, got %s", responseBody)
	}
}

func TestCalculatorRateLimit(t *testing.T) {
	service := &stubCalculationService{
		personalFn: func(context.Context, services.PersonalCalculationCommand) (services.TaxCalculation, error) {
			return samplePersonalCalculation("calc-4"), nil
		},
	}

	handler := NewCalculatorHandlers(service, &stubContentService{}, nil, WithCalculatorRateLimit(1, time.Minute))
	router := newCalculatorRouter(handler)

	first := httptest.NewRequest(http.MethodPost, "/tax/personal/calculate", strings.NewReader(`{"grossIncome":500000}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, first)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d: %s", rr.Code, rr.Body.String())
	}

	second := httptest.NewRequest(http.MethodPost, "/tax/personal/calculate", strings.NewReader(`{"grossIncome":500000}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, second)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be limited, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "rate_limited") {
		t.Fatalf("expected rate_limited code, got %s", rr.Body.String())
	}
}

func TestCalculatorRateLimitDisabled(t *testing.T) {
	service := &stubCalculationService{
		personalFn: func(context.Context, services.PersonalCalculationCommand) (services.TaxCalculation, error) {
			return samplePersonalCalculation("calc-5"), nil
		},
	}

	handler := NewCalculatorHandlers(service, &stubContentService{}, nil, WithCalculatorRateLimit(0, time.Minute))
	router := newCalculatorRouter(handler)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/tax/personal/calculate", strings.NewReader(`{"grossIncome":500000}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected request %d to pass with limiting disabled, got %d", i+1, rr.Code)
		}
	}
}

func TestCalculateBusinessInvalidInput(t *testing.T) {
	service := &stubCalculationService{
		businessFn: func(context.Context, services.BusinessCalculationCommand) (services.TaxCalculation, error) {
			return services.TaxCalculation{}, services.ErrCalculationInvalidInput
		},
	}

	handler := NewCalculatorHandlers(service, &stubContentService{}, nil)
	router := newCalculatorRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/tax/business/calculate", strings.NewReader(`{"businessType":"llp","annualTurnover":-1}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "invalid_request") {
		t.Fatalf("expected invalid_request code, got %s", rr.Body.String())
	}
}

func TestBusinessInformationSheet(t *testing.T) {
	content := &stubContentService{
		informationFn: func(context.Context) (services.BusinessTaxInformation, error) {
			return services.BusinessTaxInformation{
				TaxRates: []domain.BusinessTaxRateInfo{
					{
						BusinessType: domain.BusinessTypePrivateLimited,
						Description:  "Domestic company under section 115BAA",
						RatePercent:  22,
						CessPercent:  4,
					},
				},
				PresumptiveScheme: domain.PresumptiveSchemeInfo{
					Section:           "44AD",
					TurnoverLimit:     30000000,
					DeemedProfitRate:  6,
					EligibleStructure: domain.BusinessTypeProprietorship,
					Notes:             "Digital receipts qualify for the 6% deemed profit rate.",
				},
				DeductionTips: []string{"Claim depreciation on business assets"},
				UpdatedForFY:  "2024-25",
			}, nil
		},
	}

	handler := NewCalculatorHandlers(&stubCalculationService{}, content, nil)
	router := newCalculatorRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/tax/business/information", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, fragment := range []string{`"section":"44AD"`, `"ratePercent":22`, `"updatedForFY":"2024-25"`, `"deductionTips"`} {
		if !strings.Contains(body, fragment) {
			t.Fatalf("expected body to contain %s, got %s", fragment, body)
		}
	}
}
