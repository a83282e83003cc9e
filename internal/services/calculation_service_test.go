package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/rupeeplan/api/internal/domain"
	"github.com/rupeeplan/api/internal/repositories"
)

func TestCalculationServiceCalculatePersonalPersistsRun(t *testing.T) {
	now := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	repo := &memoryCalculationRepo{}

	svc, err := NewCalculationService(CalculationServiceDeps{
		Calculations: repo,
		Engine:       NewTaxEngine(),
		Clock:        func() time.Time { return now },
		IDGenerator:  func() string { return "tcalc_test" },
	})
	if err != nil {
		t.Fatalf("new calculation service: %v", err)
	}

	calculation, err := svc.CalculatePersonal(context.Background(), PersonalCalculationCommand{
		Input: domain.PersonalTaxInput{
			GrossIncome: 1_200_000,
			Section80C:  180_000,
			Section80D:  20_000,
		},
		FullName: " Priya  Nair ",
		Email:    "PRIYA@Example.com",
		Phone:    "+91 98765 43210",
	})
	if err != nil {
		t.Fatalf("calculate personal: %v", err)
	}

	if calculation.ID != "tcalc_test" {
		t.Fatalf("expected id tcalc_test, got %s", calculation.ID)
	}
	if calculation.Segment != domain.TaxSegmentPersonal {
		t.Fatalf("expected personal segment, got %s", calculation.Segment)
	}
	if calculation.Personal == nil || calculation.Business != nil {
		t.Fatalf("expected personal assessment only, got %+v", calculation)
	}
	if calculation.Personal.TotalSavings <= 0 {
		t.Fatalf("expected positive savings with capped 80C, got %d", calculation.Personal.TotalSavings)
	}
	if calculation.Name != "Priya Nair" || calculation.Email != "priya@example.com" || calculation.Phone != "919876543210" {
		t.Fatalf("unexpected contact normalization %+v", calculation)
	}
	if !calculation.CreatedAt.Equal(now) {
		t.Fatalf("expected created at %s, got %s", now, calculation.CreatedAt)
	}

	if len(repo.inserted) != 1 || repo.inserted[0].ID != "tcalc_test" {
		t.Fatalf("expected persisted calculation, got %+v", repo.inserted)
	}
}

func TestCalculationServiceContactFieldsAreOptional(t *testing.T) {
	repo := &memoryCalculationRepo{}
	svc, err := NewCalculationService(CalculationServiceDeps{
		Calculations: repo,
		Engine:       NewTaxEngine(),
	})
	if err != nil {
		t.Fatalf("new calculation service: %v", err)
	}

	calculation, err := svc.CalculateBusiness(context.Background(), BusinessCalculationCommand{
		Input: domain.BusinessTaxInput{
			BusinessType: domain.BusinessTypePartnership,
			AnnualProfit: 2_000_000,
		},
	})
	if err != nil {
		t.Fatalf("calculate business: %v", err)
	}
	if calculation.Name != "" || calculation.Email != "" || calculation.Phone != "" {
		t.Fatalf("expected blank contact fields, got %+v", calculation)
	}
	if calculation.Business == nil {
		t.Fatalf("expected business assessment")
	}
}

func TestCalculationServiceRejectsBadContact(t *testing.T) {
	repo := &memoryCalculationRepo{}
	svc, err := NewCalculationService(CalculationServiceDeps{
		Calculations: repo,
		Engine:       NewTaxEngine(),
	})
	if err != nil {
		t.Fatalf("new calculation service: %v", err)
	}

	_, err = svc.CalculatePersonal(context.Background(), PersonalCalculationCommand{
		Input: domain.PersonalTaxInput{GrossIncome: 500_000},
		Email: "not-an-email",
	})
	if !errors.Is(err, ErrCalculationInvalidInput) {
		t.Fatalf("expected invalid contact, got %v", err)
	}
	if len(repo.inserted) != 0 {
		t.Fatalf("expected nothing persisted")
	}
}

func TestCalculationServicePropagatesEngineErrors(t *testing.T) {
	repo := &memoryCalculationRepo{}
	svc, err := NewCalculationService(CalculationServiceDeps{
		Calculations: repo,
		Engine:       NewTaxEngine(),
	})
	if err != nil {
		t.Fatalf("new calculation service: %v", err)
	}

	_, err = svc.CalculatePersonal(context.Background(), PersonalCalculationCommand{
		Input: domain.PersonalTaxInput{GrossIncome: -1},
	})
	if !errors.Is(err, ErrTaxInvalidInput) {
		t.Fatalf("expected engine validation error, got %v", err)
	}
	if len(repo.inserted) != 0 {
		t.Fatalf("expected nothing persisted")
	}
}

// --- test doubles -----------------------------------------------------------------

type memoryCalculationRepo struct {
	inserted []domain.TaxCalculation
}

func (m *memoryCalculationRepo) Insert(_ context.Context, calculation domain.TaxCalculation) error {
	m.inserted = append(m.inserted, calculation)
	return nil
}

func (m *memoryCalculationRepo) List(_ context.Context, _ repositories.CalculationListFilter) (domain.CursorPage[domain.TaxCalculation], error) {
	return domain.CursorPage[domain.TaxCalculation]{Items: append([]domain.TaxCalculation(nil), m.inserted...)}, nil
}

func (m *memoryCalculationRepo) Count(_ context.Context, _ repositories.CalculationCountFilter) (int64, error) {
	return int64(len(m.inserted)), nil
}

func (m *memoryCalculationRepo) SumProjectedSavings(_ context.Context, _ repositories.CalculationCountFilter) (int64, error) {
	var total int64
	for _, calculation := range m.inserted {
		switch {
		case calculation.Personal != nil:
			total += calculation.Personal.TotalSavings
		case calculation.Business != nil:
			total += calculation.Business.TotalSavings
		}
	}
	return total, nil
}

func (m *memoryCalculationRepo) FindByID(_ context.Context, calculationID string) (domain.TaxCalculation, error) {
	for _, calculation := range m.inserted {
		if calculation.ID == calculationID {
			return calculation, nil
		}
	}
	return domain.TaxCalculation{}, calcRepoNotFoundErr{}
}

type calcRepoNotFoundErr struct{}

func (calcRepoNotFoundErr) Error() string       { return "not found" }
func (calcRepoNotFoundErr) IsNotFound() bool    { return true }
func (calcRepoNotFoundErr) IsConflict() bool    { return false }
func (calcRepoNotFoundErr) IsUnavailable() bool { return false }
