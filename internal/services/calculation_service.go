package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/rupeeplan/api/internal/domain"
	"github.com/rupeeplan/api/internal/repositories"
)

const calculationIDPrefix = "tcalc_"

var (
	// ErrCalculationInvalidInput indicates validation failures for calculator contact fields.
	ErrCalculationInvalidInput = errors.New("calculation: invalid input")
	// ErrCalculationNotFound indicates a stored calculation could not be located.
	ErrCalculationNotFound = errors.New("calculation: not found")
)

// CalculationServiceDeps bundles collaborators required to construct a CalculationService.
type CalculationServiceDeps struct {
	Calculations repositories.CalculationRepository
	Engine       TaxCalculatorService
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type calculationService struct {
	calculations repositories.CalculationRepository
	engine       TaxCalculatorService
	clock        func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
}

// NewCalculationService wires dependencies into a concrete CalculationService implementation.
func NewCalculationService(deps CalculationServiceDeps) (CalculationService, error) {
	if deps.Calculations == nil {
		return nil, errors.New("calculation service: calculation repository is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("calculation service: tax calculator is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return calculationIDPrefix + ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &calculationService{
		calculations: deps.Calculations,
		engine:       deps.Engine,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *calculationService) CalculatePersonal(ctx context.Context, cmd PersonalCalculationCommand) (TaxCalculation, error) {
	contact, err := normalizeCalculationContact(cmd.FullName, cmd.Email, cmd.Phone)
	if err != nil {
		return TaxCalculation{}, err
	}

	assessment, err := s.engine.ComputePersonalSavings(ctx, cmd.Input)
	if err != nil {
		return TaxCalculation{}, err
	}

	calculation := domain.TaxCalculation{
		ID:        s.newID(),
		Segment:   domain.TaxSegmentPersonal,
		Personal:  &assessment,
		Name:      contact.name,
		Email:     contact.email,
		Phone:     contact.phone,
		UserRef:   normalizeOptionalRef(cmd.UserRef),
		CreatedAt: s.now(),
	}

	if err := s.calculations.Insert(ctx, calculation); err != nil {
		return TaxCalculation{}, s.mapCalculationError(err)
	}

	s.logger(ctx, "calculation.recorded", map[string]any{
		"calculationId": calculation.ID,
		"segment":       string(calculation.Segment),
		"totalSavings":  assessment.TotalSavings,
	})

	return calculation, nil
}

func (s *calculationService) CalculateBusiness(ctx context.Context, cmd BusinessCalculationCommand) (TaxCalculation, error) {
	contact, err := normalizeCalculationContact(cmd.FullName, cmd.Email, cmd.Phone)
	if err != nil {
		return TaxCalculation{}, err
	}

	assessment, err := s.engine.ComputeBusinessSavings(ctx, cmd.Input)
	if err != nil {
		return TaxCalculation{}, err
	}

	calculation := domain.TaxCalculation{
		ID:        s.newID(),
		Segment:   domain.TaxSegmentBusiness,
		Business:  &assessment,
		Name:      contact.name,
		Email:     contact.email,
		Phone:     contact.phone,
		UserRef:   normalizeOptionalRef(cmd.UserRef),
		CreatedAt: s.now(),
	}

	if err := s.calculations.Insert(ctx, calculation); err != nil {
		return TaxCalculation{}, s.mapCalculationError(err)
	}

	s.logger(ctx, "calculation.recorded", map[string]any{
		"calculationId": calculation.ID,
		"segment":       string(calculation.Segment),
		"totalSavings":  assessment.TotalSavings,
	})

	return calculation, nil
}

func (s *calculationService) ListCalculations(ctx context.Context, filter CalculationListFilter) (domain.CursorPage[TaxCalculation], error) {
	filter.Pagination = normalizePagination(filter.Pagination)
	page, err := s.calculations.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[TaxCalculation]{}, s.mapCalculationError(err)
	}
	return page, nil
}

func (s *calculationService) now() time.Time {
	return s.clock()
}

func (s *calculationService) mapCalculationError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrCalculationNotFound
	}
	return err
}

// calculationContact holds the optional caller details captured alongside a
// calculator run. The calculators are public, so all three fields may be blank.
type calculationContact struct {
	name  string
	email string
	phone string
}

func normalizeCalculationContact(name, email, phone string) (calculationContact, error) {
	var contact calculationContact

	if strings.TrimSpace(name) != "" {
		normalized, err := normalizePersonName(name)
		if err != nil {
			return calculationContact{}, fmt.Errorf("%w: %v", ErrCalculationInvalidInput, err)
		}
		contact.name = normalized
	}
	if strings.TrimSpace(email) != "" {
		normalized, err := normalizeEmailAddress(email)
		if err != nil {
			return calculationContact{}, fmt.Errorf("%w: %v", ErrCalculationInvalidInput, err)
		}
		contact.email = normalized
	}
	if strings.TrimSpace(phone) != "" {
		normalized, err := normalizePhoneNumber(phone)
		if err != nil {
			return calculationContact{}, fmt.Errorf("%w: %v", ErrCalculationInvalidInput, err)
		}
		contact.phone = normalized
	}

	return contact, nil
}
