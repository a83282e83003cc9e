package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	domain "github.com/rupeeplan/api/internal/domain"
)

// ErrTaxInvalidInput indicates a calculator input that cannot be computed on.
var ErrTaxInvalidInput = errors.New("tax: invalid input")

// Deduction category keys shared by the aggregator and response breakdowns.
const (
	DeductionSection80C       = "section80C"
	DeductionSection80D       = "section80D"
	DeductionNPS80CCD1B       = "nps80CCD1B"
	DeductionHomeLoanInterest = "homeLoanInterest"
)

// taxSlab is one band of the progressive personal schedule. Income above
// lowerBound (up to the next slab's lowerBound) is taxed at rate.
type taxSlab struct {
	lowerBound float64
	rate       float64
}

// personalTaxSlabs is the fixed progressive schedule applied to taxable
// income after the standard deduction. Rate changes are edits to this table.
var personalTaxSlabs = []taxSlab{
	{lowerBound: 0, rate: 0},
	{lowerBound: 250_000, rate: 0.05},
	{lowerBound: 500_000, rate: 0.10},
	{lowerBound: 750_000, rate: 0.15},
	{lowerBound: 1_000_000, rate: 0.20},
	{lowerBound: 1_250_000, rate: 0.25},
	{lowerBound: 1_500_000, rate: 0.30},
}

// personalDeductionCaps holds the statutory ceiling per deduction category.
var personalDeductionCaps = map[string]float64{
	DeductionSection80C:       150_000,
	DeductionSection80D:       50_000,
	DeductionNPS80CCD1B:       50_000,
	DeductionHomeLoanInterest: 200_000,
}

const (
	standardDeduction = 50_000
	cessMultiplier    = 1.04

	rdWeightFactor = 1.5

	presumptiveTurnoverLimit = 20_000_000
	presumptiveProfitRate    = 0.08

	corporateRateDefault      = 0.30
	corporateRateConcessional = 0.25
	concessionalTurnoverLimit = 4_000_000_000
)

type taxEngine struct{}

// NewTaxEngine returns the stateless tax savings calculator. Every invocation
// operates on its own inputs, so a single engine is safe for any degree of
// concurrent use.
func NewTaxEngine() TaxCalculatorService {
	return &taxEngine{}
}

// ComputePersonalSavings runs the personal calculator twice, once on the full
// gross income and once on income net of capped deductions, and returns the
// before/after comparison.
func (e *taxEngine) ComputePersonalSavings(_ context.Context, input domain.PersonalTaxInput) (domain.PersonalTaxAssessment, error) {
	if err := validateAmounts(
		input.GrossIncome,
		input.Section80C,
		input.Section80D,
		input.NPS80CCD1B,
		input.HomeLoanInterest,
	); err != nil {
		return domain.PersonalTaxAssessment{}, err
	}

	totalDeductions, breakdown := aggregatePersonalDeductions(input)

	taxWithout := calculateIncomeTax(input.GrossIncome)

	planningBase := input.GrossIncome - totalDeductions
	if planningBase < 0 {
		planningBase = 0
	}
	taxAfter := calculateIncomeTax(planningBase)

	return domain.PersonalTaxAssessment{
		GrossIncome:        input.GrossIncome,
		TotalDeductions:    totalDeductions,
		TaxableIncome:      planningBase,
		TaxWithoutPlanning: taxWithout,
		TaxAfterPlanning:   taxAfter,
		TotalSavings:       taxWithout - taxAfter,
		Breakdown:          breakdown,
	}, nil
}

// ComputeBusinessSavings runs the corporate calculator twice, once on the full
// annual profit and once on profit net of business deductions, and returns the
// before/after comparison. The business type has already been folded into the
// closed enum; unrecognised structures arrive as BusinessTypeOther and are
// taxed at the default rate.
func (e *taxEngine) ComputeBusinessSavings(_ context.Context, input domain.BusinessTaxInput) (domain.BusinessTaxAssessment, error) {
	if err := validateAmounts(
		input.AnnualProfit,
		input.AnnualTurnover,
		input.Depreciation,
		input.SalaryExpenses,
		input.RDExpenses,
	); err != nil {
		return domain.BusinessTaxAssessment{}, err
	}

	totalDeductions, breakdown := aggregateBusinessDeductions(input)

	taxWithout := calculateCorporateTax(input.AnnualProfit, input.BusinessType, input.AnnualTurnover)

	planningBase := input.AnnualProfit - totalDeductions
	if planningBase < 0 {
		planningBase = 0
	}
	taxAfter := calculateCorporateTax(planningBase, input.BusinessType, input.AnnualTurnover)

	return domain.BusinessTaxAssessment{
		BusinessType:       input.BusinessType,
		AnnualTurnover:     input.AnnualTurnover,
		AnnualProfit:       input.AnnualProfit,
		TotalDeductions:    totalDeductions,
		TaxableProfit:      planningBase,
		TaxWithoutPlanning: taxWithout,
		TaxAfterPlanning:   taxAfter,
		TotalSavings:       taxWithout - taxAfter,
		Breakdown:          breakdown,
	}, nil
}

// aggregateDeductions clamps each category to [0, cap] and sums the clamped
// values. Categories without a cap entry pass through uncapped (still floored
// at zero); categories present only in caps count as zero.
func aggregateDeductions(values map[string]float64, caps map[string]float64) (float64, map[string]float64) {
	capped := make(map[string]float64, len(values)+len(caps))
	for name := range caps {
		capped[name] = 0
	}

	var total float64
	for name, value := range values {
		if value < 0 {
			value = 0
		}
		if ceiling, ok := caps[name]; ok && value > ceiling {
			value = ceiling
		}
		capped[name] = value
		total += value
	}
	return total, capped
}

func aggregatePersonalDeductions(input domain.PersonalTaxInput) (float64, domain.PersonalDeductionBreakdown) {
	total, capped := aggregateDeductions(map[string]float64{
		DeductionSection80C:       input.Section80C,
		DeductionSection80D:       input.Section80D,
		DeductionNPS80CCD1B:       input.NPS80CCD1B,
		DeductionHomeLoanInterest: input.HomeLoanInterest,
	}, personalDeductionCaps)

	return total, domain.PersonalDeductionBreakdown{
		Section80C:       capped[DeductionSection80C],
		Section80D:       capped[DeductionSection80D],
		NPS80CCD1B:       capped[DeductionNPS80CCD1B],
		HomeLoanInterest: capped[DeductionHomeLoanInterest],
	}
}

// aggregateBusinessDeductions sums the uncapped business deductions. R&D spend
// enters the total at its weighted value (1.5x) while the breakdown exposes
// both the raw and weighted figures.
func aggregateBusinessDeductions(input domain.BusinessTaxInput) (float64, domain.BusinessDeductionBreakdown) {
	depreciation := clampNonNegative(input.Depreciation)
	salary := clampNonNegative(input.SalaryExpenses)
	rd := clampNonNegative(input.RDExpenses)
	rdWeighted := rd * rdWeightFactor

	total := depreciation + salary + rdWeighted

	return total, domain.BusinessDeductionBreakdown{
		Depreciation:        depreciation,
		SalaryExpenses:      salary,
		RDExpenses:          rd,
		RDWeightedDeduction: rdWeighted,
	}
}

// calculateIncomeTax computes personal income tax on a gross amount: the
// standard deduction is applied (floored at zero), the progressive slab
// schedule is accumulated band by band, the 4% cess is added, and the result
// is rounded to whole rupees.
func calculateIncomeTax(income float64) int64 {
	taxable := income - standardDeduction
	if taxable < 0 {
		taxable = 0
	}
	return roundRupees(progressiveSlabTax(taxable, personalTaxSlabs) * cessMultiplier)
}

// progressiveSlabTax sums marginal tax across the portion of taxable income
// falling inside each band of the schedule.
func progressiveSlabTax(taxable float64, slabs []taxSlab) float64 {
	var total float64
	for i, slab := range slabs {
		if taxable <= slab.lowerBound {
			break
		}
		upper := math.Inf(1)
		if i+1 < len(slabs) {
			upper = slabs[i+1].lowerBound
		}
		total += (math.Min(taxable, upper) - slab.lowerBound) * slab.rate
	}
	return total
}

// calculateCorporateTax computes business tax for the given structure.
// Startups are assumed tax-holiday eligible. Proprietorships within the
// presumptive turnover limit are taxed on 8% of turnover instead of profit; a
// proprietorship outside the limit falls through to the default rate, as do
// public companies and the explicit other variant.
func calculateCorporateTax(profit float64, businessType domain.BusinessType, turnover float64) int64 {
	profit = clampNonNegative(profit)
	turnover = clampNonNegative(turnover)

	switch businessType {
	case domain.BusinessTypeStartup:
		return 0
	case domain.BusinessTypeProprietorship:
		if turnover > 0 && turnover <= presumptiveTurnoverLimit {
			deemedProfit := turnover * presumptiveProfitRate
			return roundRupees(deemedProfit * corporateRateDefault * cessMultiplier)
		}
	case domain.BusinessTypePartnership, domain.BusinessTypeLLP:
		return roundRupees(profit * corporateRateDefault * cessMultiplier)
	case domain.BusinessTypePrivateLimited:
		rate := corporateRateConcessional
		if turnover > concessionalTurnoverLimit {
			rate = corporateRateDefault
		}
		return roundRupees(profit * rate * cessMultiplier)
	}

	return roundRupees(profit * corporateRateDefault * cessMultiplier)
}

// roundRupees rounds a non-negative amount to the nearest whole rupee with
// half-up ties.
func roundRupees(amount float64) int64 {
	return int64(math.Floor(amount + 0.5))
}

func clampNonNegative(value float64) float64 {
	if value < 0 {
		return 0
	}
	return value
}

func validateAmounts(amounts ...float64) error {
	for _, amount := range amounts {
		if math.IsNaN(amount) || math.IsInf(amount, 0) {
			return fmt.Errorf("%w: amount is not a finite number", ErrTaxInvalidInput)
		}
	}
	return nil
}
