package domain

import "strings"

// TaxSegment distinguishes the personal and business tax service lines.
type TaxSegment string

const (
	// TaxSegmentPersonal covers individual income tax services.
	TaxSegmentPersonal TaxSegment = "personal"
	// TaxSegmentBusiness covers corporate and business tax services.
	TaxSegmentBusiness TaxSegment = "business"
)

// ParseTaxSegment normalises a raw segment tag, defaulting to personal.
func ParseTaxSegment(raw string) (TaxSegment, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(TaxSegmentPersonal):
		return TaxSegmentPersonal, true
	case string(TaxSegmentBusiness):
		return TaxSegmentBusiness, true
	default:
		return TaxSegmentPersonal, false
	}
}

// BusinessType enumerates the business structures the corporate calculator
// distinguishes. Unrecognised tags map to BusinessTypeOther, which carries the
// default corporate rate.
type BusinessType string

const (
	// BusinessTypeStartup marks DPIIT-recognised startups (tax holiday assumed).
	BusinessTypeStartup BusinessType = "startup"
	// BusinessTypeProprietorship marks sole proprietorships (presumptive regime eligible).
	BusinessTypeProprietorship BusinessType = "proprietorship"
	// BusinessTypePartnership marks registered partnership firms.
	BusinessTypePartnership BusinessType = "partnership"
	// BusinessTypeLLP marks limited liability partnerships.
	BusinessTypeLLP BusinessType = "llp"
	// BusinessTypePrivateLimited marks private limited companies.
	BusinessTypePrivateLimited BusinessType = "private-limited"
	// BusinessTypePublic marks public limited companies.
	BusinessTypePublic BusinessType = "public"
	// BusinessTypeOther is the explicit catch-all for unrecognised structures;
	// it is taxed at the default corporate rate rather than rejected.
	BusinessTypeOther BusinessType = "other"
)

// ParseBusinessType folds a raw tag into the closed BusinessType set.
// Comparison is case-insensitive; both "private" and "private-limited" map to
// BusinessTypePrivateLimited. The second return reports whether the tag was
// recognised.
func ParseBusinessType(raw string) (BusinessType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "startup":
		return BusinessTypeStartup, true
	case "proprietorship":
		return BusinessTypeProprietorship, true
	case "partnership":
		return BusinessTypePartnership, true
	case "llp":
		return BusinessTypeLLP, true
	case "private", "private-limited":
		return BusinessTypePrivateLimited, true
	case "public":
		return BusinessTypePublic, true
	default:
		return BusinessTypeOther, false
	}
}

// PersonalTaxInput carries the raw figures for a personal tax savings run.
// Deduction fields default to zero when the client omits them; negative
// values are clamped to zero by the engine rather than rejected.
type PersonalTaxInput struct {
	GrossIncome      float64
	Section80C       float64
	Section80D       float64
	NPS80CCD1B       float64
	HomeLoanInterest float64
}

// BusinessTaxInput carries the raw figures for a business tax savings run.
type BusinessTaxInput struct {
	BusinessType   BusinessType
	AnnualTurnover float64
	AnnualProfit   float64
	Depreciation   float64
	SalaryExpenses float64
	RDExpenses     float64
}

// PersonalDeductionBreakdown exposes each category's capped contribution.
type PersonalDeductionBreakdown struct {
	Section80C       float64
	Section80D       float64
	NPS80CCD1B       float64
	HomeLoanInterest float64
}

// BusinessDeductionBreakdown exposes business deductions; R&D additionally
// carries the 1.5x weighted value that enters the deduction total.
type BusinessDeductionBreakdown struct {
	Depreciation        float64
	SalaryExpenses      float64
	RDExpenses          float64
	RDWeightedDeduction float64
}

// PersonalTaxAssessment is the before/after comparison for an individual.
// TaxableIncome is the planning base (gross income minus total deductions,
// floored at zero) fed into the second calculator pass; the 50k standard
// deduction is applied inside the calculator itself. Tax amounts are whole
// rupees after the 4% cess and terminal rounding.
type PersonalTaxAssessment struct {
	GrossIncome        float64
	TotalDeductions    float64
	TaxableIncome      float64
	TaxWithoutPlanning int64
	TaxAfterPlanning   int64
	TotalSavings       int64
	Breakdown          PersonalDeductionBreakdown
}

// BusinessTaxAssessment is the before/after comparison for a business.
type BusinessTaxAssessment struct {
	BusinessType       BusinessType
	AnnualTurnover     float64
	AnnualProfit       float64
	TotalDeductions    float64
	TaxableProfit      float64
	TaxWithoutPlanning int64
	TaxAfterPlanning   int64
	TotalSavings       int64
	Breakdown          BusinessDeductionBreakdown
}
