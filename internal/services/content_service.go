package services

import (
	"context"

	domain "github.com/rupeeplan/api/internal/domain"
)

// businessTaxFY names the financial year the published rates were last
// reviewed against. Bump it together with the rate tables in the calculator.
const businessTaxFY = "2024-25"

type contentService struct{}

// NewContentService returns the provider of static editorial content. The
// business tax sheet is compiled in, so the service has no dependencies.
func NewContentService() ContentService {
	return &contentService{}
}

// BusinessTaxInformation returns the public guidance sheet for business tax
// planning. The figures mirror the calculator's rate tables so the marketing
// page and the calculator never disagree.
func (s *contentService) BusinessTaxInformation(_ context.Context) (BusinessTaxInformation, error) {
	return BusinessTaxInformation{
		TaxRates: []domain.BusinessTaxRateInfo{
			{
				BusinessType: domain.BusinessTypeProprietorship,
				Description:  "Taxed at slab rates; presumptive option under Section 44AD within the turnover limit",
				RatePercent:  30,
				CessPercent:  4,
			},
			{
				BusinessType: domain.BusinessTypePartnership,
				Description:  "Flat rate on firm profits",
				RatePercent:  30,
				CessPercent:  4,
			},
			{
				BusinessType: domain.BusinessTypeLLP,
				Description:  "Flat rate on LLP profits",
				RatePercent:  30,
				CessPercent:  4,
			},
			{
				BusinessType: domain.BusinessTypePrivateLimited,
				Description:  "Concessional rate for companies with turnover up to Rs. 400 crore, otherwise 30%",
				RatePercent:  25,
				CessPercent:  4,
			},
			{
				BusinessType: domain.BusinessTypePublic,
				Description:  "Standard corporate rate",
				RatePercent:  30,
				CessPercent:  4,
			},
			{
				BusinessType: domain.BusinessTypeStartup,
				Description:  "Eligible DPIIT-recognised startups can claim a tax holiday under Section 80-IAC",
				RatePercent:  0,
				CessPercent:  0,
			},
		},
		PresumptiveScheme: domain.PresumptiveSchemeInfo{
			Section:           "44AD",
			TurnoverLimit:     20_000_000,
			DeemedProfitRate:  8,
			EligibleStructure: domain.BusinessTypeProprietorship,
			Notes:             "8% of turnover (6% for digital receipts) is deemed profit, removing detailed bookkeeping for small businesses.",
		},
		DeductionTips: []string{
			"Claim depreciation on plant, machinery, vehicles, and office equipment used for the business.",
			"Employee salary and welfare expenses are fully deductible against business profit.",
			"R&D spending attracts a weighted deduction under Section 35.",
			"Consider presumptive taxation under Section 44AD if turnover stays within the limit.",
			"File GST and income tax returns on time to avoid interest and penalties.",
		},
		UpdatedForFY: businessTaxFY,
	}, nil
}
