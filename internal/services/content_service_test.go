package services

import (
	"context"
	"testing"

	domain "github.com/rupeeplan/api/internal/domain"
)

func TestContentServiceBusinessTaxInformation(t *testing.T) {
	svc := NewContentService()

	info, err := svc.BusinessTaxInformation(context.Background())
	if err != nil {
		t.Fatalf("BusinessTaxInformation returned error: %v", err)
	}

	if info.UpdatedForFY == "" {
		t.Fatalf("expected a financial year stamp")
	}
	if len(info.DeductionTips) == 0 {
		t.Fatalf("expected deduction tips")
	}

	rates := make(map[domain.BusinessType]domain.BusinessTaxRateInfo, len(info.TaxRates))
	for _, rate := range info.TaxRates {
		if rate.Description == "" {
			t.Fatalf("rate for %s is missing a description", rate.BusinessType)
		}
		rates[rate.BusinessType] = rate
	}

	for _, businessType := range []domain.BusinessType{
		domain.BusinessTypeProprietorship,
		domain.BusinessTypePartnership,
		domain.BusinessTypeLLP,
		domain.BusinessTypePrivateLimited,
		domain.BusinessTypePublic,
		domain.BusinessTypeStartup,
	} {
		if _, ok := rates[businessType]; !ok {
			t.Fatalf("sheet is missing a rate entry for %s", businessType)
		}
	}

	// The published figures must agree with what the calculator applies.
	if got := rates[domain.BusinessTypePartnership].RatePercent; got != 30 {
		t.Fatalf("unexpected partnership rate %v", got)
	}
	if got := rates[domain.BusinessTypePrivateLimited].RatePercent; got != 25 {
		t.Fatalf("unexpected private limited rate %v", got)
	}
	if got := rates[domain.BusinessTypeStartup].RatePercent; got != 0 {
		t.Fatalf("unexpected startup rate %v", got)
	}

	scheme := info.PresumptiveScheme
	if scheme.Section != "44AD" {
		t.Fatalf("unexpected presumptive section %q", scheme.Section)
	}
	if scheme.TurnoverLimit != 20_000_000 {
		t.Fatalf("unexpected presumptive turnover limit %v", scheme.TurnoverLimit)
	}
	if scheme.EligibleStructure != domain.BusinessTypeProprietorship {
		t.Fatalf("unexpected eligible structure %q", scheme.EligibleStructure)
	}
}
