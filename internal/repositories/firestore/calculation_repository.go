package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/rupeeplan/api/internal/domain"
	pfirestore "github.com/rupeeplan/api/internal/platform/firestore"
	"github.com/rupeeplan/api/internal/repositories"
)

const calculationsCollection = "tax_calculations"

// CalculationRepository persists calculator runs for audit and follow-up.
type CalculationRepository struct {
	base     *pfirestore.BaseRepository[calculationDocument]
	provider *pfirestore.Provider
}

// NewCalculationRepository constructs a Firestore-backed calculation repository.
func NewCalculationRepository(provider *pfirestore.Provider) (*CalculationRepository, error) {
	if provider == nil {
		return nil, errors.New("calculation repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[calculationDocument](provider, calculationsCollection, nil, nil)
	return &CalculationRepository{base: base, provider: provider}, nil
}

// Insert stores a calculation record. Records are immutable once written.
func (r *CalculationRepository) Insert(ctx context.Context, calculation domain.TaxCalculation) error {
	if r == nil || r.base == nil {
		return errors.New("calculation repository not initialised")
	}
	calculationID := strings.TrimSpace(calculation.ID)
	if calculationID == "" {
		return errors.New("calculation repository: calculation id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, calculationID)
	if err != nil {
		return err
	}
	doc := encodeCalculationDocument(calculation)
	if _, err := docRef.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("tax_calculations.insert", err)
	}
	return nil
}

// FindByID fetches a single calculation record.
func (r *CalculationRepository) FindByID(ctx context.Context, calculationID string) (domain.TaxCalculation, error) {
	if r == nil || r.base == nil {
		return domain.TaxCalculation{}, errors.New("calculation repository not initialised")
	}
	calculationID = strings.TrimSpace(calculationID)
	if calculationID == "" {
		return domain.TaxCalculation{}, errors.New("calculation repository: calculation id is required")
	}
	doc, err := r.base.Get(ctx, calculationID)
	if err != nil {
		return domain.TaxCalculation{}, err
	}
	return decodeCalculationDocument(doc.ID, doc.Data, doc.CreateTime), nil
}

// List returns calculation records ordered by most recent run.
func (r *CalculationRepository) List(ctx context.Context, filter repositories.CalculationListFilter) (domain.CursorPage[domain.TaxCalculation], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.TaxCalculation]{}, errors.New("calculation repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		kind, key, docID, err := decodeListCursor(token)
		if err != nil {
			return domain.CursorPage[domain.TaxCalculation]{}, fmt.Errorf("calculation repository: invalid page token: %w", err)
		}
		if kind != cursorKindCreated {
			return domain.CursorPage[domain.TaxCalculation]{}, errors.New("calculation repository: page token does not match filter")
		}
		ts, err := time.Parse(time.RFC3339Nano, key)
		if err != nil {
			return domain.CursorPage[domain.TaxCalculation]{}, fmt.Errorf("calculation repository: invalid page token: %w", err)
		}
		startAfter = []any{ts, docID}
	}

	email := strings.ToLower(strings.TrimSpace(filter.Email))
	userRef := strings.TrimSpace(filter.UserRef)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Segment != nil {
			q = q.Where("segment", "==", string(*filter.Segment))
		}
		if email != "" {
			q = q.Where("email", "==", email)
		}
		if userRef != "" {
			q = q.Where("userRef", "==", userRef)
		}
		if filter.DateRange.From != nil {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("createdAt", "<", filter.DateRange.To.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.TaxCalculation]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeListCursor(cursorKindCreated, tokenTime.UTC().Format(time.RFC3339Nano), last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.TaxCalculation, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeCalculationDocument(doc.ID, doc.Data, doc.CreateTime))
	}

	return domain.CursorPage[domain.TaxCalculation]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// Count returns the number of calculation records matching the filter using
// a server-side aggregation.
func (r *CalculationRepository) Count(ctx context.Context, filter repositories.CalculationCountFilter) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("calculation repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	query := r.countQuery(client, filter)
	result, err := query.NewAggregationQuery().WithCount(countAlias).Get(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("tax_calculations.count", err)
	}
	return aggregationInt(result, countAlias)
}

// SumProjectedSavings totals the projected savings across matching records
// using a server-side sum aggregation.
func (r *CalculationRepository) SumProjectedSavings(ctx context.Context, filter repositories.CalculationCountFilter) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("calculation repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	query := r.countQuery(client, filter)
	result, err := query.NewAggregationQuery().WithSum("totalSavings", sumAlias).Get(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("tax_calculations.sum_projected_savings", err)
	}
	return aggregationInt(result, sumAlias)
}

func (r *CalculationRepository) countQuery(client *firestore.Client, filter repositories.CalculationCountFilter) firestore.Query {
	q := client.Collection(calculationsCollection).Query
	if filter.Segment != nil {
		q = q.Where("segment", "==", string(*filter.Segment))
	}
	if filter.CreatedAfter != nil {
		q = q.Where("createdAt", ">=", filter.CreatedAfter.UTC())
	}
	return q
}

type calculationDocument struct {
	Segment      string                      `firestore:"segment"`
	Personal     *personalAssessmentDocument `firestore:"personal,omitempty"`
	Business     *businessAssessmentDocument `firestore:"business,omitempty"`
	Name         string                      `firestore:"name"`
	Email        string                      `firestore:"email"`
	Phone        string                      `firestore:"phone,omitempty"`
	UserRef      *string                     `firestore:"userRef,omitempty"`
	TotalSavings int64                       `firestore:"totalSavings"`
	CreatedAt    time.Time                   `firestore:"createdAt"`
}

type personalAssessmentDocument struct {
	GrossIncome        float64                   `firestore:"grossIncome"`
	TotalDeductions    float64                   `firestore:"totalDeductions"`
	TaxableIncome      float64                   `firestore:"taxableIncome"`
	TaxWithoutPlanning int64                     `firestore:"taxWithoutPlanning"`
	TaxAfterPlanning   int64                     `firestore:"taxAfterPlanning"`
	TotalSavings       int64                     `firestore:"totalSavings"`
	Breakdown          personalBreakdownDocument `firestore:"breakdown"`
}

type personalBreakdownDocument struct {
	Section80C       float64 `firestore:"section80C"`
	Section80D       float64 `firestore:"section80D"`
	NPS80CCD1B       float64 `firestore:"nps80CCD1B"`
	HomeLoanInterest float64 `firestore:"homeLoanInterest"`
}

type businessAssessmentDocument struct {
	BusinessType       string                    `firestore:"businessType"`
	AnnualTurnover     float64                   `firestore:"annualTurnover"`
	AnnualProfit       float64                   `firestore:"annualProfit"`
	TotalDeductions    float64                   `firestore:"totalDeductions"`
	TaxableProfit      float64                   `firestore:"taxableProfit"`
	TaxWithoutPlanning int64                     `firestore:"taxWithoutPlanning"`
	TaxAfterPlanning   int64                     `firestore:"taxAfterPlanning"`
	TotalSavings       int64                     `firestore:"totalSavings"`
	Breakdown          businessBreakdownDocument `firestore:"breakdown"`
}

type businessBreakdownDocument struct {
	Depreciation        float64 `firestore:"depreciation"`
	SalaryExpenses      float64 `firestore:"salaryExpenses"`
	RDExpenses          float64 `firestore:"rdExpenses"`
	RDWeightedDeduction float64 `firestore:"rdWeightedDeduction"`
}

func encodeCalculationDocument(calculation domain.TaxCalculation) calculationDocument {
	doc := calculationDocument{
		Segment:   strings.TrimSpace(string(calculation.Segment)),
		Name:      strings.TrimSpace(calculation.Name),
		Email:     strings.ToLower(strings.TrimSpace(calculation.Email)),
		Phone:     strings.TrimSpace(calculation.Phone),
		UserRef:   normalizeOptionalString(calculation.UserRef),
		CreatedAt: calculation.CreatedAt.UTC(),
	}
	if calculation.Personal != nil {
		doc.Personal = &personalAssessmentDocument{
			GrossIncome:        calculation.Personal.GrossIncome,
			TotalDeductions:    calculation.Personal.TotalDeductions,
			TaxableIncome:      calculation.Personal.TaxableIncome,
			TaxWithoutPlanning: calculation.Personal.TaxWithoutPlanning,
			TaxAfterPlanning:   calculation.Personal.TaxAfterPlanning,
			TotalSavings:       calculation.Personal.TotalSavings,
			Breakdown: personalBreakdownDocument{
				Section80C:       calculation.Personal.Breakdown.Section80C,
				Section80D:       calculation.Personal.Breakdown.Section80D,
				NPS80CCD1B:       calculation.Personal.Breakdown.NPS80CCD1B,
				HomeLoanInterest: calculation.Personal.Breakdown.HomeLoanInterest,
			},
		}
		doc.TotalSavings = calculation.Personal.TotalSavings
	}
	if calculation.Business != nil {
		doc.Business = &businessAssessmentDocument{
			BusinessType:       strings.TrimSpace(string(calculation.Business.BusinessType)),
			AnnualTurnover:     calculation.Business.AnnualTurnover,
			AnnualProfit:       calculation.Business.AnnualProfit,
			TotalDeductions:    calculation.Business.TotalDeductions,
			TaxableProfit:      calculation.Business.TaxableProfit,
			TaxWithoutPlanning: calculation.Business.TaxWithoutPlanning,
			TaxAfterPlanning:   calculation.Business.TaxAfterPlanning,
			TotalSavings:       calculation.Business.TotalSavings,
			Breakdown: businessBreakdownDocument{
				Depreciation:        calculation.Business.Breakdown.Depreciation,
				SalaryExpenses:      calculation.Business.Breakdown.SalaryExpenses,
				RDExpenses:          calculation.Business.Breakdown.RDExpenses,
				RDWeightedDeduction: calculation.Business.Breakdown.RDWeightedDeduction,
			},
		}
		doc.TotalSavings = calculation.Business.TotalSavings
	}
	return doc
}

func decodeCalculationDocument(id string, doc calculationDocument, createdAt time.Time) domain.TaxCalculation {
	calculation := domain.TaxCalculation{
		ID:        strings.TrimSpace(id),
		Segment:   domain.TaxSegment(strings.TrimSpace(doc.Segment)),
		Name:      strings.TrimSpace(doc.Name),
		Email:     strings.TrimSpace(doc.Email),
		Phone:     strings.TrimSpace(doc.Phone),
		UserRef:   normalizeOptionalString(doc.UserRef),
		CreatedAt: chooseTime(doc.CreatedAt, createdAt),
	}
	if doc.Personal != nil {
		calculation.Personal = &domain.PersonalTaxAssessment{
			GrossIncome:        doc.Personal.GrossIncome,
			TotalDeductions:    doc.Personal.TotalDeductions,
			TaxableIncome:      doc.Personal.TaxableIncome,
			TaxWithoutPlanning: doc.Personal.TaxWithoutPlanning,
			TaxAfterPlanning:   doc.Personal.TaxAfterPlanning,
			TotalSavings:       doc.Personal.TotalSavings,
			Breakdown: domain.PersonalDeductionBreakdown{
				Section80C:       doc.Personal.Breakdown.Section80C,
				Section80D:       doc.Personal.Breakdown.Section80D,
				NPS80CCD1B:       doc.Personal.Breakdown.NPS80CCD1B,
				HomeLoanInterest: doc.Personal.Breakdown.HomeLoanInterest,
			},
		}
	}
	if doc.Business != nil {
		calculation.Business = &domain.BusinessTaxAssessment{
			BusinessType:       domain.BusinessType(strings.TrimSpace(doc.Business.BusinessType)),
			AnnualTurnover:     doc.Business.AnnualTurnover,
			AnnualProfit:       doc.Business.AnnualProfit,
			TotalDeductions:    doc.Business.TotalDeductions,
			TaxableProfit:      doc.Business.TaxableProfit,
			TaxWithoutPlanning: doc.Business.TaxWithoutPlanning,
			TaxAfterPlanning:   doc.Business.TaxAfterPlanning,
			TotalSavings:       doc.Business.TotalSavings,
			Breakdown: domain.BusinessDeductionBreakdown{
				Depreciation:        doc.Business.Breakdown.Depreciation,
				SalaryExpenses:      doc.Business.Breakdown.SalaryExpenses,
				RDExpenses:          doc.Business.Breakdown.RDExpenses,
				RDWeightedDeduction: doc.Business.Breakdown.RDWeightedDeduction,
			},
		}
	}
	return calculation
}
