package firestore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	firestorepb "cloud.google.com/go/firestore/apiv1/firestorepb"

	domain "github.com/rupeeplan/api/internal/domain"
	pfirestore "github.com/rupeeplan/api/internal/platform/firestore"
	"github.com/rupeeplan/api/internal/platform/pagination"
	"github.com/rupeeplan/api/internal/repositories"
)

const consultationsCollection = "tax_consultations"

// ConsultationRepository persists consultation bookings.
type ConsultationRepository struct {
	base     *pfirestore.BaseRepository[consultationDocument]
	provider *pfirestore.Provider
}

// NewConsultationRepository constructs a Firestore-backed consultation repository.
func NewConsultationRepository(provider *pfirestore.Provider) (*ConsultationRepository, error) {
	if provider == nil {
		return nil, errors.New("consultation repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[consultationDocument](provider, consultationsCollection, nil, nil)
	return &ConsultationRepository{base: base, provider: provider}, nil
}

// Insert stores a new consultation document. The ID must be unique.
func (r *ConsultationRepository) Insert(ctx context.Context, consultation domain.TaxConsultation) error {
	if r == nil || r.base == nil {
		return errors.New("consultation repository not initialised")
	}
	consultationID := strings.TrimSpace(consultation.ID)
	if consultationID == "" {
		return errors.New("consultation repository: consultation id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, consultationID)
	if err != nil {
		return err
	}
	doc := encodeConsultationDocument(consultation)
	if _, err := docRef.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("tax_consultations.insert", err)
	}
	return nil
}

// Update replaces the persisted consultation state.
func (r *ConsultationRepository) Update(ctx context.Context, consultation domain.TaxConsultation) (domain.TaxConsultation, error) {
	if r == nil || r.base == nil {
		return domain.TaxConsultation{}, errors.New("consultation repository not initialised")
	}
	consultationID := strings.TrimSpace(consultation.ID)
	if consultationID == "" {
		return domain.TaxConsultation{}, errors.New("consultation repository: consultation id is required")
	}
	doc := encodeConsultationDocument(consultation)
	if _, err := r.base.Set(ctx, consultationID, doc); err != nil {
		return domain.TaxConsultation{}, err
	}
	return decodeConsultationDocument(consultationID, doc, doc.CreatedAt, doc.UpdatedAt), nil
}

// Delete removes the consultation document permanently.
func (r *ConsultationRepository) Delete(ctx context.Context, consultationID string) error {
	if r == nil || r.base == nil {
		return errors.New("consultation repository not initialised")
	}
	consultationID = strings.TrimSpace(consultationID)
	if consultationID == "" {
		return errors.New("consultation repository: consultation id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, consultationID)
	if err != nil {
		return err
	}
	if _, err := docRef.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("tax_consultations.delete", err)
	}
	return nil
}

// FindByID fetches a single consultation.
func (r *ConsultationRepository) FindByID(ctx context.Context, consultationID string) (domain.TaxConsultation, error) {
	if r == nil || r.base == nil {
		return domain.TaxConsultation{}, errors.New("consultation repository not initialised")
	}
	consultationID = strings.TrimSpace(consultationID)
	if consultationID == "" {
		return domain.TaxConsultation{}, errors.New("consultation repository: consultation id is required")
	}
	doc, err := r.base.Get(ctx, consultationID)
	if err != nil {
		return domain.TaxConsultation{}, err
	}
	return decodeConsultationDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// List returns consultations ordered by most recent booking, or by search key
// when a prefix search is requested.
func (r *ConsultationRepository) List(ctx context.Context, filter repositories.ConsultationListFilter) (domain.CursorPage[domain.TaxConsultation], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.TaxConsultation]{}, errors.New("consultation repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	searchPrefix := strings.TrimSpace(filter.Search)
	orderBySearch := searchPrefix != ""

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		kind, key, docID, err := decodeListCursor(token)
		if err != nil {
			return domain.CursorPage[domain.TaxConsultation]{}, fmt.Errorf("consultation repository: invalid page token: %w", err)
		}
		switch {
		case orderBySearch && kind == cursorKindSearch:
			startAfter = []any{key, docID}
		case !orderBySearch && kind == cursorKindCreated:
			ts, err := time.Parse(time.RFC3339Nano, key)
			if err != nil {
				return domain.CursorPage[domain.TaxConsultation]{}, fmt.Errorf("consultation repository: invalid page token: %w", err)
			}
			startAfter = []any{ts, docID}
		default:
			return domain.CursorPage[domain.TaxConsultation]{}, errors.New("consultation repository: page token does not match filter")
		}
	}

	statusFilters := normaliseStatusStrings(consultationStatusesToStrings(filter.Status))
	email := strings.ToLower(strings.TrimSpace(filter.Email))
	userRef := strings.TrimSpace(filter.UserRef)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Segment != nil {
			q = q.Where("segment", "==", string(*filter.Segment))
		}
		if len(statusFilters) == 1 {
			q = q.Where("status", "==", statusFilters[0])
		} else if len(statusFilters) > 1 {
			// Firestore in clause supports up to 10 values.
			if len(statusFilters) > 10 {
				statusFilters = statusFilters[:10]
			}
			q = q.Where("status", "in", statusFilters)
		}
		if email != "" {
			q = q.Where("email", "==", email)
		}
		if userRef != "" {
			q = q.Where("userRef", "==", userRef)
		}

		if orderBySearch {
			q = q.Where("searchKey", ">=", searchPrefix).Where("searchKey", "<", searchPrefix+"\uf8ff")
			q = q.OrderBy("searchKey", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		} else {
			if filter.DateRange.From != nil {
				q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
			}
			if filter.DateRange.To != nil {
				q = q.Where("createdAt", "<", filter.DateRange.To.UTC())
			}
			q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		}
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.TaxConsultation]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		if orderBySearch {
			nextToken = encodeListCursor(cursorKindSearch, last.Data.SearchKey, last.ID)
		} else {
			tokenTime := last.Data.CreatedAt
			if tokenTime.IsZero() {
				tokenTime = last.CreateTime
			}
			nextToken = encodeListCursor(cursorKindCreated, tokenTime.UTC().Format(time.RFC3339Nano), last.ID)
		}
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.TaxConsultation, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeConsultationDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}

	return domain.CursorPage[domain.TaxConsultation]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// Count returns the number of consultations matching the filter using a
// server-side aggregation.
func (r *ConsultationRepository) Count(ctx context.Context, filter repositories.ConsultationCountFilter) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("consultation repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	q := client.Collection(consultationsCollection).Query
	if filter.Segment != nil {
		q = q.Where("segment", "==", string(*filter.Segment))
	}
	if filter.Status != nil {
		q = q.Where("status", "==", string(*filter.Status))
	}
	if filter.CreatedAfter != nil {
		q = q.Where("createdAt", ">=", filter.CreatedAfter.UTC())
	}
	result, err := q.NewAggregationQuery().WithCount(countAlias).Get(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("tax_consultations.count", err)
	}
	return aggregationInt(result, countAlias)
}

type consultationDocument struct {
	Segment       string     `firestore:"segment"`
	FullName      string     `firestore:"fullName"`
	Email         string     `firestore:"email"`
	Phone         string     `firestore:"phone"`
	PreferredDate string     `firestore:"preferredDate"`
	PreferredTime string     `firestore:"preferredTime"`
	Notes         string     `firestore:"notes,omitempty"`
	Status        string     `firestore:"status"`
	ConsultantRef *string    `firestore:"consultantRef,omitempty"`
	UserRef       *string    `firestore:"userRef,omitempty"`
	SearchKey     string     `firestore:"searchKey,omitempty"`
	CreatedAt     time.Time  `firestore:"createdAt"`
	UpdatedAt     time.Time  `firestore:"updatedAt"`
	CancelledAt   *time.Time `firestore:"cancelledAt,omitempty"`
}

func encodeConsultationDocument(consultation domain.TaxConsultation) consultationDocument {
	return consultationDocument{
		Segment:       strings.TrimSpace(string(consultation.Segment)),
		FullName:      strings.TrimSpace(consultation.FullName),
		Email:         strings.ToLower(strings.TrimSpace(consultation.Email)),
		Phone:         strings.TrimSpace(consultation.Phone),
		PreferredDate: strings.TrimSpace(consultation.PreferredDate),
		PreferredTime: strings.TrimSpace(consultation.PreferredTime),
		Notes:         strings.TrimSpace(consultation.Notes),
		Status:        strings.TrimSpace(string(consultation.Status)),
		ConsultantRef: normalizeOptionalString(consultation.ConsultantRef),
		UserRef:       normalizeOptionalString(consultation.UserRef),
		SearchKey:     strings.TrimSpace(consultation.SearchKey),
		CreatedAt:     consultation.CreatedAt.UTC(),
		UpdatedAt:     consultation.UpdatedAt.UTC(),
		CancelledAt:   normalizeTimePointer(consultation.CancelledAt),
	}
}

func decodeConsultationDocument(id string, doc consultationDocument, createdAt, updatedAt time.Time) domain.TaxConsultation {
	return domain.TaxConsultation{
		ID:            strings.TrimSpace(id),
		Segment:       domain.TaxSegment(strings.TrimSpace(doc.Segment)),
		FullName:      strings.TrimSpace(doc.FullName),
		Email:         strings.TrimSpace(doc.Email),
		Phone:         strings.TrimSpace(doc.Phone),
		PreferredDate: strings.TrimSpace(doc.PreferredDate),
		PreferredTime: strings.TrimSpace(doc.PreferredTime),
		Notes:         strings.TrimSpace(doc.Notes),
		Status:        domain.ConsultationStatus(strings.TrimSpace(doc.Status)),
		ConsultantRef: normalizeOptionalString(doc.ConsultantRef),
		UserRef:       normalizeOptionalString(doc.UserRef),
		SearchKey:     strings.TrimSpace(doc.SearchKey),
		CreatedAt:     chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:     chooseTime(doc.UpdatedAt, updatedAt),
		CancelledAt:   normalizeTimePointer(doc.CancelledAt),
	}
}

func consultationStatusesToStrings(statuses []domain.ConsultationStatus) []string {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}

// Shared helpers for the tax repositories ------------------------------------

const (
	countAlias        = "total"
	sumAlias          = "sum"
	cursorKindCreated = "t"
	cursorKindSearch  = "s"
)

func encodeListCursor(kind string, key string, docID string) string {
	token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{kind, key, docID}})
	if err != nil {
		return ""
	}
	return token
}

func decodeListCursor(token string) (string, string, string, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return "", "", "", err
	}
	values, err := cursor.StringValues(3)
	if err != nil {
		return "", "", "", err
	}
	return values[0], values[1], values[2], nil
}

func aggregationInt(result firestore.AggregationResult, alias string) (int64, error) {
	raw, ok := result[alias]
	if !ok {
		return 0, fmt.Errorf("aggregation alias %q missing from result", alias)
	}
	value, ok := raw.(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("aggregation alias %q has unexpected type %T", alias, raw)
	}
	switch v := value.ValueType.(type) {
	case *firestorepb.Value_IntegerValue:
		return v.IntegerValue, nil
	case *firestorepb.Value_DoubleValue:
		return int64(math.Round(v.DoubleValue)), nil
	case *firestorepb.Value_NullValue:
		return 0, nil
	default:
		return 0, fmt.Errorf("aggregation alias %q has unsupported value type", alias)
	}
}

func normaliseStatusStrings(statuses []string) []string {
	if len(statuses) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(statuses))
	seen := make(map[string]struct{})
	for _, status := range statuses {
		trimmed := strings.ToLower(strings.TrimSpace(status))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}

func normalizeOptionalString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func chooseTime(primary time.Time, fallback time.Time) time.Time {
	if !primary.IsZero() {
		return primary.UTC()
	}
	if !fallback.IsZero() {
		return fallback.UTC()
	}
	return time.Time{}
}

func normalizeTimePointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	if value.IsZero() {
		return nil
	}
	ts := value.UTC()
	return &ts
}
