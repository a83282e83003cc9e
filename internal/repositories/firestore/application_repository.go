package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/rupeeplan/api/internal/domain"
	pfirestore "github.com/rupeeplan/api/internal/platform/firestore"
	"github.com/rupeeplan/api/internal/repositories"
)

const applicationsCollection = "tax_applications"

// activeApplicationStatuses are the states that block a second application
// for the same PAN within a segment.
var activeApplicationStatuses = []string{
	string(domain.ApplicationStatusSubmitted),
	string(domain.ApplicationStatusUnderReview),
	string(domain.ApplicationStatusApproved),
}

// ApplicationRepository persists tax planning applications.
type ApplicationRepository struct {
	base     *pfirestore.BaseRepository[applicationDocument]
	provider *pfirestore.Provider
}

// NewApplicationRepository constructs a Firestore-backed application repository.
func NewApplicationRepository(provider *pfirestore.Provider) (*ApplicationRepository, error) {
	if provider == nil {
		return nil, errors.New("application repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[applicationDocument](provider, applicationsCollection, nil, nil)
	return &ApplicationRepository{base: base, provider: provider}, nil
}

// Insert stores a new application document. The ID must be unique.
func (r *ApplicationRepository) Insert(ctx context.Context, application domain.TaxPlanningApplication) error {
	if r == nil || r.base == nil {
		return errors.New("application repository not initialised")
	}
	applicationID := strings.TrimSpace(application.ID)
	if applicationID == "" {
		return errors.New("application repository: application id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, applicationID)
	if err != nil {
		return err
	}
	doc := encodeApplicationDocument(application)
	if _, err := docRef.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("tax_applications.insert", err)
	}
	return nil
}

// Update replaces the persisted application state.
func (r *ApplicationRepository) Update(ctx context.Context, application domain.TaxPlanningApplication) (domain.TaxPlanningApplication, error) {
	if r == nil || r.base == nil {
		return domain.TaxPlanningApplication{}, errors.New("application repository not initialised")
	}
	applicationID := strings.TrimSpace(application.ID)
	if applicationID == "" {
		return domain.TaxPlanningApplication{}, errors.New("application repository: application id is required")
	}
	doc := encodeApplicationDocument(application)
	if _, err := r.base.Set(ctx, applicationID, doc); err != nil {
		return domain.TaxPlanningApplication{}, err
	}
	return decodeApplicationDocument(applicationID, doc, doc.CreatedAt, doc.UpdatedAt), nil
}

// Delete removes the application document permanently.
func (r *ApplicationRepository) Delete(ctx context.Context, applicationID string) error {
	if r == nil || r.base == nil {
		return errors.New("application repository not initialised")
	}
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return errors.New("application repository: application id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, applicationID)
	if err != nil {
		return err
	}
	if _, err := docRef.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("tax_applications.delete", err)
	}
	return nil
}

// FindByID fetches a single application.
func (r *ApplicationRepository) FindByID(ctx context.Context, applicationID string) (domain.TaxPlanningApplication, error) {
	if r == nil || r.base == nil {
		return domain.TaxPlanningApplication{}, errors.New("application repository not initialised")
	}
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return domain.TaxPlanningApplication{}, errors.New("application repository: application id is required")
	}
	doc, err := r.base.Get(ctx, applicationID)
	if err != nil {
		return domain.TaxPlanningApplication{}, err
	}
	return decodeApplicationDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// FindActiveByPAN returns the most recent non-rejected application for the
// PAN within a segment. A not-found error is returned when none exists.
func (r *ApplicationRepository) FindActiveByPAN(ctx context.Context, segment domain.TaxSegment, pan string) (domain.TaxPlanningApplication, error) {
	if r == nil || r.base == nil {
		return domain.TaxPlanningApplication{}, errors.New("application repository not initialised")
	}
	pan = strings.ToUpper(strings.TrimSpace(pan))
	if pan == "" {
		return domain.TaxPlanningApplication{}, errors.New("application repository: pan is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("pan", "==", pan)
		q = q.Where("segment", "==", string(segment))
		q = q.Where("status", "in", activeApplicationStatuses)
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		return q.Limit(1)
	})
	if err != nil {
		return domain.TaxPlanningApplication{}, err
	}
	if len(docs) == 0 {
		return domain.TaxPlanningApplication{}, pfirestore.WrapError(
			"tax_applications.find_active_by_pan",
			status.Error(codes.NotFound, "no active application for pan"),
		)
	}
	doc := docs[0]
	return decodeApplicationDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// List returns applications ordered by most recent submission, or by search
// key when a prefix search is requested.
func (r *ApplicationRepository) List(ctx context.Context, filter repositories.ApplicationListFilter) (domain.CursorPage[domain.TaxPlanningApplication], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.TaxPlanningApplication]{}, errors.New("application repository not initialised")
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
			return domain.CursorPage[domain.TaxPlanningApplication]{}, fmt.Errorf("application repository: invalid page token: %w", err)
		}
		switch {
		case orderBySearch && kind == cursorKindSearch:
			startAfter = []any{key, docID}
		case !orderBySearch && kind == cursorKindCreated:
			ts, err := time.Parse(time.RFC3339Nano, key)
			if err != nil {
				return domain.CursorPage[domain.TaxPlanningApplication]{}, fmt.Errorf("application repository: invalid page token: %w", err)
			}
			startAfter = []any{ts, docID}
		default:
			return domain.CursorPage[domain.TaxPlanningApplication]{}, errors.New("application repository: page token does not match filter")
		}
	}

	statusFilters := normaliseStatusStrings(applicationStatusesToStrings(filter.Status))
	email := strings.ToLower(strings.TrimSpace(filter.Email))
	pan := strings.ToUpper(strings.TrimSpace(filter.PAN))
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
		if pan != "" {
			q = q.Where("pan", "==", pan)
		}
		if userRef != "" {
			q = q.Where("userRef", "==", userRef)
		}

		if orderBySearch {
			q = q.Where("searchKey", ">=", searchPrefix).Where("searchKey", "<", searchPrefix+"")
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
		return domain.CursorPage[domain.TaxPlanningApplication]{}, err
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

	items := make([]domain.TaxPlanningApplication, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeApplicationDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}

	return domain.CursorPage[domain.TaxPlanningApplication]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// AttachDocument appends a document record to the application inside a
// transaction so concurrent uploads do not clobber each other. An existing
// record with the same asset ID is replaced.
func (r *ApplicationRepository) AttachDocument(ctx context.Context, applicationID string, document domain.ApplicationDocument) (domain.TaxPlanningApplication, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.TaxPlanningApplication{}, errors.New("application repository not initialised")
	}
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return domain.TaxPlanningApplication{}, errors.New("application repository: application id is required")
	}
	assetID := strings.TrimSpace(document.AssetID)
	if assetID == "" {
		return domain.TaxPlanningApplication{}, errors.New("application repository: document asset id is required")
	}

	entry := encodeApplicationDocumentEntry(document)
	if err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef, err := r.base.DocumentRef(ctx, applicationID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		var doc applicationDocument
		if err := snap.DataTo(&doc); err != nil {
			return err
		}

		replaced := false
		for i := range doc.Documents {
			if doc.Documents[i].AssetID == assetID {
				doc.Documents[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			doc.Documents = append(doc.Documents, entry)
		}
		if !document.CreatedAt.IsZero() {
			doc.UpdatedAt = document.CreatedAt.UTC()
		}
		return tx.Set(docRef, doc)
	}); err != nil {
		return domain.TaxPlanningApplication{}, err
	}

	return r.FindByID(ctx, applicationID)
}

// MarkDocumentUploaded records the upload completion time against the
// document entry. Already-uploaded entries keep their original timestamp.
func (r *ApplicationRepository) MarkDocumentUploaded(ctx context.Context, applicationID string, assetID string, uploadedAt time.Time) (domain.ApplicationDocument, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.ApplicationDocument{}, errors.New("application repository not initialised")
	}
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return domain.ApplicationDocument{}, errors.New("application repository: application id is required")
	}
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return domain.ApplicationDocument{}, errors.New("application repository: asset id is required")
	}

	var updated applicationDocumentEntry
	if err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef, err := r.base.DocumentRef(ctx, applicationID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		var doc applicationDocument
		if err := snap.DataTo(&doc); err != nil {
			return err
		}

		index := -1
		for i := range doc.Documents {
			if doc.Documents[i].AssetID == assetID {
				index = i
				break
			}
		}
		if index < 0 {
			return status.Error(codes.NotFound, "document not attached to application")
		}
		if doc.Documents[index].UploadedAt == nil {
			ts := uploadedAt.UTC()
			doc.Documents[index].UploadedAt = &ts
			doc.UpdatedAt = ts
		}
		updated = doc.Documents[index]
		return tx.Set(docRef, doc)
	}); err != nil {
		return domain.ApplicationDocument{}, err
	}

	return decodeApplicationDocumentEntry(updated), nil
}

// Count returns the number of applications matching the filter using a
// server-side aggregation.
func (r *ApplicationRepository) Count(ctx context.Context, filter repositories.ApplicationCountFilter) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("application repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	q := client.Collection(applicationsCollection).Query
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
		return 0, pfirestore.WrapError("tax_applications.count", err)
	}
	return aggregationInt(result, countAlias)
}

type applicationDocument struct {
	Segment   string                              `firestore:"segment"`
	FullName  string                              `firestore:"fullName"`
	Email     string                              `firestore:"email"`
	Phone     string                              `firestore:"phone"`
	PAN       string                              `firestore:"pan"`
	Status    string                              `firestore:"status"`
	Personal  *personalApplicationDetailsDocument `firestore:"personal,omitempty"`
	Business  *businessApplicationDetailsDocument `firestore:"business,omitempty"`
	Documents []applicationDocumentEntry          `firestore:"documents"`
	UserRef   *string                             `firestore:"userRef,omitempty"`
	SearchKey string                              `firestore:"searchKey,omitempty"`
	CreatedAt time.Time                           `firestore:"createdAt"`
	UpdatedAt time.Time                           `firestore:"updatedAt"`
}

type personalApplicationDetailsDocument struct {
	AnnualIncomeRange  string `firestore:"annualIncomeRange,omitempty"`
	EmploymentType     string `firestore:"employmentType,omitempty"`
	PreferredTaxRegime string `firestore:"preferredTaxRegime,omitempty"`
	AdditionalInfo     string `firestore:"additionalInfo,omitempty"`
}

type businessApplicationDetailsDocument struct {
	BusinessName      string   `firestore:"businessName,omitempty"`
	BusinessStructure string   `firestore:"businessStructure,omitempty"`
	GSTNumber         string   `firestore:"gstNumber,omitempty"`
	IndustryType      string   `firestore:"industryType,omitempty"`
	TurnoverRange     string   `firestore:"turnoverRange,omitempty"`
	EmployeeRange     string   `firestore:"employeeRange,omitempty"`
	ServicesRequired  []string `firestore:"servicesRequired,omitempty"`
	BusinessDetails   string   `firestore:"businessDetails,omitempty"`
}

type applicationDocumentEntry struct {
	AssetID     string     `firestore:"assetId"`
	FileName    string     `firestore:"fileName"`
	ContentType string     `firestore:"contentType"`
	SizeBytes   int64      `firestore:"sizeBytes"`
	StoragePath string     `firestore:"storagePath"`
	UploadedAt  *time.Time `firestore:"uploadedAt,omitempty"`
	CreatedAt   time.Time  `firestore:"createdAt"`
}

func encodeApplicationDocument(application domain.TaxPlanningApplication) applicationDocument {
	doc := applicationDocument{
		Segment:   strings.TrimSpace(string(application.Segment)),
		FullName:  strings.TrimSpace(application.FullName),
		Email:     strings.ToLower(strings.TrimSpace(application.Email)),
		Phone:     strings.TrimSpace(application.Phone),
		PAN:       strings.ToUpper(strings.TrimSpace(application.PAN)),
		Status:    strings.TrimSpace(string(application.Status)),
		UserRef:   normalizeOptionalString(application.UserRef),
		SearchKey: strings.TrimSpace(application.SearchKey),
		CreatedAt: application.CreatedAt.UTC(),
		UpdatedAt: application.UpdatedAt.UTC(),
	}
	if application.Personal != nil {
		doc.Personal = &personalApplicationDetailsDocument{
			AnnualIncomeRange:  strings.TrimSpace(application.Personal.AnnualIncomeRange),
			EmploymentType:     strings.TrimSpace(string(application.Personal.EmploymentType)),
			PreferredTaxRegime: strings.TrimSpace(string(application.Personal.PreferredTaxRegime)),
			AdditionalInfo:     strings.TrimSpace(application.Personal.AdditionalInfo),
		}
	}
	if application.Business != nil {
		doc.Business = &businessApplicationDetailsDocument{
			BusinessName:      strings.TrimSpace(application.Business.BusinessName),
			BusinessStructure: strings.TrimSpace(string(application.Business.BusinessStructure)),
			GSTNumber:         strings.ToUpper(strings.TrimSpace(application.Business.GSTNumber)),
			IndustryType:      strings.TrimSpace(application.Business.IndustryType),
			TurnoverRange:     strings.TrimSpace(application.Business.TurnoverRange),
			EmployeeRange:     strings.TrimSpace(application.Business.EmployeeRange),
			ServicesRequired:  cloneStringValues(application.Business.ServicesRequired),
			BusinessDetails:   strings.TrimSpace(application.Business.BusinessDetails),
		}
	}
	if len(application.Documents) > 0 {
		doc.Documents = make([]applicationDocumentEntry, 0, len(application.Documents))
		for _, entry := range application.Documents {
			doc.Documents = append(doc.Documents, encodeApplicationDocumentEntry(entry))
		}
	}
	return doc
}

func decodeApplicationDocument(id string, doc applicationDocument, createdAt, updatedAt time.Time) domain.TaxPlanningApplication {
	application := domain.TaxPlanningApplication{
		ID:        strings.TrimSpace(id),
		Segment:   domain.TaxSegment(strings.TrimSpace(doc.Segment)),
		FullName:  strings.TrimSpace(doc.FullName),
		Email:     strings.TrimSpace(doc.Email),
		Phone:     strings.TrimSpace(doc.Phone),
		PAN:       strings.ToUpper(strings.TrimSpace(doc.PAN)),
		Status:    domain.ApplicationStatus(strings.TrimSpace(doc.Status)),
		UserRef:   normalizeOptionalString(doc.UserRef),
		SearchKey: strings.TrimSpace(doc.SearchKey),
		CreatedAt: chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt: chooseTime(doc.UpdatedAt, updatedAt),
	}
	if doc.Personal != nil {
		application.Personal = &domain.PersonalApplicationDetails{
			AnnualIncomeRange:  strings.TrimSpace(doc.Personal.AnnualIncomeRange),
			EmploymentType:     domain.EmploymentType(strings.TrimSpace(doc.Personal.EmploymentType)),
			PreferredTaxRegime: domain.TaxRegime(strings.TrimSpace(doc.Personal.PreferredTaxRegime)),
			AdditionalInfo:     strings.TrimSpace(doc.Personal.AdditionalInfo),
		}
	}
	if doc.Business != nil {
		application.Business = &domain.BusinessApplicationDetails{
			BusinessName:      strings.TrimSpace(doc.Business.BusinessName),
			BusinessStructure: domain.BusinessType(strings.TrimSpace(doc.Business.BusinessStructure)),
			GSTNumber:         strings.ToUpper(strings.TrimSpace(doc.Business.GSTNumber)),
			IndustryType:      strings.TrimSpace(doc.Business.IndustryType),
			TurnoverRange:     strings.TrimSpace(doc.Business.TurnoverRange),
			EmployeeRange:     strings.TrimSpace(doc.Business.EmployeeRange),
			ServicesRequired:  cloneStringValues(doc.Business.ServicesRequired),
			BusinessDetails:   strings.TrimSpace(doc.Business.BusinessDetails),
		}
	}
	if len(doc.Documents) > 0 {
		application.Documents = make([]domain.ApplicationDocument, 0, len(doc.Documents))
		for _, entry := range doc.Documents {
			application.Documents = append(application.Documents, decodeApplicationDocumentEntry(entry))
		}
	}
	return application
}

func encodeApplicationDocumentEntry(document domain.ApplicationDocument) applicationDocumentEntry {
	return applicationDocumentEntry{
		AssetID:     strings.TrimSpace(document.AssetID),
		FileName:    strings.TrimSpace(document.FileName),
		ContentType: strings.TrimSpace(document.ContentType),
		SizeBytes:   document.SizeBytes,
		StoragePath: strings.TrimSpace(document.StoragePath),
		UploadedAt:  normalizeTimePointer(document.UploadedAt),
		CreatedAt:   document.CreatedAt.UTC(),
	}
}

func decodeApplicationDocumentEntry(entry applicationDocumentEntry) domain.ApplicationDocument {
	return domain.ApplicationDocument{
		AssetID:     strings.TrimSpace(entry.AssetID),
		FileName:    strings.TrimSpace(entry.FileName),
		ContentType: strings.TrimSpace(entry.ContentType),
		SizeBytes:   entry.SizeBytes,
		StoragePath: strings.TrimSpace(entry.StoragePath),
		UploadedAt:  normalizeTimePointer(entry.UploadedAt),
		CreatedAt:   entry.CreatedAt.UTC(),
	}
}

func applicationStatusesToStrings(statuses []domain.ApplicationStatus) []string {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]string, 0, len(statuses))
	for _, value := range statuses {
		out = append(out, string(value))
	}
	return out
}

func cloneStringValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
