package repositories

import (
	"context"
	"time"

	domain "github.com/rupeeplan/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Users() UserRepository
	Consultations() ConsultationRepository
	Applications() ApplicationRepository
	Calculations() CalculationRepository
	Assets() AssetRepository
	AuditLogs() AuditLogRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserRepository stores account documents keyed by id with a unique email
// constraint. Insert must fail with a conflict error when the email is
// already registered.
type UserRepository interface {
	Insert(ctx context.Context, account domain.UserAccount) error
	Update(ctx context.Context, account domain.UserAccount) (domain.UserAccount, error)
	FindByID(ctx context.Context, userID string) (domain.UserAccount, error)
	FindByEmail(ctx context.Context, email string) (domain.UserAccount, error)
}

// ConsultationRepository persists consultation bookings and lifecycle state.
type ConsultationRepository interface {
	Insert(ctx context.Context, consultation domain.TaxConsultation) error
	Update(ctx context.Context, consultation domain.TaxConsultation) (domain.TaxConsultation, error)
	Delete(ctx context.Context, consultationID string) error
	FindByID(ctx context.Context, consultationID string) (domain.TaxConsultation, error)
	List(ctx context.Context, filter ConsultationListFilter) (domain.CursorPage[domain.TaxConsultation], error)
	Count(ctx context.Context, filter ConsultationCountFilter) (int64, error)
}

// ApplicationRepository persists planning applications, their embedded
// document references, and the PAN uniqueness lookup used on submission.
type ApplicationRepository interface {
	Insert(ctx context.Context, application domain.TaxPlanningApplication) error
	Update(ctx context.Context, application domain.TaxPlanningApplication) (domain.TaxPlanningApplication, error)
	Delete(ctx context.Context, applicationID string) error
	FindByID(ctx context.Context, applicationID string) (domain.TaxPlanningApplication, error)
	// FindActiveByPAN returns the most recent non-rejected application for the
	// segment/PAN pair, or a RepositoryError with IsNotFound when none exists.
	FindActiveByPAN(ctx context.Context, segment domain.TaxSegment, pan string) (domain.TaxPlanningApplication, error)
	List(ctx context.Context, filter ApplicationListFilter) (domain.CursorPage[domain.TaxPlanningApplication], error)
	AttachDocument(ctx context.Context, applicationID string, doc domain.ApplicationDocument) (domain.TaxPlanningApplication, error)
	MarkDocumentUploaded(ctx context.Context, applicationID string, assetID string, uploadedAt time.Time) (domain.ApplicationDocument, error)
	Count(ctx context.Context, filter ApplicationCountFilter) (int64, error)
}

// CalculationRepository stores calculator invocations for history and reporting.
type CalculationRepository interface {
	Insert(ctx context.Context, calculation domain.TaxCalculation) error
	FindByID(ctx context.Context, calculationID string) (domain.TaxCalculation, error)
	List(ctx context.Context, filter CalculationListFilter) (domain.CursorPage[domain.TaxCalculation], error)
	Count(ctx context.Context, filter CalculationCountFilter) (int64, error)
	SumProjectedSavings(ctx context.Context, filter CalculationCountFilter) (int64, error)
}

// AssetRepository handles metadata synchronized with Cloud Storage objects.
type AssetRepository interface {
	CreateSignedUpload(ctx context.Context, cmd SignedUploadRecord) (domain.SignedAssetResponse, error)
	CreateSignedDownload(ctx context.Context, cmd SignedDownloadRecord) (domain.SignedAssetResponse, error)
	MarkUploaded(ctx context.Context, assetID string, actorRef string, metadata map[string]any) error
}

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type ConsultationListFilter struct {
	Segment    *domain.TaxSegment
	Status     []domain.ConsultationStatus
	Email      string
	UserRef    string
	Search     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type ConsultationCountFilter struct {
	Segment      *domain.TaxSegment
	Status       *domain.ConsultationStatus
	CreatedAfter *time.Time
}

type ApplicationListFilter struct {
	Segment    *domain.TaxSegment
	Status     []domain.ApplicationStatus
	Email      string
	PAN        string
	UserRef    string
	Search     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type ApplicationCountFilter struct {
	Segment      *domain.TaxSegment
	Status       *domain.ApplicationStatus
	CreatedAfter *time.Time
}

type CalculationListFilter struct {
	Segment    *domain.TaxSegment
	Email      string
	UserRef    string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type CalculationCountFilter struct {
	Segment      *domain.TaxSegment
	CreatedAfter *time.Time
}

type AuditLogFilter struct {
	TargetRef  string
	Actor      string
	ActorType  string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type SignedUploadRecord struct {
	ActorRef       string
	ApplicationRef *string
	Kind           string
	FileName       string
	ContentType    string
	SizeBytes      int64
}

type SignedDownloadRecord struct {
	ActorRef string
	AssetID  string
}
