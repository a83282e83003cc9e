package services

import (
	"context"
	"time"

	domain "github.com/rupeeplan/api/internal/domain"
	"github.com/rupeeplan/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination                 = domain.Pagination
	SortOrder                  = domain.SortOrder
	TaxSegment                 = domain.TaxSegment
	BusinessType               = domain.BusinessType
	PersonalTaxInput           = domain.PersonalTaxInput
	BusinessTaxInput           = domain.BusinessTaxInput
	PersonalTaxAssessment      = domain.PersonalTaxAssessment
	BusinessTaxAssessment      = domain.BusinessTaxAssessment
	TaxCalculation             = domain.TaxCalculation
	TaxConsultation            = domain.TaxConsultation
	ConsultationStatus         = domain.ConsultationStatus
	TaxPlanningApplication     = domain.TaxPlanningApplication
	ApplicationStatus          = domain.ApplicationStatus
	ApplicationDocument        = domain.ApplicationDocument
	PersonalApplicationDetails = domain.PersonalApplicationDetails
	BusinessApplicationDetails = domain.BusinessApplicationDetails
	TaxServiceStatistics       = domain.TaxServiceStatistics
	BusinessTaxInformation     = domain.BusinessTaxInformation
	UserAccount                = domain.UserAccount
	SystemHealthReport         = domain.SystemHealthReport
	AuditLogEntry              = domain.AuditLogEntry
	SignedAssetResponse        = domain.SignedAssetResponse
)

// TaxCalculatorService evaluates the personal and business savings projection
// models. Implementations are pure functions of their inputs and safe for
// unbounded concurrent use.
type TaxCalculatorService interface {
	ComputePersonalSavings(ctx context.Context, input PersonalTaxInput) (PersonalTaxAssessment, error)
	ComputeBusinessSavings(ctx context.Context, input BusinessTaxInput) (BusinessTaxAssessment, error)
}

// CalculationService runs the calculators and persists each invocation for
// history and admin reporting.
type CalculationService interface {
	CalculatePersonal(ctx context.Context, cmd PersonalCalculationCommand) (TaxCalculation, error)
	CalculateBusiness(ctx context.Context, cmd BusinessCalculationCommand) (TaxCalculation, error)
	ListCalculations(ctx context.Context, filter CalculationListFilter) (domain.CursorPage[TaxCalculation], error)
}

// ConsultationService manages consultation bookings and their lifecycle.
type ConsultationService interface {
	Book(ctx context.Context, cmd BookConsultationCommand) (TaxConsultation, error)
	GetConsultation(ctx context.Context, consultationID string) (TaxConsultation, error)
	ListConsultations(ctx context.Context, filter ConsultationListFilter) (domain.CursorPage[TaxConsultation], error)
	Cancel(ctx context.Context, cmd CancelConsultationCommand) (TaxConsultation, error)
	UpdateStatus(ctx context.Context, cmd ConsultationStatusCommand) (TaxConsultation, error)
	AssignConsultant(ctx context.Context, cmd AssignConsultantCommand) (TaxConsultation, error)
	Delete(ctx context.Context, cmd DeleteConsultationCommand) error
}

// ApplicationService handles tax planning applications, their supporting
// documents, and admin review flows.
type ApplicationService interface {
	Submit(ctx context.Context, cmd SubmitApplicationCommand) (TaxPlanningApplication, error)
	GetApplication(ctx context.Context, applicationID string) (TaxPlanningApplication, error)
	ListApplications(ctx context.Context, filter ApplicationListFilter) (domain.CursorPage[TaxPlanningApplication], error)
	UpdateStatus(ctx context.Context, cmd ApplicationStatusCommand) (TaxPlanningApplication, error)
	RequestDocumentUpload(ctx context.Context, cmd DocumentUploadCommand) (SignedAssetResponse, error)
	CompleteDocumentUpload(ctx context.Context, cmd CompleteDocumentCommand) (ApplicationDocument, error)
	RequestDocumentDownload(ctx context.Context, cmd DocumentDownloadCommand) (SignedAssetResponse, error)
	Delete(ctx context.Context, cmd DeleteApplicationCommand) error
}

// StatisticsService assembles dashboard counters across consultations,
// applications, and calculator activity.
type StatisticsService interface {
	Overview(ctx context.Context, query StatisticsQuery) (TaxServiceStatistics, error)
}

// AccountService owns registration, login, and email verification.
type AccountService interface {
	Register(ctx context.Context, cmd RegisterAccountCommand) (UserAccount, error)
	Login(ctx context.Context, cmd LoginCommand) (Session, error)
	RequestVerification(ctx context.Context, cmd RequestVerificationCommand) error
	VerifyEmail(ctx context.Context, cmd VerifyEmailCommand) (UserAccount, error)
	GetAccount(ctx context.Context, userID string) (UserAccount, error)
}

// NotificationService composes and delivers outbound mail, both synchronously
// (verification codes) and from queued notification jobs.
type NotificationService interface {
	SendVerificationCode(ctx context.Context, cmd VerificationCodeCommand) error
	Dispatch(ctx context.Context, message NotificationJobMessage) error
}

// ContentService serves static editorial content such as the business tax
// information sheet.
type ContentService interface {
	BusinessTaxInformation(ctx context.Context) (BusinessTaxInformation, error)
}

// SystemService aggregates utility endpoints (health checks, audit logs).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	ListAuditLogs(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// AuditLogService centralizes immutable audit log persistence and retrieval.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// Command and DTO definitions ------------------------------------------------

type PersonalCalculationCommand struct {
	Input    PersonalTaxInput
	FullName string
	Email    string
	Phone    string
	UserRef  *string
}

type BusinessCalculationCommand struct {
	Input    BusinessTaxInput
	FullName string
	Email    string
	Phone    string
	UserRef  *string
}

type CalculationListFilter = repositories.CalculationListFilter

type BookConsultationCommand struct {
	Segment       TaxSegment
	FullName      string
	Email         string
	Phone         string
	PreferredDate string
	PreferredTime string
	Notes         string
	UserRef       *string
}

type ConsultationListFilter = repositories.ConsultationListFilter

type CancelConsultationCommand struct {
	ConsultationID string
	ActorRef       string
	ActorEmail     string
	Reason         string
}

type ConsultationStatusCommand struct {
	ConsultationID string
	Status         ConsultationStatus
	ActorRef       string
}

type AssignConsultantCommand struct {
	ConsultationID string
	ConsultantRef  string
	ActorRef       string
}

type DeleteConsultationCommand struct {
	ConsultationID string
	ActorRef       string
}

type SubmitApplicationCommand struct {
	Segment  TaxSegment
	FullName string
	Email    string
	Phone    string
	PAN      string
	Personal *PersonalApplicationDetails
	Business *BusinessApplicationDetails
	UserRef  *string
}

type ApplicationListFilter = repositories.ApplicationListFilter

type ApplicationStatusCommand struct {
	ApplicationID string
	Status        ApplicationStatus
	ActorRef      string
}

type DeleteApplicationCommand struct {
	ApplicationID string
	ActorRef      string
}

type DocumentUploadCommand struct {
	ApplicationID string
	ActorRef      string
	ActorEmail    string
	FileName      string
	ContentType   string
	SizeBytes     int64
}

type CompleteDocumentCommand struct {
	ApplicationID string
	AssetID       string
	ActorRef      string
	ActorEmail    string
}

type DocumentDownloadCommand struct {
	ApplicationID string
	AssetID       string
	ActorRef      string
}

// StatisticsQuery scopes the dashboard overview. An empty segment aggregates
// both personal and business activity.
type StatisticsQuery struct {
	Segment TaxSegment
}

type RegisterAccountCommand struct {
	Email    string
	Password string
	FullName string
	Phone    string
}

type LoginCommand struct {
	Email    string
	Password string
}

type RequestVerificationCommand struct {
	Email string
}

type VerifyEmailCommand struct {
	Email string
	Code  string
}

// Session carries an issued bearer token together with the authenticated account.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Account   UserAccount
}

type VerificationCodeCommand struct {
	Email     string
	FullName  string
	Code      string
	ExpiresIn time.Duration
}

// AuditLogRecord defines the payload accepted by the audit writer service.
type AuditLogRecord struct {
	Actor                 string
	ActorType             string
	Action                string
	TargetRef             string
	Severity              string
	RequestID             string
	OccurredAt            time.Time
	Metadata              map[string]any
	Diff                  map[string]AuditLogDiff
	SensitiveMetadataKeys []string
	SensitiveDiffKeys     []string
	IPAddress             string
	UserAgent             string
}

// AuditLogDiff captures before/after values for tracked fields.
type AuditLogDiff struct {
	Before any
	After  any
}

type AuditLogFilter struct {
	TargetRef  string
	Actor      string
	ActorType  string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination Pagination
}
