package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// UserAccount captures a registered customer or back-office user.
type UserAccount struct {
	ID            string
	Email         string
	FullName      string
	Phone         string
	PasswordHash  string
	Roles         []string
	EmailVerified bool
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastLoginAt   *time.Time
}

// ConsultationStatus enumerates lifecycle states for tax consultations.
type ConsultationStatus string

const (
	// ConsultationStatusPending indicates the booking awaits scheduling.
	ConsultationStatusPending ConsultationStatus = "pending"
	// ConsultationStatusScheduled indicates a consultant slot has been fixed.
	ConsultationStatusScheduled ConsultationStatus = "scheduled"
	// ConsultationStatusInProgress indicates an ongoing engagement (business segment only).
	ConsultationStatusInProgress ConsultationStatus = "in-progress"
	// ConsultationStatusCompleted indicates the consultation has concluded.
	ConsultationStatusCompleted ConsultationStatus = "completed"
	// ConsultationStatusCancelled indicates the booking was cancelled.
	ConsultationStatusCancelled ConsultationStatus = "cancelled"
)

// TaxConsultation is a booked advisory session for either service segment.
type TaxConsultation struct {
	ID            string
	Segment       TaxSegment
	FullName      string
	Email         string
	Phone         string
	PreferredDate string
	PreferredTime string
	Notes         string
	Status        ConsultationStatus
	ConsultantRef *string
	UserRef       *string
	SearchKey     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CancelledAt   *time.Time
}

// ApplicationStatus enumerates review states for planning applications.
type ApplicationStatus string

const (
	// ApplicationStatusSubmitted indicates the form has been received.
	ApplicationStatusSubmitted ApplicationStatus = "submitted"
	// ApplicationStatusUnderReview indicates an analyst is assessing the case.
	ApplicationStatusUnderReview ApplicationStatus = "under-review"
	// ApplicationStatusApproved indicates the engagement has been accepted.
	ApplicationStatusApproved ApplicationStatus = "approved"
	// ApplicationStatusRejected indicates the engagement was declined.
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

// EmploymentType enumerates employment categories on personal applications.
type EmploymentType string

const (
	EmploymentTypeSalaried     EmploymentType = "salaried"
	EmploymentTypeSelfEmployed EmploymentType = "self-employed"
	EmploymentTypeFreelancer   EmploymentType = "freelancer"
	EmploymentTypeBusiness     EmploymentType = "business"
	EmploymentTypeRetired      EmploymentType = "retired"
)

// TaxRegime enumerates the regime preference on personal applications.
type TaxRegime string

const (
	TaxRegimeOld     TaxRegime = "old"
	TaxRegimeNew     TaxRegime = "new"
	TaxRegimeNotSure TaxRegime = "not-sure"
)

// PersonalApplicationDetails holds the personal-segment form fields.
type PersonalApplicationDetails struct {
	AnnualIncomeRange  string
	EmploymentType     EmploymentType
	PreferredTaxRegime TaxRegime
	AdditionalInfo     string
}

// BusinessApplicationDetails holds the business-segment form fields.
type BusinessApplicationDetails struct {
	BusinessName      string
	BusinessStructure BusinessType
	GSTNumber         string
	IndustryType      string
	TurnoverRange     string
	EmployeeRange     string
	ServicesRequired  []string
	BusinessDetails   string
}

// ApplicationDocument records a supporting file uploaded against an application.
type ApplicationDocument struct {
	AssetID     string
	FileName    string
	ContentType string
	SizeBytes   int64
	StoragePath string
	UploadedAt  *time.Time
	CreatedAt   time.Time
}

// TaxPlanningApplication is a service engagement request keyed by PAN.
// At most one active application may exist per segment per PAN.
type TaxPlanningApplication struct {
	ID        string
	Segment   TaxSegment
	FullName  string
	Email     string
	Phone     string
	PAN       string
	Status    ApplicationStatus
	Personal  *PersonalApplicationDetails
	Business  *BusinessApplicationDetails
	Documents []ApplicationDocument
	UserRef   *string
	SearchKey string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TaxCalculation is a persisted calculator run kept for audit and follow-up.
// Exactly one of Personal or Business is set, matching Segment.
type TaxCalculation struct {
	ID        string
	Segment   TaxSegment
	Personal  *PersonalTaxAssessment
	Business  *BusinessTaxAssessment
	Name      string
	Email     string
	Phone     string
	UserRef   *string
	CreatedAt time.Time
}

// StatusBreakdown aggregates record counts grouped by lifecycle status.
type StatusBreakdown struct {
	Total    int64
	ByStatus map[string]int64
}

// ActivityBreakdown aggregates record counts over recent submission windows.
type ActivityBreakdown struct {
	Total     int64
	Today     int64
	ThisWeek  int64
	ThisMonth int64
}

// TaxServiceStatistics is the admin dashboard snapshot for one segment.
type TaxServiceStatistics struct {
	Segment          TaxSegment
	Consultations    StatusBreakdown
	Applications     StatusBreakdown
	Calculations     ActivityBreakdown
	ProjectedSavings int64
	GeneratedAt      time.Time
}

// BusinessTaxInformation is the static guidance payload served publicly.
type BusinessTaxInformation struct {
	TaxRates          []BusinessTaxRateInfo
	PresumptiveScheme PresumptiveSchemeInfo
	DeductionTips     []string
	UpdatedForFY      string
}

// BusinessTaxRateInfo describes one structure's headline rate.
type BusinessTaxRateInfo struct {
	BusinessType BusinessType
	Description  string
	RatePercent  float64
	CessPercent  float64
}

// PresumptiveSchemeInfo summarises the section 44AD presumptive regime.
type PresumptiveSchemeInfo struct {
	Section           string
	TurnoverLimit     float64
	DeemedProfitRate  float64
	EligibleStructure BusinessType
	Notes             string
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// AuditLogEntry stores normalized audit information for admin use.
type AuditLogEntry struct {
	ID        string
	Actor     string
	ActorType string
	Action    string
	TargetRef string
	Metadata  map[string]any
	Diff      map[string]any
	IPHash    string
	UserAgent string
	Severity  string
	RequestID string
	CreatedAt time.Time
}

// SignedAssetResponse returns signed URL payloads for upload/download flows.
type SignedAssetResponse struct {
	AssetID     string
	URL         string
	StoragePath string
	ExpiresAt   time.Time
	Method      string
	Headers     map[string]string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
