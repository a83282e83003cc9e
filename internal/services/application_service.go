package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/rupeeplan/api/internal/domain"
	"github.com/rupeeplan/api/internal/platform/textutil"
	"github.com/rupeeplan/api/internal/repositories"
)

const (
	applicationIDPrefix        = "tapp_"
	additionalInfoMaxLength    = 2000
	businessDetailsMaxLength   = 1000
	businessNameMinLength      = 2
	businessNameMaxLength      = 200
	applicationDocumentMaxSize = 10 << 20
	documentAssetKind          = "documents"
)

var (
	// ErrApplicationInvalidInput indicates validation failures for application operations.
	ErrApplicationInvalidInput = errors.New("application: invalid input")
	// ErrApplicationNotFound indicates an application could not be located.
	ErrApplicationNotFound = errors.New("application: not found")
	// ErrApplicationUnauthorized indicates the actor may not access the application.
	ErrApplicationUnauthorized = errors.New("application: unauthorized")
	// ErrApplicationConflict signals a duplicate active application for the PAN.
	ErrApplicationConflict = errors.New("application: conflict")
	// ErrApplicationInvalidState is returned when an invalid status transition is attempted.
	ErrApplicationInvalidState = errors.New("application: invalid state transition")
)

var gstinPattern = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][A-Z0-9]Z[A-Z0-9]$`)

// applicationTransitions lists the allowed review moves. Approved and rejected
// are terminal.
var applicationTransitions = map[domain.ApplicationStatus][]domain.ApplicationStatus{
	domain.ApplicationStatusSubmitted: {
		domain.ApplicationStatusUnderReview,
		domain.ApplicationStatusApproved,
		domain.ApplicationStatusRejected,
	},
	domain.ApplicationStatusUnderReview: {
		domain.ApplicationStatusApproved,
		domain.ApplicationStatusRejected,
	},
}

var personalIncomeRanges = map[string]struct{}{
	"below-5":  {},
	"5-10":     {},
	"10-20":    {},
	"20-50":    {},
	"above-50": {},
}

var businessTurnoverRanges = map[string]struct{}{
	"below-20":   {},
	"20-1cr":     {},
	"1-5cr":      {},
	"5-10cr":     {},
	"10-50cr":    {},
	"above-50cr": {},
}

var businessEmployeeRanges = map[string]struct{}{
	"0-10":      {},
	"11-50":     {},
	"51-100":    {},
	"101-500":   {},
	"above-500": {},
}

var businessIndustryTypes = map[string]struct{}{
	"manufacturing": {},
	"it-services":   {},
	"retail":        {},
	"construction":  {},
	"healthcare":    {},
	"education":     {},
	"hospitality":   {},
	"finance":       {},
	"other":         {},
}

// documentUploadPolicy pairs the accepted content types with the size ceiling
// for one file extension.
type documentUploadPolicy struct {
	contentTypes []string
	maxSize      int64
}

var documentUploadPolicies = map[string]documentUploadPolicy{
	".pdf":  {contentTypes: []string{"application/pdf"}, maxSize: applicationDocumentMaxSize},
	".png":  {contentTypes: []string{"image/png"}, maxSize: applicationDocumentMaxSize},
	".jpg":  {contentTypes: []string{"image/jpeg", "image/jpg"}, maxSize: applicationDocumentMaxSize},
	".jpeg": {contentTypes: []string{"image/jpeg", "image/jpg"}, maxSize: applicationDocumentMaxSize},
}

// ApplicationServiceDeps bundles collaborators required to construct an ApplicationService.
type ApplicationServiceDeps struct {
	Applications  repositories.ApplicationRepository
	Assets        repositories.AssetRepository
	Clock         func() time.Time
	IDGenerator   func() string
	Sanitizer     func(string) string
	Notifications NotificationPublisher
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type applicationService struct {
	applications  repositories.ApplicationRepository
	assets        repositories.AssetRepository
	clock         func() time.Time
	newID         func() string
	sanitize      func(string) string
	notifications NotificationPublisher
	logger        func(context.Context, string, map[string]any)
}

// NewApplicationService wires dependencies into a concrete ApplicationService implementation.
func NewApplicationService(deps ApplicationServiceDeps) (ApplicationService, error) {
	if deps.Applications == nil {
		return nil, errors.New("application service: application repository is required")
	}
	if deps.Assets == nil {
		return nil, errors.New("application service: asset repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return applicationIDPrefix + ulid.Make().String()
		}
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = sanitizeFreeText
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &applicationService{
		applications:  deps.Applications,
		assets:        deps.Assets,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:         idGen,
		sanitize:      sanitize,
		notifications: deps.Notifications,
		logger:        logger,
	}, nil
}

func (s *applicationService) Submit(ctx context.Context, cmd SubmitApplicationCommand) (TaxPlanningApplication, error) {
	segment, err := normalizeTaxSegment(cmd.Segment)
	if err != nil {
		return TaxPlanningApplication{}, fmt.Errorf("%w: %v", ErrApplicationInvalidInput, err)
	}
	fullName, err := normalizePersonName(cmd.FullName)
	if err != nil {
		return TaxPlanningApplication{}, fmt.Errorf("%w: %v", ErrApplicationInvalidInput, err)
	}
	email, err := normalizeEmailAddress(cmd.Email)
	if err != nil {
		return TaxPlanningApplication{}, fmt.Errorf("%w: %v", ErrApplicationInvalidInput, err)
	}
	phone, err := normalizePhoneNumber(cmd.Phone)
	if err != nil {
		return TaxPlanningApplication{}, fmt.Errorf("%w: %v", ErrApplicationInvalidInput, err)
	}
	pan, err := normalizePAN(cmd.PAN)
	if err != nil {
		return TaxPlanningApplication{}, fmt.Errorf("%w: %v", ErrApplicationInvalidInput, err)
	}

	var (
		personal *domain.PersonalApplicationDetails
		business *domain.BusinessApplicationDetails
	)
	switch segment {
	case domain.TaxSegmentPersonal:
		if cmd.Personal == nil || cmd.Business != nil {
			return TaxPlanningApplication{}, fmt.Errorf("%w: personal applications require personal details only", ErrApplicationInvalidInput)
		}
		personal, err = s.normalizePersonalDetails(cmd.Personal)
	case domain.TaxSegmentBusiness:
		if cmd.Business == nil || cmd.Personal != nil {
			return TaxPlanningApplication{}, fmt.Errorf("%w: business applications require business details only", ErrApplicationInvalidInput)
		}
		business, err = s.normalizeBusinessDetails(cmd.Business)
	}
	if err != nil {
		return TaxPlanningApplication{}, err
	}

	if err := s.ensureNoActiveApplication(ctx, segment, pan); err != nil {
		return TaxPlanningApplication{}, err
	}

	now := s.now()
	application := domain.TaxPlanningApplication{
		ID:        s.newID(),
		Segment:   segment,
		FullName:  fullName,
		Email:     email,
		Phone:     phone,
		PAN:       pan,
		Status:    domain.ApplicationStatusSubmitted,
		Personal:  personal,
		Business:  business,
		UserRef:   normalizeOptionalRef(cmd.UserRef),
		SearchKey: textutil.SearchKey(fullName, email, pan),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.applications.Insert(ctx, application); err != nil {
		return TaxPlanningApplication{}, s.mapApplicationError(err)
	}

	s.notifyStatus(ctx, application)

	return application, nil
}

func (s *applicationService) GetApplication(ctx context.Context, applicationID string) (TaxPlanningApplication, error) {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return TaxPlanningApplication{}, fmt.Errorf("%w: application id is required", ErrApplicationInvalidInput)
	}
	application, err := s.applications.FindByID(ctx, applicationID)
	if err != nil {
		return TaxPlanningApplication{}, s.mapApplicationError(err)
	}
	return application, nil
}

func (s *applicationService) ListApplications(ctx context.Context, filter ApplicationListFilter) (domain.CursorPage[TaxPlanningApplication], error) {
	filter.Pagination = normalizePagination(filter.Pagination)
	page, err := s.applications.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[TaxPlanningApplication]{}, s.mapApplicationError(err)
	}
	return page, nil
}

func (s *applicationService) UpdateStatus(ctx context.Context, cmd ApplicationStatusCommand) (TaxPlanningApplication, error) {
	applicationID := strings.TrimSpace(cmd.ApplicationID)
	if applicationID == "" {
		return TaxPlanningApplication{}, fmt.Errorf("%w: application id is required", ErrApplicationInvalidInput)
	}
	if strings.TrimSpace(cmd.ActorRef) == "" {
		return TaxPlanningApplication{}, fmt.Errorf("%w: actor ref is required", ErrApplicationInvalidInput)
	}
	target := domain.ApplicationStatus(strings.ToLower(strings.TrimSpace(string(cmd.Status))))
	switch target {
	case domain.ApplicationStatusSubmitted,
		domain.ApplicationStatusUnderReview,
		domain.ApplicationStatusApproved,
		domain.ApplicationStatusRejected:
	default:
		return TaxPlanningApplication{}, fmt.Errorf("%w: unknown status %q", ErrApplicationInvalidInput, cmd.Status)
	}

	application, err := s.applications.FindByID(ctx, applicationID)
	if err != nil {
		return TaxPlanningApplication{}, s.mapApplicationError(err)
	}

	if application.Status == target {
		return application, nil
	}
	if !applicationTransitionAllowed(application.Status, target) {
		return TaxPlanningApplication{}, fmt.Errorf("%w: cannot transition from %s to %s", ErrApplicationInvalidState, application.Status, target)
	}

	application.Status = target
	application.UpdatedAt = s.now()

	updated, err := s.applications.Update(ctx, application)
	if err != nil {
		return TaxPlanningApplication{}, s.mapApplicationError(err)
	}

	s.logger(ctx, "application.status_changed", map[string]any{
		"applicationId": updated.ID,
		"status":        string(updated.Status),
		"actorRef":      strings.TrimSpace(cmd.ActorRef),
	})
	s.notifyStatus(ctx, updated)

	return updated, nil
}

func (s *applicationService) RequestDocumentUpload(ctx context.Context, cmd DocumentUploadCommand) (SignedAssetResponse, error) {
	applicationID := strings.TrimSpace(cmd.ApplicationID)
	if applicationID == "" {
		return SignedAssetResponse{}, fmt.Errorf("%w: application id is required", ErrApplicationInvalidInput)
	}
	actorRef := strings.TrimSpace(cmd.ActorRef)
	actorEmail := strings.ToLower(strings.TrimSpace(cmd.ActorEmail))
	if actorRef == "" && actorEmail == "" {
		return SignedAssetResponse{}, fmt.Errorf("%w: actor is required", ErrApplicationInvalidInput)
	}

	fileName := strings.TrimSpace(cmd.FileName)
	if fileName == "" {
		return SignedAssetResponse{}, fmt.Errorf("%w: file name is required", ErrApplicationInvalidInput)
	}
	policy, ok := documentUploadPolicies[strings.ToLower(filepath.Ext(fileName))]
	if !ok {
		return SignedAssetResponse{}, fmt.Errorf("%w: file type %q is not supported", ErrApplicationInvalidInput, filepath.Ext(fileName))
	}
	contentType := strings.ToLower(strings.TrimSpace(cmd.ContentType))
	if !policy.allows(contentType) {
		return SignedAssetResponse{}, fmt.Errorf("%w: content type %q does not match the file extension", ErrApplicationInvalidInput, cmd.ContentType)
	}
	if cmd.SizeBytes <= 0 {
		return SignedAssetResponse{}, fmt.Errorf("%w: file size must be positive", ErrApplicationInvalidInput)
	}
	if cmd.SizeBytes > policy.maxSize {
		return SignedAssetResponse{}, fmt.Errorf("%w: file exceeds the %d byte limit", ErrApplicationInvalidInput, policy.maxSize)
	}

	application, err := s.applications.FindByID(ctx, applicationID)
	if err != nil {
		return SignedAssetResponse{}, s.mapApplicationError(err)
	}
	if !applicationBelongsTo(application, actorRef, actorEmail) {
		return SignedAssetResponse{}, ErrApplicationUnauthorized
	}
	if application.Status == domain.ApplicationStatusRejected {
		return SignedAssetResponse{}, fmt.Errorf("%w: rejected applications cannot accept documents", ErrApplicationInvalidState)
	}

	signed, err := s.assets.CreateSignedUpload(ctx, repositories.SignedUploadRecord{
		ActorRef:       actorRef,
		ApplicationRef: &application.ID,
		Kind:           documentAssetKind,
		FileName:       fileName,
		ContentType:    contentType,
		SizeBytes:      cmd.SizeBytes,
	})
	if err != nil {
		return SignedAssetResponse{}, s.mapApplicationError(err)
	}

	document := domain.ApplicationDocument{
		AssetID:     signed.AssetID,
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   cmd.SizeBytes,
		StoragePath: signed.StoragePath,
		CreatedAt:   s.now(),
	}
	if _, err := s.applications.AttachDocument(ctx, application.ID, document); err != nil {
		return SignedAssetResponse{}, s.mapApplicationError(err)
	}

	s.logger(ctx, "application.document_upload_requested", map[string]any{
		"applicationId": application.ID,
		"assetId":       signed.AssetID,
		"fileName":      fileName,
	})

	return signed, nil
}

func (s *applicationService) CompleteDocumentUpload(ctx context.Context, cmd CompleteDocumentCommand) (ApplicationDocument, error) {
	applicationID := strings.TrimSpace(cmd.ApplicationID)
	if applicationID == "" {
		return ApplicationDocument{}, fmt.Errorf("%w: application id is required", ErrApplicationInvalidInput)
	}
	assetID := strings.TrimSpace(cmd.AssetID)
	if assetID == "" {
		return ApplicationDocument{}, fmt.Errorf("%w: asset id is required", ErrApplicationInvalidInput)
	}
	actorRef := strings.TrimSpace(cmd.ActorRef)
	actorEmail := strings.ToLower(strings.TrimSpace(cmd.ActorEmail))
	if actorRef == "" && actorEmail == "" {
		return ApplicationDocument{}, fmt.Errorf("%w: actor is required", ErrApplicationInvalidInput)
	}

	application, err := s.applications.FindByID(ctx, applicationID)
	if err != nil {
		return ApplicationDocument{}, s.mapApplicationError(err)
	}
	if !applicationBelongsTo(application, actorRef, actorEmail) {
		return ApplicationDocument{}, ErrApplicationUnauthorized
	}

	if err := s.assets.MarkUploaded(ctx, assetID, actorRef, map[string]any{"applicationRef": application.ID}); err != nil {
		return ApplicationDocument{}, s.mapApplicationError(err)
	}

	document, err := s.applications.MarkDocumentUploaded(ctx, application.ID, assetID, s.now())
	if err != nil {
		return ApplicationDocument{}, s.mapApplicationError(err)
	}

	s.logger(ctx, "application.document_uploaded", map[string]any{
		"applicationId": application.ID,
		"assetId":       assetID,
	})

	return document, nil
}

// RequestDocumentDownload issues a signed download URL for an uploaded
// application document. Role gating happens at the transport layer; the
// service only checks that the asset belongs to the application and that the
// upload actually finished.
func (s *applicationService) RequestDocumentDownload(ctx context.Context, cmd DocumentDownloadCommand) (SignedAssetResponse, error) {
	applicationID := strings.TrimSpace(cmd.ApplicationID)
	if applicationID == "" {
		return SignedAssetResponse{}, fmt.Errorf("%w: application id is required", ErrApplicationInvalidInput)
	}
	assetID := strings.TrimSpace(cmd.AssetID)
	if assetID == "" {
		return SignedAssetResponse{}, fmt.Errorf("%w: asset id is required", ErrApplicationInvalidInput)
	}

	application, err := s.applications.FindByID(ctx, applicationID)
	if err != nil {
		return SignedAssetResponse{}, s.mapApplicationError(err)
	}

	var document *domain.ApplicationDocument
	for i := range application.Documents {
		if application.Documents[i].AssetID == assetID {
			document = &application.Documents[i]
			break
		}
	}
	if document == nil {
		return SignedAssetResponse{}, fmt.Errorf("%w: document is not attached to this application", ErrApplicationNotFound)
	}
	if document.UploadedAt == nil {
		return SignedAssetResponse{}, fmt.Errorf("%w: document upload has not completed", ErrApplicationInvalidState)
	}

	signed, err := s.assets.CreateSignedDownload(ctx, repositories.SignedDownloadRecord{
		ActorRef: strings.TrimSpace(cmd.ActorRef),
		AssetID:  assetID,
	})
	if err != nil {
		return SignedAssetResponse{}, s.mapApplicationError(err)
	}

	s.logger(ctx, "application.document_download_requested", map[string]any{
		"applicationId": application.ID,
		"assetId":       assetID,
	})

	return signed, nil
}

func (s *applicationService) Delete(ctx context.Context, cmd DeleteApplicationCommand) error {
	applicationID := strings.TrimSpace(cmd.ApplicationID)
	if applicationID == "" {
		return fmt.Errorf("%w: application id is required", ErrApplicationInvalidInput)
	}
	if strings.TrimSpace(cmd.ActorRef) == "" {
		return fmt.Errorf("%w: actor ref is required", ErrApplicationInvalidInput)
	}
	if err := s.applications.Delete(ctx, applicationID); err != nil {
		return s.mapApplicationError(err)
	}
	return nil
}

func (s *applicationService) normalizePersonalDetails(details *PersonalApplicationDetails) (*domain.PersonalApplicationDetails, error) {
	income := strings.ToLower(strings.TrimSpace(details.AnnualIncomeRange))
	if _, ok := personalIncomeRanges[income]; !ok {
		return nil, fmt.Errorf("%w: unknown income range %q", ErrApplicationInvalidInput, details.AnnualIncomeRange)
	}

	employment := domain.EmploymentType(strings.ToLower(strings.TrimSpace(string(details.EmploymentType))))
	switch employment {
	case domain.EmploymentTypeSalaried,
		domain.EmploymentTypeSelfEmployed,
		domain.EmploymentTypeFreelancer,
		domain.EmploymentTypeBusiness,
		domain.EmploymentTypeRetired:
	default:
		return nil, fmt.Errorf("%w: unknown employment type %q", ErrApplicationInvalidInput, details.EmploymentType)
	}

	regime := domain.TaxRegime(strings.ToLower(strings.TrimSpace(string(details.PreferredTaxRegime))))
	switch regime {
	case domain.TaxRegimeOld, domain.TaxRegimeNew, domain.TaxRegimeNotSure:
	default:
		return nil, fmt.Errorf("%w: unknown tax regime %q", ErrApplicationInvalidInput, details.PreferredTaxRegime)
	}

	info := s.sanitize(details.AdditionalInfo)
	if len(info) > additionalInfoMaxLength {
		return nil, fmt.Errorf("%w: additional info cannot exceed %d characters", ErrApplicationInvalidInput, additionalInfoMaxLength)
	}

	return &domain.PersonalApplicationDetails{
		AnnualIncomeRange:  income,
		EmploymentType:     employment,
		PreferredTaxRegime: regime,
		AdditionalInfo:     info,
	}, nil
}

func (s *applicationService) normalizeBusinessDetails(details *BusinessApplicationDetails) (*domain.BusinessApplicationDetails, error) {
	name := strings.Join(strings.Fields(details.BusinessName), " ")
	if len(name) < businessNameMinLength || len(name) > businessNameMaxLength {
		return nil, fmt.Errorf("%w: business name must be %d to %d characters", ErrApplicationInvalidInput, businessNameMinLength, businessNameMaxLength)
	}

	structure := domain.BusinessType(strings.ToLower(strings.TrimSpace(string(details.BusinessStructure))))
	switch structure {
	case domain.BusinessTypeStartup,
		domain.BusinessTypeProprietorship,
		domain.BusinessTypePartnership,
		domain.BusinessTypeLLP,
		domain.BusinessTypePrivateLimited,
		domain.BusinessTypePublic,
		domain.BusinessTypeOther:
	default:
		return nil, fmt.Errorf("%w: unknown business structure %q", ErrApplicationInvalidInput, details.BusinessStructure)
	}

	gst := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(details.GSTNumber), " ", ""))
	if gst != "" && !gstinPattern.MatchString(gst) {
		return nil, fmt.Errorf("%w: gst number format is invalid", ErrApplicationInvalidInput)
	}

	industry := strings.ToLower(strings.TrimSpace(details.IndustryType))
	if _, ok := businessIndustryTypes[industry]; !ok {
		return nil, fmt.Errorf("%w: unknown industry type %q", ErrApplicationInvalidInput, details.IndustryType)
	}

	turnover := strings.ToLower(strings.TrimSpace(details.TurnoverRange))
	if _, ok := businessTurnoverRanges[turnover]; !ok {
		return nil, fmt.Errorf("%w: unknown turnover range %q", ErrApplicationInvalidInput, details.TurnoverRange)
	}

	employees := strings.ToLower(strings.TrimSpace(details.EmployeeRange))
	if employees != "" {
		if _, ok := businessEmployeeRanges[employees]; !ok {
			return nil, fmt.Errorf("%w: unknown employee range %q", ErrApplicationInvalidInput, details.EmployeeRange)
		}
	}

	services := make([]string, 0, len(details.ServicesRequired))
	for _, service := range details.ServicesRequired {
		if trimmed := strings.TrimSpace(service); trimmed != "" {
			services = append(services, trimmed)
		}
	}
	if len(services) == 0 {
		services = nil
	}

	info := s.sanitize(details.BusinessDetails)
	if len(info) > businessDetailsMaxLength {
		return nil, fmt.Errorf("%w: business details cannot exceed %d characters", ErrApplicationInvalidInput, businessDetailsMaxLength)
	}

	return &domain.BusinessApplicationDetails{
		BusinessName:      name,
		BusinessStructure: structure,
		GSTNumber:         gst,
		IndustryType:      industry,
		TurnoverRange:     turnover,
		EmployeeRange:     employees,
		ServicesRequired:  services,
		BusinessDetails:   info,
	}, nil
}

// ensureNoActiveApplication enforces the one-active-application-per-PAN rule
// per segment. Rejected applications do not block a resubmission.
func (s *applicationService) ensureNoActiveApplication(ctx context.Context, segment domain.TaxSegment, pan string) error {
	existing, err := s.applications.FindActiveByPAN(ctx, segment, pan)
	if err == nil {
		return fmt.Errorf("%w: application %s is already active for this pan", ErrApplicationConflict, existing.ID)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return nil
	}
	return err
}

func (s *applicationService) notifyStatus(ctx context.Context, application domain.TaxPlanningApplication) {
	if s.notifications == nil {
		return
	}
	message := NotificationJobMessage{
		Kind:      NotificationKindApplicationStatus,
		To:        application.Email,
		ToName:    application.FullName,
		EntityRef: application.ID,
		Payload: map[string]string{
			"segment": string(application.Segment),
			"status":  string(application.Status),
		},
		EnqueuedAt: s.now(),
	}
	if _, err := s.notifications.PublishNotification(ctx, message); err != nil {
		s.logger(ctx, "application.notification_publish_failed", map[string]any{
			"applicationId": application.ID,
			"error":         err.Error(),
		})
	}
}

func (s *applicationService) now() time.Time {
	return s.clock()
}

func (s *applicationService) mapApplicationError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrApplicationNotFound
		case repoErr.IsConflict():
			return ErrApplicationConflict
		}
	}
	return err
}

func (p documentUploadPolicy) allows(contentType string) bool {
	for _, candidate := range p.contentTypes {
		if candidate == contentType {
			return true
		}
	}
	return false
}

func applicationTransitionAllowed(from, to domain.ApplicationStatus) bool {
	for _, candidate := range applicationTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func applicationBelongsTo(application domain.TaxPlanningApplication, actorRef, actorEmail string) bool {
	if actorRef != "" && application.UserRef != nil && *application.UserRef == actorRef {
		return true
	}
	if actorEmail != "" && strings.EqualFold(application.Email, actorEmail) {
		return true
	}
	return false
}
