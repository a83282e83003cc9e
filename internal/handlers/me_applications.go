package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/rupeeplan/api/internal/domain"
	"github.com/rupeeplan/api/internal/platform/auth"
	"github.com/rupeeplan/api/internal/platform/httpx"
	"github.com/rupeeplan/api/internal/services"
)

const (
	maxApplicationBodySize = 64 * 1024
	maxDocumentBodySize    = 4 * 1024
)

func (h *MeHandlers) applicationRoutes(r chi.Router) {
	r.Get("/", h.listMyApplications)
	r.Post("/", h.submitApplication)
	r.Get("/{applicationID}", h.getMyApplication)
	r.Post("/{applicationID}/documents", h.requestDocumentUpload)
	r.Post("/{applicationID}/documents/{assetID}/complete", h.completeDocumentUpload)
}

func (h *MeHandlers) submitApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.applications == nil {
		writeServiceUnavailable(ctx, w, "application_service_unavailable", "application service is unavailable")
		return
	}

	identity, ok := requestIdentity(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxApplicationBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req submitApplicationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	cmd := services.SubmitApplicationCommand{
		Segment:  domain.TaxSegment(req.Segment),
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
		PAN:      req.PAN,
		UserRef:  &identity.UID,
	}
	if strings.TrimSpace(cmd.Email) == "" {
		cmd.Email = identity.Email
	}
	if req.Personal != nil {
		cmd.Personal = &domain.PersonalApplicationDetails{
			AnnualIncomeRange:  req.Personal.AnnualIncomeRange,
			EmploymentType:     domain.EmploymentType(req.Personal.EmploymentType),
			PreferredTaxRegime: domain.TaxRegime(req.Personal.PreferredTaxRegime),
			AdditionalInfo:     req.Personal.AdditionalInfo,
		}
	}
	if req.Business != nil {
		cmd.Business = &domain.BusinessApplicationDetails{
			BusinessName:      req.Business.BusinessName,
			BusinessStructure: domain.BusinessType(req.Business.BusinessStructure),
			GSTNumber:         req.Business.GSTNumber,
			IndustryType:      req.Business.IndustryType,
			TurnoverRange:     req.Business.TurnoverRange,
			EmployeeRange:     req.Business.EmployeeRange,
			ServicesRequired:  req.Business.ServicesRequired,
			BusinessDetails:   req.Business.BusinessDetails,
		}
	}

	application, err := h.applications.Submit(ctx, cmd)
	if err != nil {
		writeApplicationError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, applicationResponse{Application: buildApplicationPayload(application)})
}

func (h *MeHandlers) listMyApplications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.applications == nil {
		writeServiceUnavailable(ctx, w, "application_service_unavailable", "application service is unavailable")
		return
	}

	identity, ok := requestIdentity(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	pagination, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.ApplicationListFilter{
		UserRef:    identity.UID,
		Status:     parseApplicationStatuses(r.URL.Query()["status"]),
		Pagination: pagination,
	}

	page, err := h.applications.ListApplications(ctx, filter)
	if err != nil {
		writeApplicationError(ctx, w, err)
		return
	}

	items := make([]applicationPayload, 0, len(page.Items))
	for _, application := range page.Items {
		items = append(items, buildApplicationPayload(application))
	}

	writeJSONResponse(w, http.StatusOK, applicationListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *MeHandlers) getMyApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.applications == nil {
		writeServiceUnavailable(ctx, w, "application_service_unavailable", "application service is unavailable")
		return
	}

	identity, ok := requestIdentity(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	applicationID := strings.TrimSpace(chi.URLParam(r, "applicationID"))
	if applicationID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "application id is required", http.StatusBadRequest))
		return
	}

	application, err := h.applications.GetApplication(ctx, applicationID)
	if err != nil {
		writeApplicationError(ctx, w, err)
		return
	}

	if !applicationOwnedBy(application, identity) {
		httpx.WriteError(ctx, w, httpx.NewError("application_not_found", "application not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, applicationResponse{Application: buildApplicationPayload(application)})
}

func (h *MeHandlers) requestDocumentUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.applications == nil {
		writeServiceUnavailable(ctx, w, "application_service_unavailable", "application service is unavailable")
		return
	}

	identity, ok := requestIdentity(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	applicationID := strings.TrimSpace(chi.URLParam(r, "applicationID"))
	if applicationID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "application id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxDocumentBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req documentUploadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	signed, err := h.applications.RequestDocumentUpload(ctx, services.DocumentUploadCommand{
		ApplicationID: applicationID,
		ActorRef:      identity.UID,
		ActorEmail:    identity.Email,
		FileName:      req.FileName,
		ContentType:   req.ContentType,
		SizeBytes:     req.SizeBytes,
	})
	if err != nil {
		writeApplicationError(ctx, w, err)
		return
	}

	payload := documentUploadResponse{
		AssetID:   signed.AssetID,
		UploadURL: signed.URL,
		Method:    signed.Method,
		Headers:   signed.Headers,
	}
	if !signed.ExpiresAt.IsZero() {
		payload.ExpiresAt = signed.ExpiresAt.UTC().Format(time.RFC3339)
	}

	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *MeHandlers) completeDocumentUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.applications == nil {
		writeServiceUnavailable(ctx, w, "application_service_unavailable", "application service is unavailable")
		return
	}

	identity, ok := requestIdentity(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	applicationID := strings.TrimSpace(chi.URLParam(r, "applicationID"))
	assetID := strings.TrimSpace(chi.URLParam(r, "assetID"))
	if applicationID == "" || assetID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "application id and asset id are required", http.StatusBadRequest))
		return
	}

	document, err := h.applications.CompleteDocumentUpload(ctx, services.CompleteDocumentCommand{
		ApplicationID: applicationID,
		AssetID:       assetID,
		ActorRef:      identity.UID,
		ActorEmail:    identity.Email,
	})
	if err != nil {
		writeApplicationError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, documentResponse{Document: buildDocumentPayload(document)})
}

type submitApplicationRequest struct {
	Segment  string                  `json:"segment"`
	FullName string                  `json:"fullName"`
	Email    string                  `json:"email"`
	Phone    string                  `json:"phone"`
	PAN      string                  `json:"pan"`
	Personal *personalDetailsRequest `json:"personal,omitempty"`
	Business *businessDetailsRequest `json:"business,omitempty"`
}

type personalDetailsRequest struct {
	AnnualIncomeRange  string `json:"annualIncomeRange"`
	EmploymentType     string `json:"employmentType"`
	PreferredTaxRegime string `json:"preferredTaxRegime"`
	AdditionalInfo     string `json:"additionalInfo"`
}

type businessDetailsRequest struct {
	BusinessName      string   `json:"businessName"`
	BusinessStructure string   `json:"businessStructure"`
	GSTNumber         string   `json:"gstNumber"`
	IndustryType      string   `json:"industryType"`
	TurnoverRange     string   `json:"turnoverRange"`
	EmployeeRange     string   `json:"employeeRange"`
	ServicesRequired  []string `json:"servicesRequired"`
	BusinessDetails   string   `json:"businessDetails"`
}

type documentUploadRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type documentUploadResponse struct {
	AssetID   string            `json:"assetId"`
	UploadURL string            `json:"uploadUrl"`
	Method    string            `json:"method"`
	ExpiresAt string            `json:"expiresAt,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

type applicationResponse struct {
	Application applicationPayload `json:"application"`
}

type applicationListResponse struct {
	Items         []applicationPayload `json:"items"`
	NextPageToken string               `json:"nextPageToken,omitempty"`
}

type documentResponse struct {
	Document documentPayload `json:"document"`
}

type applicationPayload struct {
	ID        string                  `json:"id"`
	Segment   string                  `json:"segment"`
	FullName  string                  `json:"fullName"`
	Email     string                  `json:"email"`
	Phone     string                  `json:"phone"`
	PAN       string                  `json:"pan"`
	Status    string                  `json:"status"`
	Personal  *personalDetailsPayload `json:"personal,omitempty"`
	Business  *businessDetailsPayload `json:"business,omitempty"`
	Documents []documentPayload       `json:"documents"`
	CreatedAt string                  `json:"createdAt"`
	UpdatedAt string                  `json:"updatedAt"`
}

type personalDetailsPayload struct {
	AnnualIncomeRange  string `json:"annualIncomeRange"`
	EmploymentType     string `json:"employmentType"`
	PreferredTaxRegime string `json:"preferredTaxRegime"`
	AdditionalInfo     string `json:"additionalInfo,omitempty"`
}

type businessDetailsPayload struct {
	BusinessName      string   `json:"businessName"`
	BusinessStructure string   `json:"businessStructure"`
	GSTNumber         string   `json:"gstNumber,omitempty"`
	IndustryType      string   `json:"industryType"`
	TurnoverRange     string   `json:"turnoverRange"`
	EmployeeRange     string   `json:"employeeRange"`
	ServicesRequired  []string `json:"servicesRequired,omitempty"`
	BusinessDetails   string   `json:"businessDetails,omitempty"`
}

type documentPayload struct {
	AssetID     string `json:"assetId"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
	StoragePath string `json:"storagePath,omitempty"`
	UploadedAt  string `json:"uploadedAt,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

func buildApplicationPayload(application domain.TaxPlanningApplication) applicationPayload {
	documents := make([]documentPayload, 0, len(application.Documents))
	for _, document := range application.Documents {
		documents = append(documents, buildDocumentPayload(document))
	}

	payload := applicationPayload{
		ID:        application.ID,
		Segment:   string(application.Segment),
		FullName:  application.FullName,
		Email:     application.Email,
		Phone:     application.Phone,
		PAN:       application.PAN,
		Status:    string(application.Status),
		Documents: documents,
		CreatedAt: formatTime(application.CreatedAt),
		UpdatedAt: formatTime(application.UpdatedAt),
	}
	if application.Personal != nil {
		payload.Personal = &personalDetailsPayload{
			AnnualIncomeRange:  application.Personal.AnnualIncomeRange,
			EmploymentType:     string(application.Personal.EmploymentType),
			PreferredTaxRegime: string(application.Personal.PreferredTaxRegime),
			AdditionalInfo:     application.Personal.AdditionalInfo,
		}
	}
	if application.Business != nil {
		payload.Business = &businessDetailsPayload{
			BusinessName:      application.Business.BusinessName,
			BusinessStructure: string(application.Business.BusinessStructure),
			GSTNumber:         application.Business.GSTNumber,
			IndustryType:      application.Business.IndustryType,
			TurnoverRange:     application.Business.TurnoverRange,
			EmployeeRange:     application.Business.EmployeeRange,
			ServicesRequired:  application.Business.ServicesRequired,
			BusinessDetails:   application.Business.BusinessDetails,
		}
	}
	return payload
}

func buildDocumentPayload(document domain.ApplicationDocument) documentPayload {
	return documentPayload{
		AssetID:     document.AssetID,
		FileName:    document.FileName,
		ContentType: document.ContentType,
		SizeBytes:   document.SizeBytes,
		StoragePath: document.StoragePath,
		UploadedAt:  formatTime(pointerTime(document.UploadedAt)),
		CreatedAt:   formatTime(document.CreatedAt),
	}
}

func parseApplicationStatuses(values []string) []domain.ApplicationStatus {
	raw := parseFilterValues(values)
	if len(raw) == 0 {
		return nil
	}
	statuses := make([]domain.ApplicationStatus, 0, len(raw))
	for _, value := range raw {
		statuses = append(statuses, domain.ApplicationStatus(strings.ToLower(value)))
	}
	return statuses
}

func applicationOwnedBy(application domain.TaxPlanningApplication, identity *auth.Identity) bool {
	if identity == nil {
		return false
	}
	if application.UserRef != nil && strings.TrimSpace(*application.UserRef) != "" {
		return *application.UserRef == identity.UID
	}
	return strings.EqualFold(strings.TrimSpace(application.Email), strings.TrimSpace(identity.Email))
}

func writeApplicationError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrApplicationInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrApplicationUnauthorized), errors.Is(err, services.ErrApplicationNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("application_not_found", "application not found", http.StatusNotFound))
	case errors.Is(err, services.ErrApplicationInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_application_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrApplicationConflict):
		httpx.WriteError(ctx, w, httpx.NewError("application_conflict", err.Error(), http.StatusConflict))
	case isRepositoryUnavailable(err):
		httpx.WriteError(ctx, w, httpx.NewError("application_service_unavailable", "application repository unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("application_error", "failed to process application request", http.StatusInternalServerError))
	}
}
