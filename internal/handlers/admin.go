package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	domain "github.com/rupeeplan/api/internal/domain"
	"github.com/rupeeplan/api/internal/platform/auth"
	"github.com/rupeeplan/api/internal/platform/httpx"
	"github.com/rupeeplan/api/internal/services"
)

const maxAdminBodySize = 16 * 1024

// AdminHandlers exposes the back-office surface: consultation and application
// review, calculation history, dashboard statistics, and the audit trail.
// Every route requires an admin session; mutations are written to the audit
// log after they succeed.
type AdminHandlers struct {
	sessions      *auth.SessionManager
	consultations services.ConsultationService
	applications  services.ApplicationService
	calculations  services.CalculationService
	stats         services.StatisticsService
	system        services.SystemService
	audit         services.AuditLogService
}

// NewAdminHandlers constructs the admin endpoints.
func NewAdminHandlers(
	sessions *auth.SessionManager,
	consultations services.ConsultationService,
	applications services.ApplicationService,
	calculations services.CalculationService,
	stats services.StatisticsService,
	system services.SystemService,
	audit services.AuditLogService,
) *AdminHandlers {
	return &AdminHandlers{
		sessions:      sessions,
		consultations: consultations,
		applications:  applications,
		calculations:  calculations,
		stats:         stats,
		system:        system,
		audit:         audit,
	}
}

// Routes registers the admin endpoints on the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.sessions != nil {
		r.Use(h.sessions.RequireSession(auth.RoleAdmin))
	}
	r.Route("/tax", func(tax chi.Router) {
		tax.Route("/consultations", func(c chi.Router) {
			c.Get("/", h.listConsultations)
			c.Get("/{consultationID}", h.getConsultation)
			c.Post("/{consultationID}/status", h.updateConsultationStatus)
			c.Post("/{consultationID}/assign", h.assignConsultant)
			c.Delete("/{consultationID}", h.deleteConsultation)
		})
		tax.Route("/applications", func(a chi.Router) {
			a.Get("/", h.listApplications)
			a.Get("/{applicationID}", h.getApplication)
			a.Post("/{applicationID}/status", h.updateApplicationStatus)
			a.Post("/{applicationID}/documents/{assetID}/download", h.downloadApplicationDocument)
			a.Delete("/{applicationID}", h.deleteApplication)
		})
		tax.Get("/calculations", h.listCalculations)
		tax.Get("/statistics", h.getStatistics)
	})
	r.Get("/system/audit-logs", h.listAuditLogs)
}

func (h *AdminHandlers) listConsultations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.consultations == nil {
		writeServiceUnavailable(ctx, w, "consultation_service_unavailable", "consultation service is unavailable")
		return
	}

	pagination, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	dateRange, err := parseDateRange(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	filter := services.ConsultationListFilter{
		Segment:    parseSegmentParam(r),
		Status:     parseConsultationStatuses(query["status"]),
		Email:      strings.TrimSpace(query.Get("email")),
		UserRef:    strings.TrimSpace(query.Get("user_ref")),
		Search:     strings.TrimSpace(query.Get("q")),
		DateRange:  dateRange,
		Pagination: pagination,
	}

	page, err := h.consultations.ListConsultations(ctx, filter)
	if err != nil {
		writeConsultationError(ctx, w, err)
		return
	}

	items := make([]consultationPayload, 0, len(page.Items))
	for _, consultation := range page.Items {
		items = append(items, buildConsultationPayload(consultation))
	}

	writeJSONResponse(w, http.StatusOK, consultationListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *AdminHandlers) getConsultation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.consultations == nil {
		writeServiceUnavailable(ctx, w, "consultation_service_unavailable", "consultation service is unavailable")
		return
	}

	consultationID := strings.TrimSpace(chi.URLParam(r, "consultationID"))
	if consultationID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "consultation id is required", http.StatusBadRequest))
		return
	}

	consultation, err := h.consultations.GetConsultation(ctx, consultationID)
	if err != nil {
		writeConsultationError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, consultationResponse{Consultation: buildConsultationPayload(consultation)})
}

func (h *AdminHandlers) updateConsultationStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.consultations == nil {
		writeServiceUnavailable(ctx, w, "consultation_service_unavailable", "consultation service is unavailable")
		return
	}

	identity, ok := requestIdentity(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	consultationID := strings.TrimSpace(chi.URLParam(r, "consultationID"))
	if consultationID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "consultation id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req statusUpdateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	before, err := h.consultations.GetConsultation(ctx, consultationID)
	if err != nil {
		writeConsultationError(ctx, w, err)
		return
	}

	updated, err := h.consultations.UpdateStatus(ctx, services.ConsultationStatusCommand{
		ConsultationID: consultationID,
		Status:         domain.ConsultationStatus(req.Status),
		ActorRef:       identity.UID,
	})
	if err != nil {
		writeConsultationError(ctx, w, err)
		return
	}

	h.recordAudit(ctx, r, identity.UID, "consultation.status.update", "consultations/"+updated.ID,
		map[string]services.AuditLogDiff{
			"status": {Before: string(before.Status), After: string(updated.Status)},
		}, nil)

	writeJSONResponse(w, http.StatusOK, consultationResponse{Consultation: buildConsultationPayload(updated)})
}

func (h *AdminHandlers) assignConsultant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.consultations == nil {
		writeServiceUnavailable(ctx, w, "consultation_service_unavailable", "consultation service is unavailable")
		return
	}

	identity, ok := requestIdentity(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	consultationID := strings.TrimSpace(chi.URLParam(r, "consultationID"))
	if consultationID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "consultation id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req assignConsultantRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	before, err := h.consultations.GetConsultation(ctx, consultationID)
	if err != nil {
		writeConsultationError(ctx, w, err)
		return
	}

	updated, err := h.consultations.AssignConsultant(ctx, services.AssignConsultantCommand{
		ConsultationID: consultationID,
		ConsultantRef:  req.ConsultantRef,
		ActorRef:       identity.UID,
	})
	if err != nil {
		writeConsultationError(ctx, w, err)
		return
	}

	var beforeRef, afterRef any
	if before.ConsultantRef != nil {
		beforeRef = *before.ConsultantRef
	}
	if updated.ConsultantRef != nil {
		afterRef = *updated.ConsultantRef
	}
	h.recordAudit(ctx, r, identity.UID, "consultation.assign", "consultations/"+updated.ID,
		map[string]services.AuditLogDiff{
			"consultantRef": {Before: beforeRef, After: afterRef},
		}, nil)

	writeJSONResponse(w, http.StatusOK, consultationResponse{Consultation: buildConsultationPayload(updated)})
}

func (h *AdminHandlers) deleteConsultation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.consultations == nil {
		writeServiceUnavailable(ctx, w, "consultation_service_unavailable", "consultation service is unavailable")
		return
	}

	identity, ok := requestIdentity(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	consultationID := strings.TrimSpace(chi.URLParam(r, "consultationID"))
	if consultationID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "consultation id is required", http.StatusBadRequest))
		return
	}

	if err := h.consultations.Delete(ctx, services.DeleteConsultationCommand{
		ConsultationID: consultationID,
		ActorRef:       identity.UID,
	}); err != nil {
		writeConsultationError(ctx, w, err)
		return
	}

	h.recordAudit(ctx, r, identity.UID, "consultation.delete", "consultations/"+consultationID, nil, nil)

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) listApplications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.applications == nil {
		writeServiceUnavailable(ctx, w, "application_service_unavailable", "application service is unavailable")
		return
	}

	pagination, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	dateRange, err := parseDateRange(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	filter := services.ApplicationListFilter{
		Segment:    parseSegmentParam(r),
		Status:     parseApplicationStatuses(query["status"]),
		Email:      strings.TrimSpace(query.Get("email")),
		PAN:        strings.TrimSpace(query.Get("pan")),
		UserRef:    strings.TrimSpace(query.Get("user_ref")),
		Search:     strings.TrimSpace(query.Get("q")),
		DateRange:  dateRange,
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

func (h *AdminHandlers) getApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.applications == nil {
		writeServiceUnavailable(ctx, w, "application_service_unavailable", "application service is unavailable")
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

	writeJSONResponse(w, http.StatusOK, applicationResponse{Application: buildApplicationPayload(application)})
}

func (h *AdminHandlers) updateApplicationStatus(w http.ResponseWriter, r *http.Request) {
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

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req statusUpdateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	before, err := h.applications.GetApplication(ctx, applicationID)
	if err != nil {
		writeApplicationError(ctx, w, err)
		return
	}

	updated, err := h.applications.UpdateStatus(ctx, services.ApplicationStatusCommand{
		ApplicationID: applicationID,
		Status:        domain.ApplicationStatus(req.Status),
		ActorRef:      identity.UID,
	})
	if err != nil {
		writeApplicationError(ctx, w, err)
		return
	}

	h.recordAudit(ctx, r, identity.UID, "application.status.update", "applications/"+updated.ID,
		map[string]services.AuditLogDiff{
			"status": {Before: string(before.Status), After: string(updated.Status)},
		}, nil)

	writeJSONResponse(w, http.StatusOK, applicationResponse{Application: buildApplicationPayload(updated)})
}

func (h *AdminHandlers) downloadApplicationDocument(w http.ResponseWriter, r *http.Request) {
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

	signed, err := h.applications.RequestDocumentDownload(ctx, services.DocumentDownloadCommand{
		ApplicationID: applicationID,
		AssetID:       assetID,
		ActorRef:      identity.UID,
	})
	if err != nil {
		writeApplicationError(ctx, w, err)
		return
	}

	h.recordAudit(ctx, r, identity.UID, "application.document.download", "applications/"+applicationID,
		nil, map[string]any{"assetId": assetID})

	payload := documentDownloadResponse{
		URL:    signed.URL,
		Method: signed.Method,
	}
	if !signed.ExpiresAt.IsZero() {
		payload.ExpiresAt = signed.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if len(signed.Headers) > 0 {
		payload.Headers = signed.Headers
	}

	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *AdminHandlers) deleteApplication(w http.ResponseWriter, r *http.Request) {
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

	if err := h.applications.Delete(ctx, services.DeleteApplicationCommand{
		ApplicationID: applicationID,
		ActorRef:      identity.UID,
	}); err != nil {
		writeApplicationError(ctx, w, err)
		return
	}

	h.recordAudit(ctx, r, identity.UID, "application.delete", "applications/"+applicationID, nil, nil)

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) listCalculations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.calculations == nil {
		writeServiceUnavailable(ctx, w, "calculation_service_unavailable", "calculation service is unavailable")
		return
	}

	pagination, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	dateRange, err := parseDateRange(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	filter := services.CalculationListFilter{
		Segment:    parseSegmentParam(r),
		Email:      strings.TrimSpace(query.Get("email")),
		UserRef:    strings.TrimSpace(query.Get("user_ref")),
		DateRange:  dateRange,
		Pagination: pagination,
	}

	page, err := h.calculations.ListCalculations(ctx, filter)
	if err != nil {
		writeCalculationError(ctx, w, err)
		return
	}

	items := make([]calculationPayload, 0, len(page.Items))
	for _, calculation := range page.Items {
		items = append(items, buildCalculationPayload(calculation))
	}

	writeJSONResponse(w, http.StatusOK, calculationListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *AdminHandlers) getStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stats == nil {
		writeServiceUnavailable(ctx, w, "statistics_service_unavailable", "statistics service is unavailable")
		return
	}

	query := services.StatisticsQuery{}
	if segment := parseSegmentParam(r); segment != nil {
		query.Segment = *segment
	}

	overview, err := h.stats.Overview(ctx, query)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrStatisticsInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		case isRepositoryUnavailable(err):
			httpx.WriteError(ctx, w, httpx.NewError("statistics_service_unavailable", "statistics repository unavailable", http.StatusServiceUnavailable))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("statistics_error", "failed to assemble statistics", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, buildStatisticsPayload(overview))
}

func (h *AdminHandlers) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		writeServiceUnavailable(ctx, w, "system_service_unavailable", "system service is unavailable")
		return
	}

	pagination, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	dateRange, err := parseDateRange(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	filter := services.AuditLogFilter{
		TargetRef:  strings.TrimSpace(query.Get("target_ref")),
		Actor:      strings.TrimSpace(query.Get("actor")),
		ActorType:  strings.TrimSpace(query.Get("actor_type")),
		Action:     strings.TrimSpace(query.Get("action")),
		DateRange:  dateRange,
		Pagination: pagination,
	}

	page, err := h.system.ListAuditLogs(ctx, filter)
	if err != nil {
		if isRepositoryUnavailable(err) {
			httpx.WriteError(ctx, w, httpx.NewError("audit_log_unavailable", "audit log repository unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("audit_log_error", "failed to list audit logs", http.StatusInternalServerError))
		return
	}

	items := make([]auditLogPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, buildAuditLogPayload(entry))
	}

	writeJSONResponse(w, http.StatusOK, auditLogListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

// recordAudit writes an audit entry for a completed admin mutation. Failures
// are swallowed by the audit service so a logging outage never fails the
// request that already succeeded.
func (h *AdminHandlers) recordAudit(ctx context.Context, r *http.Request, actor, action, targetRef string, diff map[string]services.AuditLogDiff, metadata map[string]any) {
	if h.audit == nil {
		return
	}
	h.audit.Record(ctx, services.AuditLogRecord{
		Actor:     actor,
		ActorType: "admin",
		Action:    action,
		TargetRef: targetRef,
		RequestID: middleware.GetReqID(ctx),
		Metadata:  metadata,
		Diff:      diff,
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
}

func parseDateRange(r *http.Request) (domain.RangeQuery[time.Time], error) {
	var out domain.RangeQuery[time.Time]
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		parsed, err := parseTimeParam(raw)
		if err != nil {
			return out, errors.New("from must be an RFC 3339 timestamp")
		}
		out.From = &parsed
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		parsed, err := parseTimeParam(raw)
		if err != nil {
			return out, errors.New("to must be an RFC 3339 timestamp")
		}
		out.To = &parsed
	}
	return out, nil
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

type assignConsultantRequest struct {
	ConsultantRef string `json:"consultantRef"`
}

type documentDownloadResponse struct {
	URL       string            `json:"url"`
	Method    string            `json:"method,omitempty"`
	ExpiresAt string            `json:"expiresAt,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

type statisticsResponse struct {
	Segment          string                 `json:"segment,omitempty"`
	Consultations    statusBreakdownPayload `json:"consultations"`
	Applications     statusBreakdownPayload `json:"applications"`
	Calculations     activityPayload        `json:"calculations"`
	ProjectedSavings int64                  `json:"projectedSavings"`
	GeneratedAt      string                 `json:"generatedAt"`
}

type statusBreakdownPayload struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"byStatus"`
}

type activityPayload struct {
	Total     int64 `json:"total"`
	Today     int64 `json:"today"`
	ThisWeek  int64 `json:"thisWeek"`
	ThisMonth int64 `json:"thisMonth"`
}

func buildStatisticsPayload(stats domain.TaxServiceStatistics) statisticsResponse {
	return statisticsResponse{
		Segment: string(stats.Segment),
		Consultations: statusBreakdownPayload{
			Total:    stats.Consultations.Total,
			ByStatus: stats.Consultations.ByStatus,
		},
		Applications: statusBreakdownPayload{
			Total:    stats.Applications.Total,
			ByStatus: stats.Applications.ByStatus,
		},
		Calculations: activityPayload{
			Total:     stats.Calculations.Total,
			Today:     stats.Calculations.Today,
			ThisWeek:  stats.Calculations.ThisWeek,
			ThisMonth: stats.Calculations.ThisMonth,
		},
		ProjectedSavings: stats.ProjectedSavings,
		GeneratedAt:      formatTime(stats.GeneratedAt),
	}
}

type auditLogListResponse struct {
	Items         []auditLogPayload `json:"items"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
}

type auditLogPayload struct {
	ID        string         `json:"id"`
	Actor     string         `json:"actor"`
	ActorType string         `json:"actorType,omitempty"`
	Action    string         `json:"action"`
	TargetRef string         `json:"targetRef,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Diff      map[string]any `json:"diff,omitempty"`
	IPHash    string         `json:"ipHash,omitempty"`
	UserAgent string         `json:"userAgent,omitempty"`
	Severity  string         `json:"severity,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	CreatedAt string         `json:"createdAt"`
}

func buildAuditLogPayload(entry domain.AuditLogEntry) auditLogPayload {
	return auditLogPayload{
		ID:        entry.ID,
		Actor:     entry.Actor,
		ActorType: entry.ActorType,
		Action:    entry.Action,
		TargetRef: entry.TargetRef,
		Metadata:  entry.Metadata,
		Diff:      entry.Diff,
		IPHash:    entry.IPHash,
		UserAgent: entry.UserAgent,
		Severity:  entry.Severity,
		RequestID: entry.RequestID,
		CreatedAt: formatTime(entry.CreatedAt),
	}
}
