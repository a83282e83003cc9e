package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/rupeeplan/api/internal/domain"
	"github.com/rupeeplan/api/internal/platform/auth"
	"github.com/rupeeplan/api/internal/platform/httpx"
	"github.com/rupeeplan/api/internal/services"
)

const maxConsultationBodySize = 32 * 1024

func (h *MeHandlers) consultationRoutes(r chi.Router) {
	r.Get("/", h.listMyConsultations)
	r.Post("/", h.bookConsultation)
	r.Get("/{consultationID}", h.getMyConsultation)
	r.Post("/{consultationID}/cancel", h.cancelMyConsultation)
}

func (h *MeHandlers) bookConsultation(w http.ResponseWriter, r *http.Request) {
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

	body, err := readLimitedBody(r, maxConsultationBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req bookConsultationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	cmd := services.BookConsultationCommand{
		Segment:       domain.TaxSegment(req.Segment),
		FullName:      req.FullName,
		Email:         req.Email,
		Phone:         req.Phone,
		PreferredDate: req.PreferredDate,
		PreferredTime: req.PreferredTime,
		Notes:         req.Notes,
		UserRef:       &identity.UID,
	}
	if strings.TrimSpace(cmd.Email) == "" {
		cmd.Email = identity.Email
	}

	consultation, err := h.consultations.Book(ctx, cmd)
	if err != nil {
		writeConsultationError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, consultationResponse{Consultation: buildConsultationPayload(consultation)})
}

func (h *MeHandlers) listMyConsultations(w http.ResponseWriter, r *http.Request) {
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

	pagination, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.ConsultationListFilter{
		UserRef:    identity.UID,
		Status:     parseConsultationStatuses(r.URL.Query()["status"]),
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

func (h *MeHandlers) getMyConsultation(w http.ResponseWriter, r *http.Request) {
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

	consultation, err := h.consultations.GetConsultation(ctx, consultationID)
	if err != nil {
		writeConsultationError(ctx, w, err)
		return
	}

	if !consultationOwnedBy(consultation, identity) {
		httpx.WriteError(ctx, w, httpx.NewError("consultation_not_found", "consultation not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, consultationResponse{Consultation: buildConsultationPayload(consultation)})
}

func (h *MeHandlers) cancelMyConsultation(w http.ResponseWriter, r *http.Request) {
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

	var req cancelConsultationRequest
	body, err := readLimitedBody(r, maxConsultationBodySize)
	switch {
	case err == nil:
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return
		}
	case errors.Is(err, errEmptyBody):
		// Cancelling without a reason is allowed.
	default:
		writeBodyError(ctx, w, err)
		return
	}

	consultation, err := h.consultations.Cancel(ctx, services.CancelConsultationCommand{
		ConsultationID: consultationID,
		ActorRef:       identity.UID,
		ActorEmail:     identity.Email,
		Reason:         req.Reason,
	})
	if err != nil {
		writeConsultationError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, consultationResponse{Consultation: buildConsultationPayload(consultation)})
}

type bookConsultationRequest struct {
	Segment       string `json:"segment"`
	FullName      string `json:"fullName"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	PreferredDate string `json:"preferredDate"`
	PreferredTime string `json:"preferredTime"`
	Notes         string `json:"notes"`
}

type cancelConsultationRequest struct {
	Reason string `json:"reason"`
}

type consultationResponse struct {
	Consultation consultationPayload `json:"consultation"`
}

type consultationListResponse struct {
	Items         []consultationPayload `json:"items"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

type consultationPayload struct {
	ID            string  `json:"id"`
	Segment       string  `json:"segment"`
	FullName      string  `json:"fullName"`
	Email         string  `json:"email"`
	Phone         string  `json:"phone"`
	PreferredDate string  `json:"preferredDate"`
	PreferredTime string  `json:"preferredTime"`
	Notes         string  `json:"notes,omitempty"`
	Status        string  `json:"status"`
	ConsultantRef *string `json:"consultantRef,omitempty"`
	CreatedAt     string  `json:"createdAt"`
	UpdatedAt     string  `json:"updatedAt"`
	CancelledAt   string  `json:"cancelledAt,omitempty"`
}

func buildConsultationPayload(consultation domain.TaxConsultation) consultationPayload {
	return consultationPayload{
		ID:            consultation.ID,
		Segment:       string(consultation.Segment),
		FullName:      consultation.FullName,
		Email:         consultation.Email,
		Phone:         consultation.Phone,
		PreferredDate: consultation.PreferredDate,
		PreferredTime: consultation.PreferredTime,
		Notes:         consultation.Notes,
		Status:        string(consultation.Status),
		ConsultantRef: cloneStringPointer(consultation.ConsultantRef),
		CreatedAt:     formatTime(consultation.CreatedAt),
		UpdatedAt:     formatTime(consultation.UpdatedAt),
		CancelledAt:   formatTime(pointerTime(consultation.CancelledAt)),
	}
}

func parseConsultationStatuses(values []string) []domain.ConsultationStatus {
	raw := parseFilterValues(values)
	if len(raw) == 0 {
		return nil
	}
	statuses := make([]domain.ConsultationStatus, 0, len(raw))
	for _, value := range raw {
		statuses = append(statuses, domain.ConsultationStatus(strings.ToLower(value)))
	}
	return statuses
}

func consultationOwnedBy(consultation domain.TaxConsultation, identity *auth.Identity) bool {
	if identity == nil {
		return false
	}
	if consultation.UserRef != nil && *consultation.UserRef == identity.UID {
		return true
	}
	email := strings.TrimSpace(identity.Email)
	return email != "" && strings.EqualFold(consultation.Email, email)
}

func writeConsultationError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrConsultationInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrConsultationUnauthorized),
		errors.Is(err, services.ErrConsultationNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("consultation_not_found", "consultation not found", http.StatusNotFound))
	case errors.Is(err, services.ErrConsultationInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrConsultationConflict):
		httpx.WriteError(ctx, w, httpx.NewError("consultation_conflict", err.Error(), http.StatusConflict))
	case isRepositoryUnavailable(err):
		httpx.WriteError(ctx, w, httpx.NewError("consultation_service_unavailable", "consultation repository unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("consultation_error", "failed to process consultation request", http.StatusInternalServerError))
	}
}
