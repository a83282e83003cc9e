package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rupeeplan/api/internal/platform/auth"
	"github.com/rupeeplan/api/internal/platform/httpx"
	"github.com/rupeeplan/api/internal/repositories"
	"github.com/rupeeplan/api/internal/services"
)

const (
	defaultListPageSize = 20
	maxListPageSize     = 100
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

// MeHandlers exposes the authenticated customer surface: the profile plus the
// caller's own consultations, applications, and calculator history.
type MeHandlers struct {
	sessions      *auth.SessionManager
	accounts      services.AccountService
	consultations services.ConsultationService
	applications  services.ApplicationService
	calculations  services.CalculationService
}

// NewMeHandlers constructs handlers enforcing session authentication before
// invoking the underlying services.
func NewMeHandlers(
	sessions *auth.SessionManager,
	accounts services.AccountService,
	consultations services.ConsultationService,
	applications services.ApplicationService,
	calculations services.CalculationService,
) *MeHandlers {
	return &MeHandlers{
		sessions:      sessions,
		accounts:      accounts,
		consultations: consultations,
		applications:  applications,
		calculations:  calculations,
	}
}

// Routes wires the /me endpoints onto the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.sessions != nil {
		r.Use(h.sessions.RequireSession())
	}
	r.Get("/profile", h.getProfile)
	r.Route("/tax", func(tax chi.Router) {
		tax.Route("/consultations", h.consultationRoutes)
		tax.Route("/applications", h.applicationRoutes)
		tax.Get("/calculations", h.listCalculations)
	})
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("account_service_unavailable", "account service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requestIdentity(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	account, err := h.accounts.GetAccount(ctx, identity.UID)
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, accountResponse{Account: buildAccountPayload(account)})
}

// requestIdentity fetches the authenticated identity attached by the session
// middleware. The bool is false for anonymous requests.
func requestIdentity(ctx context.Context) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		return nil, false
	}
	return identity, true
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeServiceUnavailable(ctx context.Context, w http.ResponseWriter, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, http.StatusServiceUnavailable))
}

// parsePagination reads page_size and page_token query parameters, clamping
// the size to the service-wide window.
func parsePagination(r *http.Request) (services.Pagination, error) {
	query := r.URL.Query()

	pageSize := defaultListPageSize
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return services.Pagination{}, errors.New("page_size must be an integer")
		}
		switch {
		case size <= 0:
			pageSize = defaultListPageSize
		case size > maxListPageSize:
			pageSize = maxListPageSize
		default:
			pageSize = size
		}
	}

	return services.Pagination{
		PageSize:  pageSize,
		PageToken: strings.TrimSpace(query.Get("page_token")),
	}, nil
}

func parseFilterValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseTimeParam(raw string) (time.Time, error) {
	layouts := []string{time.RFC3339Nano, time.RFC3339}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, errors.New("invalid timestamp")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func pointerTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func cloneStringPointer(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func isRepositoryUnavailable(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
