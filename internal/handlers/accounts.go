package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/rupeeplan/api/internal/domain"
	"github.com/rupeeplan/api/internal/platform/httpx"
	"github.com/rupeeplan/api/internal/services"
)

const maxAccountBodySize = 16 * 1024

// AccountHandlers exposes the public registration, login, and email
// verification endpoints.
type AccountHandlers struct {
	accounts services.AccountService
}

// NewAccountHandlers constructs handlers for the /public/auth endpoints.
func NewAccountHandlers(accounts services.AccountService) *AccountHandlers {
	return &AccountHandlers{accounts: accounts}
}

// Routes registers the auth endpoints on the provided router.
func (h *AccountHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/auth/register", h.register)
	r.Post("/auth/login", h.login)
	r.Post("/auth/otp/request", h.requestOTP)
	r.Post("/auth/otp/verify", h.verifyOTP)
}

func (h *AccountHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		writeServiceUnavailable(ctx, w, "account_service_unavailable", "account service is unavailable")
		return
	}

	var req registerRequest
	if !decodeAccountRequest(ctx, w, r, &req) {
		return
	}

	account, err := h.accounts.Register(ctx, services.RegisterAccountCommand{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
	})
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, accountResponse{Account: buildAccountPayload(account)})
}

func (h *AccountHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		writeServiceUnavailable(ctx, w, "account_service_unavailable", "account service is unavailable")
		return
	}

	var req loginRequest
	if !decodeAccountRequest(ctx, w, r, &req) {
		return
	}

	session, err := h.accounts.Login(ctx, services.LoginCommand{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, loginResponse{
		AccessToken: session.Token,
		TokenType:   "bearer",
		ExpiresAt:   formatTime(session.ExpiresAt),
		Account:     buildAccountPayload(session.Account),
	})
}

func (h *AccountHandlers) requestOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		writeServiceUnavailable(ctx, w, "account_service_unavailable", "account service is unavailable")
		return
	}

	var req otpRequest
	if !decodeAccountRequest(ctx, w, r, &req) {
		return
	}

	if err := h.accounts.RequestVerification(ctx, services.RequestVerificationCommand{Email: req.Email}); err != nil {
		writeAccountError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusAccepted, messageResponse{Message: "verification code sent"})
}

func (h *AccountHandlers) verifyOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		writeServiceUnavailable(ctx, w, "account_service_unavailable", "account service is unavailable")
		return
	}

	var req otpVerifyRequest
	if !decodeAccountRequest(ctx, w, r, &req) {
		return
	}

	account, err := h.accounts.VerifyEmail(ctx, services.VerifyEmailCommand{
		Email: req.Email,
		Code:  req.Code,
	})
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, accountResponse{Account: buildAccountPayload(account)})
}

// decodeAccountRequest reads and unmarshals the request body, writing the
// error response itself when decoding fails.
func decodeAccountRequest(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxAccountBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

type registerRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type otpRequest struct {
	Email string `json:"email"`
}

type otpVerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type accountResponse struct {
	Account accountPayload `json:"account"`
}

type loginResponse struct {
	AccessToken string         `json:"accessToken"`
	TokenType   string         `json:"tokenType"`
	ExpiresAt   string         `json:"expiresAt"`
	Account     accountPayload `json:"account"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type accountPayload struct {
	ID            string   `json:"id"`
	FullName      string   `json:"fullName"`
	Email         string   `json:"email"`
	Phone         string   `json:"phone"`
	Roles         []string `json:"roles"`
	EmailVerified bool     `json:"emailVerified"`
	IsActive      bool     `json:"isActive"`
	CreatedAt     string   `json:"createdAt"`
	UpdatedAt     string   `json:"updatedAt"`
	LastLoginAt   string   `json:"lastLoginAt,omitempty"`
}

func buildAccountPayload(account domain.UserAccount) accountPayload {
	roles := account.Roles
	if len(roles) == 0 {
		roles = []string{}
	}
	return accountPayload{
		ID:            account.ID,
		FullName:      account.FullName,
		Email:         account.Email,
		Phone:         account.Phone,
		Roles:         roles,
		EmailVerified: account.EmailVerified,
		IsActive:      account.IsActive,
		CreatedAt:     formatTime(account.CreatedAt),
		UpdatedAt:     formatTime(account.UpdatedAt),
		LastLoginAt:   formatTime(pointerTime(account.LastLoginAt)),
	}
}

func writeAccountError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrAccountInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAccountConflict):
		httpx.WriteError(ctx, w, httpx.NewError("account_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrAccountNotVerified):
		httpx.WriteError(ctx, w, httpx.NewError("email_not_verified", "email address is not verified", http.StatusForbidden))
	case errors.Is(err, services.ErrAccountUnauthorized):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_credentials", "invalid email or password", http.StatusUnauthorized))
	case errors.Is(err, services.ErrAccountNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("account_not_found", "account not found", http.StatusNotFound))
	case isRepositoryUnavailable(err):
		httpx.WriteError(ctx, w, httpx.NewError("account_service_unavailable", "account repository unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("account_error", "failed to process account request", http.StatusInternalServerError))
	}
}
