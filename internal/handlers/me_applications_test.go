package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "github.com/rupeeplan/api/internal/domain"
	"github.com/rupeeplan/api/internal/services"
)

type stubApplicationService struct {
	submitFn   func(ctx context.Context, cmd services.SubmitApplicationCommand) (services.TaxPlanningApplication, error)
	getFn      func(ctx context.Context, applicationID string) (services.TaxPlanningApplication, error)
	listFn     func(ctx context.Context, filter services.ApplicationListFilter) (domain.CursorPage[services.TaxPlanningApplication], error)
	statusFn   func(ctx context.Context, cmd services.ApplicationStatusCommand) (services.TaxPlanningApplication, error)
	uploadFn   func(ctx context.Context, cmd services.DocumentUploadCommand) (services.SignedAssetResponse, error)
	completeFn func(ctx context.Context, cmd services.CompleteDocumentCommand) (services.ApplicationDocument, error)
	downloadFn func(ctx context.Context, cmd services.DocumentDownloadCommand) (services.SignedAssetResponse, error)
	deleteFn   func(ctx context.Context, cmd services.DeleteApplicationCommand) error
}

func (s *stubApplicationService) Submit(ctx context.Context, cmd services.SubmitApplicationCommand) (services.TaxPlanningApplication, error) {
	if s.submitFn != nil {
		return s.submitFn(ctx, cmd)
	}
	return services.TaxPlanningApplication{}, errors.New("not implemented")
}

func (s *stubApplicationService) GetApplication(ctx context.Context, applicationID string) (services.TaxPlanningApplication, error) {
	if s.getFn != nil {
		return s.getFn(ctx, applicationID)
	}
	return services.TaxPlanningApplication{}, services.ErrApplicationNotFound
}

func (s *stubApplicationService) ListApplications(ctx context.Context, filter services.ApplicationListFilter) (domain.CursorPage[services.TaxPlanningApplication], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.TaxPlanningApplication]{}, errors.New("not implemented")
}

func (s *stubApplicationService) UpdateStatus(ctx context.Context, cmd services.ApplicationStatusCommand) (services.TaxPlanningApplication, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx, cmd)
	}
	return services.TaxPlanningApplication{}, errors.New("not implemented")
}

func (s *stubApplicationService) RequestDocumentUpload(ctx context.Context, cmd services.DocumentUploadCommand) (services.SignedAssetResponse, error) {
	if s.uploadFn != nil {
		return s.uploadFn(ctx, cmd)
	}
	return services.SignedAssetResponse{}, errors.New("not implemented")
}

func (s *stubApplicationService) CompleteDocumentUpload(ctx context.Context, cmd services.CompleteDocumentCommand) (services.ApplicationDocument, error) {
	if s.completeFn != nil {
		return s.completeFn(ctx, cmd)
	}
	return services.ApplicationDocument{}, errors.New("not implemented")
}

func (s *stubApplicationService) RequestDocumentDownload(ctx context.Context, cmd services.DocumentDownloadCommand) (services.SignedAssetResponse, error) {
	if s.downloadFn != nil {
		return s.downloadFn(ctx, cmd)
	}
	return services.SignedAssetResponse{}, errors.New("not implemented")
}

func (s *stubApplicationService) Delete(ctx context.Context, cmd services.DeleteApplicationCommand) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, cmd)
	}
	return errors.New("not implemented")
}

func sampleApplication(id, userRef string) services.TaxPlanningApplication {
	created := time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC)
	application := services.TaxPlanningApplication{
		ID:       id,
		Segment:  domain.TaxSegmentPersonal,
		FullName: "Asha Verma",
		Email:    "asha@example.in",
		Phone:    "9876543210",
		PAN:      "ABCPV1234F",
		Status:   domain.ApplicationStatusSubmitted,
		Personal: &domain.PersonalApplicationDetails{
			AnnualIncomeRange:  "10-15 lakhs",
			EmploymentType:     domain.EmploymentTypeSalaried,
			PreferredTaxRegime: domain.TaxRegimeOld,
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
	if userRef != "" {
		ref := userRef
		application.UserRef = &ref
	}
	return application
}

func TestSubmitApplicationMapsPersonalDetails(t *testing.T) {
	var captured services.SubmitApplicationCommand
	service := &stubApplicationService{
		submitFn: func(_ context.Context, cmd services.SubmitApplicationCommand) (services.TaxPlanningApplication, error) {
			captured = cmd
			return sampleApplication("app-1", "user-1"), nil
		},
	}

	handler := NewMeHandlers(nil, nil, nil, service, nil)
	router := newMeRouter(handler)

	body := `{
		"segment": "personal",
		"fullName": "Asha Verma",
		"phone": "9876543210",
		"pan": "ABCPV1234F",
		"personal": {
			"annualIncomeRange": "10-15 lakhs",
			"employmentType": "salaried",
			"preferredTaxRegime": "old",
			"additionalInfo": "HRA exemption pending"
		}
	}`
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/me/applications", strings.NewReader(body)), "user-1", "asha@example.in")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.PAN != "ABCPV1234F" {
		t.Fatalf("expected PAN to pass through, got %q", captured.PAN)
	}
	if captured.UserRef == nil || *captured.UserRef != "user-1" {
		t.Fatalf("expected command to carry the caller ref, got %v", captured.UserRef)
	}
	if captured.Email != "asha@example.in" {
		t.Fatalf("expected identity email fallback, got %q", captured.Email)
	}
	if captured.Personal == nil {
		t.Fatalf("expected personal details to be mapped")
	}
	if captured.Personal.EmploymentType != domain.EmploymentTypeSalaried || captured.Personal.PreferredTaxRegime != domain.TaxRegimeOld {
		t.Fatalf("unexpected personal details %+v", captured.Personal)
	}
	responseBody := rr.Body.String()
	if !strings.Contains(responseBody, `"id":"app-1"`) {
		t.Fatalf("expected application payload, got %s", responseBody)
	}
	if !strings.Contains(responseBody, `"documents":[]`) {
		t.Fatalf("expected empty documents array, got %s", responseBody)
	}
}

func TestSubmitApplicationDuplicatePAN(t *testing.T) {
	service := &stubApplicationService{
		submitFn: func(context.Context, services.SubmitApplicationCommand) (services.TaxPlanningApplication, error) {
			return services.TaxPlanningApplication{}, services.ErrApplicationConflict
		},
	}

	handler := NewMeHandlers(nil, nil, nil, service, nil)
	router := newMeRouter(handler)

	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/me/applications", strings.NewReader(`{"segment":"personal","pan":"ABCPV1234F"}`)), "user-1", "asha@example.in")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "application_conflict") {
		t.Fatalf("expected application_conflict code, got %s", rr.Body.String())
	}
}

func TestListMyApplicationsByStatus(t *testing.T) {
	var captured services.ApplicationListFilter
	service := &stubApplicationService{
		listFn: func(_ context.Context, filter services.ApplicationListFilter) (domain.CursorPage[services.TaxPlanningApplication], error) {
			captured = filter
			return domain.CursorPage[services.TaxPlanningApplication]{
				Items: []services.TaxPlanningApplication{sampleApplication("app-1", "user-1")},
			}, nil
		},
	}

	handler := NewMeHandlers(nil, nil, nil, service, nil)
	router := newMeRouter(handler)

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/me/applications?status=Under-Review", nil), "user-1", "asha@example.in")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserRef != "user-1" {
		t.Fatalf("expected filter scoped to caller, got %q", captured.UserRef)
	}
	if len(captured.Status) != 1 || captured.Status[0] != domain.ApplicationStatusUnderReview {
		t.Fatalf("unexpected status filter %v", captured.Status)
	}
}

func TestGetMyApplicationHidesForeignApplication(t *testing.T) {
	service := &stubApplicationService{
		getFn: func(_ context.Context, applicationID string) (services.TaxPlanningApplication, error) {
			application := sampleApplication(applicationID, "user-2")
			application.Email = "someone.else@example.in"
			return application, nil
		},
	}

	handler := NewMeHandlers(nil, nil, nil, service, nil)
	router := newMeRouter(handler)

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/me/applications/app-7", nil), "user-1", "asha@example.in")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for foreign application, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "application_not_found") {
		t.Fatalf("expected application_not_found code, got %s", rr.Body.String())
	}
}

func TestRequestDocumentUploadReturnsSignedURL(t *testing.T) {
	var captured services.DocumentUploadCommand
	service := &stubApplicationService{
		uploadFn: func(_ context.Context, cmd services.DocumentUploadCommand) (services.SignedAssetResponse, error) {
			captured = cmd
			return services.SignedAssetResponse{
				AssetID:   "asset-42",
				URL:       "https://storage.example.com/upload/asset-42",
				Method:    http.MethodPut,
				ExpiresAt: time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC),
				Headers:   map[string]string{"Content-Type": "application/pdf"},
			}, nil
		},
	}

	handler := NewMeHandlers(nil, nil, nil, service, nil)
	router := newMeRouter(handler)

	body := `{"fileName":"form16.pdf","contentType":"application/pdf","sizeBytes":48213}`
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/me/applications/app-1/documents", strings.NewReader(body)), "user-1", "asha@example.in")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ApplicationID != "app-1" || captured.ActorRef != "user-1" {
		t.Fatalf("unexpected upload command %+v", captured)
	}
	if captured.FileName != "form16.pdf" || captured.SizeBytes != 48213 {
		t.Fatalf("unexpected file metadata %+v", captured)
	}

	var payload documentUploadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.AssetID != "asset-42" || payload.UploadURL != "https://storage.example.com/upload/asset-42" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.Method != http.MethodPut || payload.ExpiresAt != "2025-06-03T09:00:00Z" {
		t.Fatalf("unexpected signing details %+v", payload)
	}
}

func TestCompleteDocumentUpload(t *testing.T) {
	var captured services.CompleteDocumentCommand
	uploaded := time.Date(2025, 6, 3, 9, 5, 0, 0, time.UTC)
	service := &stubApplicationService{
		completeFn: func(_ context.Context, cmd services.CompleteDocumentCommand) (services.ApplicationDocument, error) {
			captured = cmd
			return services.ApplicationDocument{
				AssetID:     cmd.AssetID,
				FileName:    "form16.pdf",
				ContentType: "application/pdf",
				SizeBytes:   48213,
				StoragePath: "applications/app-1/asset-42",
				UploadedAt:  &uploaded,
				CreatedAt:   uploaded.Add(-time.Minute),
			}, nil
		},
	}

	handler := NewMeHandlers(nil, nil, nil, service, nil)
	router := newMeRouter(handler)

	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/me/applications/app-1/documents/asset-42/complete", nil), "user-1", "asha@example.in")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ApplicationID != "app-1" || captured.AssetID != "asset-42" || captured.ActorRef != "user-1" {
		t.Fatalf("unexpected complete command %+v", captured)
	}
	if !strings.Contains(rr.Body.String(), `"assetId":"asset-42"`) {
		t.Fatalf("expected document payload, got %s", rr.Body.String())
	}
}

func TestRequestDocumentUploadMasksUnauthorized(t *testing.T) {
	service := &stubApplicationService{
		uploadFn: func(context.Context, services.DocumentUploadCommand) (services.SignedAssetResponse, error) {
			return services.SignedAssetResponse{}, services.ErrApplicationUnauthorized
		},
	}

	handler := NewMeHandlers(nil, nil, nil, service, nil)
	router := newMeRouter(handler)

	body := `{"fileName":"form16.pdf","contentType":"application/pdf","sizeBytes":1024}`
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/me/applications/app-1/documents", strings.NewReader(body)), "user-9", "other@example.in")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected unauthorized access to read as 404, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "application_not_found") {
		t.Fatalf("expected application_not_found code, got %s", rr.Body.String())
	}
}
