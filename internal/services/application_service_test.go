package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	domain "github.com/rupeeplan/api/internal/domain"
	"github.com/rupeeplan/api/internal/repositories"
)

func TestApplicationServiceSubmitPersonal(t *testing.T) {
	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	repo := newMemoryApplicationRepo()
	assets := &stubAssetStore{}
	publisher := &captureNotificationPublisher{}

	svc, err := NewApplicationService(ApplicationServiceDeps{
		Applications:  repo,
		Assets:        assets,
		Clock:         func() time.Time { return now },
		IDGenerator:   func() string { return "tapp_test" },
		Notifications: publisher,
	})
	if err != nil {
		t.Fatalf("new application service: %v", err)
	}

	application, err := svc.Submit(context.Background(), SubmitApplicationCommand{
		Segment:  domain.TaxSegmentPersonal,
		FullName: " Arjun  Mehta ",
		Email:    "Arjun@Example.COM",
		Phone:    "+91 91234 56789",
		PAN:      " abcde1234f ",
		Personal: &PersonalApplicationDetails{
			AnnualIncomeRange:  "10-20",
			EmploymentType:     "Salaried",
			PreferredTaxRegime: "not-sure",
			AdditionalInfo:     "  Planning to buy a house\r\nnext year ",
		},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if application.ID != "tapp_test" {
		t.Fatalf("expected id tapp_test, got %s", application.ID)
	}
	if application.PAN != "ABCDE1234F" {
		t.Fatalf("expected normalized pan, got %q", application.PAN)
	}
	if application.Status != domain.ApplicationStatusSubmitted {
		t.Fatalf("expected submitted, got %s", application.Status)
	}
	if application.Personal == nil || application.Personal.EmploymentType != domain.EmploymentTypeSalaried {
		t.Fatalf("unexpected personal details %+v", application.Personal)
	}
	if application.Personal.AdditionalInfo != "Planning to buy a house\nnext year" {
		t.Fatalf("expected sanitized info, got %q", application.Personal.AdditionalInfo)
	}
	if application.SearchKey != "arjun mehta arjun@example.com abcde1234f" {
		t.Fatalf("unexpected search key %q", application.SearchKey)
	}

	if len(publisher.messages) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(publisher.messages))
	}
	message := publisher.messages[0]
	if message.Kind != NotificationKindApplicationStatus || message.Payload["status"] != "submitted" {
		t.Fatalf("unexpected notification %#v", message)
	}
}

func TestApplicationServiceSubmitRequiresMatchingDetails(t *testing.T) {
	repo := newMemoryApplicationRepo()
	svc := newTestApplicationService(t, repo, &stubAssetStore{}, nil)

	base := SubmitApplicationCommand{
		Segment:  domain.TaxSegmentPersonal,
		FullName: "Arjun Mehta",
		Email:    "arjun@example.com",
		Phone:    "9123456789",
		PAN:      "ABCDE1234F",
	}

	_, err := svc.Submit(context.Background(), base)
	if !errors.Is(err, ErrApplicationInvalidInput) {
		t.Fatalf("expected missing details rejection, got %v", err)
	}

	withBoth := base
	withBoth.Personal = &PersonalApplicationDetails{AnnualIncomeRange: "10-20", EmploymentType: "salaried", PreferredTaxRegime: "old"}
	withBoth.Business = &BusinessApplicationDetails{BusinessName: "Acme", BusinessStructure: "llp", IndustryType: "finance", TurnoverRange: "1-5cr"}
	_, err = svc.Submit(context.Background(), withBoth)
	if !errors.Is(err, ErrApplicationInvalidInput) {
		t.Fatalf("expected both-details rejection, got %v", err)
	}
}

func TestApplicationServiceSubmitDuplicatePAN(t *testing.T) {
	repo := newMemoryApplicationRepo()
	repo.applications["tapp_existing"] = domain.TaxPlanningApplication{
		ID:      "tapp_existing",
		Segment: domain.TaxSegmentPersonal,
		PAN:     "ABCDE1234F",
		Status:  domain.ApplicationStatusUnderReview,
	}
	svc := newTestApplicationService(t, repo, &stubAssetStore{}, nil)

	_, err := svc.Submit(context.Background(), SubmitApplicationCommand{
		Segment:  domain.TaxSegmentPersonal,
		FullName: "Arjun Mehta",
		Email:    "arjun@example.com",
		Phone:    "9123456789",
		PAN:      "abcde1234f",
		Personal: &PersonalApplicationDetails{AnnualIncomeRange: "10-20", EmploymentType: "salaried", PreferredTaxRegime: "new"},
	})
	if !errors.Is(err, ErrApplicationConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// A rejected application does not block resubmission.
	repo.applications["tapp_existing"] = domain.TaxPlanningApplication{
		ID:      "tapp_existing",
		Segment: domain.TaxSegmentPersonal,
		PAN:     "ABCDE1234F",
		Status:  domain.ApplicationStatusRejected,
	}
	if _, err := svc.Submit(context.Background(), SubmitApplicationCommand{
		Segment:  domain.TaxSegmentPersonal,
		FullName: "Arjun Mehta",
		Email:    "arjun@example.com",
		Phone:    "9123456789",
		PAN:      "abcde1234f",
		Personal: &PersonalApplicationDetails{AnnualIncomeRange: "10-20", EmploymentType: "salaried", PreferredTaxRegime: "new"},
	}); err != nil {
		t.Fatalf("expected resubmission after rejection, got %v", err)
	}
}

func TestApplicationServiceSubmitBusinessValidation(t *testing.T) {
	valid := SubmitApplicationCommand{
		Segment:  domain.TaxSegmentBusiness,
		FullName: "Meera Shah",
		Email:    "meera@example.com",
		Phone:    "9123456789",
		PAN:      "FGHIJ5678K",
		Business: &BusinessApplicationDetails{
			BusinessName:      "Shah Textiles",
			BusinessStructure: "private-limited",
			GSTNumber:         "27abcde1234f1z5",
			IndustryType:      "manufacturing",
			TurnoverRange:     "1-5cr",
			EmployeeRange:     "11-50",
			ServicesRequired:  []string{" tax-planning ", "", "gst-filing"},
			BusinessDetails:   "Looking to restructure",
		},
	}

	t.Run("valid submission normalizes", func(t *testing.T) {
		repo := newMemoryApplicationRepo()
		svc := newTestApplicationService(t, repo, &stubAssetStore{}, nil)
		application, err := svc.Submit(context.Background(), valid)
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if application.Business.GSTNumber != "27ABCDE1234F1Z5" {
			t.Fatalf("expected uppercased gst, got %q", application.Business.GSTNumber)
		}
		if len(application.Business.ServicesRequired) != 2 {
			t.Fatalf("expected blank services dropped, got %v", application.Business.ServicesRequired)
		}
	})

	cases := []struct {
		name   string
		mutate func(*BusinessApplicationDetails)
	}{
		{"bad gst", func(d *BusinessApplicationDetails) { d.GSTNumber = "INVALID" }},
		{"bad structure", func(d *BusinessApplicationDetails) { d.BusinessStructure = "sole-trader" }},
		{"bad industry", func(d *BusinessApplicationDetails) { d.IndustryType = "mining" }},
		{"bad turnover", func(d *BusinessApplicationDetails) { d.TurnoverRange = "1-2cr" }},
		{"bad employees", func(d *BusinessApplicationDetails) { d.EmployeeRange = "lots" }},
		{"short name", func(d *BusinessApplicationDetails) { d.BusinessName = "A" }},
		{"oversized details", func(d *BusinessApplicationDetails) { d.BusinessDetails = strings.Repeat("y", 1001) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemoryApplicationRepo()
			svc := newTestApplicationService(t, repo, &stubAssetStore{}, nil)
			cmd := valid
			details := *valid.Business
			tc.mutate(&details)
			cmd.Business = &details
			if _, err := svc.Submit(context.Background(), cmd); !errors.Is(err, ErrApplicationInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestApplicationServiceUpdateStatusTransitions(t *testing.T) {
	now := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	repo := newMemoryApplicationRepo()
	repo.applications["tapp_1"] = domain.TaxPlanningApplication{
		ID:      "tapp_1",
		Segment: domain.TaxSegmentPersonal,
		Email:   "arjun@example.com",
		Status:  domain.ApplicationStatusSubmitted,
	}
	publisher := &captureNotificationPublisher{}

	svc, err := NewApplicationService(ApplicationServiceDeps{
		Applications:  repo,
		Assets:        &stubAssetStore{},
		Clock:         func() time.Time { return now },
		Notifications: publisher,
	})
	if err != nil {
		t.Fatalf("new application service: %v", err)
	}

	ctx := context.Background()
	updated, err := svc.UpdateStatus(ctx, ApplicationStatusCommand{
		ApplicationID: "tapp_1",
		Status:        domain.ApplicationStatusUnderReview,
		ActorRef:      "adm_1",
	})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.ApplicationStatusUnderReview {
		t.Fatalf("expected under-review, got %s", updated.Status)
	}
	if len(publisher.messages) != 1 || publisher.messages[0].Payload["status"] != "under-review" {
		t.Fatalf("expected status notification, got %#v", publisher.messages)
	}

	same, err := svc.UpdateStatus(ctx, ApplicationStatusCommand{
		ApplicationID: "tapp_1",
		Status:        domain.ApplicationStatusUnderReview,
		ActorRef:      "adm_1",
	})
	if err != nil {
		t.Fatalf("idempotent update: %v", err)
	}
	if same.Status != domain.ApplicationStatusUnderReview {
		t.Fatalf("expected unchanged status, got %s", same.Status)
	}
	if len(publisher.messages) != 1 {
		t.Fatalf("idempotent update must not notify again, got %d", len(publisher.messages))
	}

	if _, err := svc.UpdateStatus(ctx, ApplicationStatusCommand{
		ApplicationID: "tapp_1",
		Status:        domain.ApplicationStatusApproved,
		ActorRef:      "adm_1",
	}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	_, err = svc.UpdateStatus(ctx, ApplicationStatusCommand{
		ApplicationID: "tapp_1",
		Status:        domain.ApplicationStatusUnderReview,
		ActorRef:      "adm_1",
	})
	if !errors.Is(err, ErrApplicationInvalidState) {
		t.Fatalf("expected terminal state rejection, got %v", err)
	}

	_, err = svc.UpdateStatus(ctx, ApplicationStatusCommand{
		ApplicationID: "tapp_1",
		Status:        "archived",
		ActorRef:      "adm_1",
	})
	if !errors.Is(err, ErrApplicationInvalidInput) {
		t.Fatalf("expected unknown status rejection, got %v", err)
	}
}

func TestApplicationServiceDocumentUploadFlow(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	userRef := "usr_9"
	repo := newMemoryApplicationRepo()
	repo.applications["tapp_1"] = domain.TaxPlanningApplication{
		ID:      "tapp_1",
		Segment: domain.TaxSegmentBusiness,
		Email:   "meera@example.com",
		Status:  domain.ApplicationStatusSubmitted,
		UserRef: &userRef,
	}
	assets := &stubAssetStore{}

	svc, err := NewApplicationService(ApplicationServiceDeps{
		Applications: repo,
		Assets:       assets,
		Clock:        func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new application service: %v", err)
	}

	ctx := context.Background()
	signed, err := svc.RequestDocumentUpload(ctx, DocumentUploadCommand{
		ApplicationID: "tapp_1",
		ActorRef:      "usr_9",
		FileName:      "balance-sheet.pdf",
		ContentType:   "application/pdf",
		SizeBytes:     512 * 1024,
	})
	if err != nil {
		t.Fatalf("request upload: %v", err)
	}
	if signed.AssetID == "" || signed.URL == "" {
		t.Fatalf("expected signed response, got %+v", signed)
	}

	stored := repo.applications["tapp_1"]
	if len(stored.Documents) != 1 {
		t.Fatalf("expected attached document, got %d", len(stored.Documents))
	}
	document := stored.Documents[0]
	if document.AssetID != signed.AssetID || document.UploadedAt != nil {
		t.Fatalf("unexpected document %+v", document)
	}
	if document.StoragePath != signed.StoragePath {
		t.Fatalf("expected storage path %q, got %q", signed.StoragePath, document.StoragePath)
	}

	completed, err := svc.CompleteDocumentUpload(ctx, CompleteDocumentCommand{
		ApplicationID: "tapp_1",
		AssetID:       signed.AssetID,
		ActorRef:      "usr_9",
	})
	if err != nil {
		t.Fatalf("complete upload: %v", err)
	}
	if completed.UploadedAt == nil || !completed.UploadedAt.Equal(now) {
		t.Fatalf("expected uploaded at %s, got %v", now, completed.UploadedAt)
	}
	if len(assets.marked) != 1 || assets.marked[0] != signed.AssetID {
		t.Fatalf("expected asset marked uploaded, got %v", assets.marked)
	}

	download, err := svc.RequestDocumentDownload(ctx, DocumentDownloadCommand{
		ApplicationID: "tapp_1",
		AssetID:       signed.AssetID,
		ActorRef:      "usr_admin",
	})
	if err != nil {
		t.Fatalf("request download: %v", err)
	}
	if download.URL == "" || download.AssetID != signed.AssetID {
		t.Fatalf("unexpected download response %+v", download)
	}
	if len(assets.downloads) != 1 || assets.downloads[0].ActorRef != "usr_admin" {
		t.Fatalf("unexpected download records %v", assets.downloads)
	}
}

func TestApplicationServiceDocumentDownloadGuards(t *testing.T) {
	pending := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	repo := newMemoryApplicationRepo()
	repo.applications["tapp_1"] = domain.TaxPlanningApplication{
		ID:     "tapp_1",
		Status: domain.ApplicationStatusSubmitted,
		Documents: []domain.ApplicationDocument{
			{AssetID: "ast_pending", FileName: "draft.pdf", CreatedAt: pending},
		},
	}
	svc := newTestApplicationService(t, repo, &stubAssetStore{}, nil)
	ctx := context.Background()

	_, err := svc.RequestDocumentDownload(ctx, DocumentDownloadCommand{ApplicationID: "tapp_1", AssetID: "ast_other"})
	if !errors.Is(err, ErrApplicationNotFound) {
		t.Fatalf("expected not found for a foreign asset, got %v", err)
	}

	_, err = svc.RequestDocumentDownload(ctx, DocumentDownloadCommand{ApplicationID: "tapp_1", AssetID: "ast_pending"})
	if !errors.Is(err, ErrApplicationInvalidState) {
		t.Fatalf("expected invalid state for an incomplete upload, got %v", err)
	}

	_, err = svc.RequestDocumentDownload(ctx, DocumentDownloadCommand{ApplicationID: "tapp_missing", AssetID: "ast_pending"})
	if !errors.Is(err, ErrApplicationNotFound) {
		t.Fatalf("expected not found for unknown application, got %v", err)
	}
}

func TestApplicationServiceDocumentUploadValidation(t *testing.T) {
	userRef := "usr_9"
	repo := newMemoryApplicationRepo()
	repo.applications["tapp_1"] = domain.TaxPlanningApplication{
		ID:      "tapp_1",
		Segment: domain.TaxSegmentBusiness,
		Email:   "meera@example.com",
		Status:  domain.ApplicationStatusSubmitted,
		UserRef: &userRef,
	}
	repo.applications["tapp_rejected"] = domain.TaxPlanningApplication{
		ID:      "tapp_rejected",
		Segment: domain.TaxSegmentBusiness,
		Email:   "meera@example.com",
		Status:  domain.ApplicationStatusRejected,
		UserRef: &userRef,
	}
	svc := newTestApplicationService(t, repo, &stubAssetStore{}, nil)
	ctx := context.Background()

	valid := DocumentUploadCommand{
		ApplicationID: "tapp_1",
		ActorRef:      "usr_9",
		FileName:      "statement.pdf",
		ContentType:   "application/pdf",
		SizeBytes:     1024,
	}

	cases := []struct {
		name    string
		mutate  func(*DocumentUploadCommand)
		wantErr error
	}{
		{"unsupported extension", func(c *DocumentUploadCommand) { c.FileName = "malware.exe" }, ErrApplicationInvalidInput},
		{"mismatched content type", func(c *DocumentUploadCommand) { c.ContentType = "image/png" }, ErrApplicationInvalidInput},
		{"zero size", func(c *DocumentUploadCommand) { c.SizeBytes = 0 }, ErrApplicationInvalidInput},
		{"oversize", func(c *DocumentUploadCommand) { c.SizeBytes = applicationDocumentMaxSize + 1 }, ErrApplicationInvalidInput},
		{"foreign actor", func(c *DocumentUploadCommand) { c.ActorRef = "usr_2" }, ErrApplicationUnauthorized},
		{"rejected application", func(c *DocumentUploadCommand) { c.ApplicationID = "tapp_rejected" }, ErrApplicationInvalidState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := valid
			tc.mutate(&cmd)
			if _, err := svc.RequestDocumentUpload(ctx, cmd); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}

	// Owner matching by email also works for guest submissions.
	if _, err := svc.RequestDocumentUpload(ctx, DocumentUploadCommand{
		ApplicationID: "tapp_1",
		ActorEmail:    "MEERA@example.com",
		FileName:      "statement.pdf",
		ContentType:   "application/pdf",
		SizeBytes:     1024,
	}); err != nil {
		t.Fatalf("email-matched upload: %v", err)
	}
}

// --- test doubles -----------------------------------------------------------------

func newTestApplicationService(t *testing.T, repo repositories.ApplicationRepository, assets repositories.AssetRepository, publisher NotificationPublisher) ApplicationService {
	t.Helper()
	svc, err := NewApplicationService(ApplicationServiceDeps{
		Applications:  repo,
		Assets:        assets,
		IDGenerator:   func() string { return "tapp_" + fmt.Sprint(time.Now().UnixNano()) },
		Notifications: publisher,
	})
	if err != nil {
		t.Fatalf("new application service: %v", err)
	}
	return svc
}

type memoryApplicationRepo struct {
	applications map[string]domain.TaxPlanningApplication
}

func newMemoryApplicationRepo() *memoryApplicationRepo {
	return &memoryApplicationRepo{applications: make(map[string]domain.TaxPlanningApplication)}
}

func (m *memoryApplicationRepo) Insert(_ context.Context, application domain.TaxPlanningApplication) error {
	if _, exists := m.applications[application.ID]; exists {
		return appRepoErr{message: "duplicate", conflict: true}
	}
	m.applications[application.ID] = application
	return nil
}

func (m *memoryApplicationRepo) Update(_ context.Context, application domain.TaxPlanningApplication) (domain.TaxPlanningApplication, error) {
	if _, ok := m.applications[application.ID]; !ok {
		return domain.TaxPlanningApplication{}, appRepoErr{message: "not found", notFound: true}
	}
	m.applications[application.ID] = application
	return application, nil
}

func (m *memoryApplicationRepo) Delete(_ context.Context, applicationID string) error {
	if _, ok := m.applications[applicationID]; !ok {
		return appRepoErr{message: "not found", notFound: true}
	}
	delete(m.applications, applicationID)
	return nil
}

func (m *memoryApplicationRepo) FindByID(_ context.Context, applicationID string) (domain.TaxPlanningApplication, error) {
	application, ok := m.applications[applicationID]
	if !ok {
		return domain.TaxPlanningApplication{}, appRepoErr{message: "not found", notFound: true}
	}
	return application, nil
}

func (m *memoryApplicationRepo) FindActiveByPAN(_ context.Context, segment domain.TaxSegment, pan string) (domain.TaxPlanningApplication, error) {
	for _, application := range m.applications {
		if application.Segment != segment || application.PAN != pan {
			continue
		}
		switch application.Status {
		case domain.ApplicationStatusSubmitted, domain.ApplicationStatusUnderReview, domain.ApplicationStatusApproved:
			return application, nil
		}
	}
	return domain.TaxPlanningApplication{}, appRepoErr{message: "not found", notFound: true}
}

func (m *memoryApplicationRepo) List(_ context.Context, _ repositories.ApplicationListFilter) (domain.CursorPage[domain.TaxPlanningApplication], error) {
	items := make([]domain.TaxPlanningApplication, 0, len(m.applications))
	for _, application := range m.applications {
		items = append(items, application)
	}
	return domain.CursorPage[domain.TaxPlanningApplication]{Items: items}, nil
}

func (m *memoryApplicationRepo) AttachDocument(_ context.Context, applicationID string, doc domain.ApplicationDocument) (domain.TaxPlanningApplication, error) {
	application, ok := m.applications[applicationID]
	if !ok {
		return domain.TaxPlanningApplication{}, appRepoErr{message: "not found", notFound: true}
	}
	replaced := false
	for i := range application.Documents {
		if application.Documents[i].AssetID == doc.AssetID {
			application.Documents[i] = doc
			replaced = true
			break
		}
	}
	if !replaced {
		application.Documents = append(application.Documents, doc)
	}
	application.UpdatedAt = doc.CreatedAt
	m.applications[applicationID] = application
	return application, nil
}

func (m *memoryApplicationRepo) MarkDocumentUploaded(_ context.Context, applicationID string, assetID string, uploadedAt time.Time) (domain.ApplicationDocument, error) {
	application, ok := m.applications[applicationID]
	if !ok {
		return domain.ApplicationDocument{}, appRepoErr{message: "not found", notFound: true}
	}
	for i := range application.Documents {
		if application.Documents[i].AssetID != assetID {
			continue
		}
		if application.Documents[i].UploadedAt == nil {
			ts := uploadedAt
			application.Documents[i].UploadedAt = &ts
		}
		m.applications[applicationID] = application
		return application.Documents[i], nil
	}
	return domain.ApplicationDocument{}, appRepoErr{message: "document not attached", notFound: true}
}

func (m *memoryApplicationRepo) Count(_ context.Context, _ repositories.ApplicationCountFilter) (int64, error) {
	return int64(len(m.applications)), nil
}

type stubAssetStore struct {
	uploads   []repositories.SignedUploadRecord
	downloads []repositories.SignedDownloadRecord
	marked    []string
}

func (s *stubAssetStore) CreateSignedUpload(_ context.Context, cmd repositories.SignedUploadRecord) (domain.SignedAssetResponse, error) {
	s.uploads = append(s.uploads, cmd)
	assetID := fmt.Sprintf("ast_%d", len(s.uploads))
	return domain.SignedAssetResponse{
		AssetID:     assetID,
		URL:         "https://storage.example/" + assetID,
		StoragePath: "assets/documents/" + assetID,
		Method:      "PUT",
		ExpiresAt:   time.Date(2026, 3, 4, 10, 15, 0, 0, time.UTC),
	}, nil
}

func (s *stubAssetStore) CreateSignedDownload(_ context.Context, cmd repositories.SignedDownloadRecord) (domain.SignedAssetResponse, error) {
	s.downloads = append(s.downloads, cmd)
	return domain.SignedAssetResponse{
		AssetID: cmd.AssetID,
		URL:     "https://storage.example/download/" + cmd.AssetID,
		Method:  "GET",
	}, nil
}

func (s *stubAssetStore) MarkUploaded(_ context.Context, assetID string, _ string, _ map[string]any) error {
	s.marked = append(s.marked, assetID)
	return nil
}

type appRepoErr struct {
	message  string
	notFound bool
	conflict bool
}

func (e appRepoErr) Error() string       { return e.message }
func (e appRepoErr) IsNotFound() bool    { return e.notFound }
func (e appRepoErr) IsConflict() bool    { return e.conflict }
func (e appRepoErr) IsUnavailable() bool { return false }
