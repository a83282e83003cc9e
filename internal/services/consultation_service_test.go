package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/rupeeplan/api/internal/domain"
	"github.com/rupeeplan/api/internal/repositories"
)

func TestConsultationServiceBookNormalizesAndPublishes(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	repo := newMemoryConsultationRepo()
	publisher := &captureNotificationPublisher{}

	svc, err := NewConsultationService(ConsultationServiceDeps{
		Consultations: repo,
		Clock:         func() time.Time { return now },
		IDGenerator:   func() string { return "tcons_test" },
		Notifications: publisher,
	})
	if err != nil {
		t.Fatalf("new consultation service: %v", err)
	}

	booked, err := svc.Book(context.Background(), BookConsultationCommand{
		Segment:       " Personal ",
		FullName:      "  priya   nair ",
		Email:         "PRIYA@Example.COM",
		Phone:         "+91 98765-43210",
		PreferredDate: "2026-02-14",
		PreferredTime: "10:30",
		Notes:         "<b>Need help</b> with  80C\r\nand NPS",
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	if booked.ID != "tcons_test" {
		t.Fatalf("expected id tcons_test, got %s", booked.ID)
	}
	if booked.Segment != domain.TaxSegmentPersonal {
		t.Fatalf("expected personal segment, got %s", booked.Segment)
	}
	if booked.FullName != "priya nair" {
		t.Fatalf("expected collapsed name, got %q", booked.FullName)
	}
	if booked.Email != "priya@example.com" {
		t.Fatalf("expected lowercased email, got %q", booked.Email)
	}
	if booked.Phone != "919876543210" {
		t.Fatalf("expected digits-only phone, got %q", booked.Phone)
	}
	if booked.Notes != "Need help with 80C\nand NPS" {
		t.Fatalf("expected sanitized notes, got %q", booked.Notes)
	}
	if booked.Status != domain.ConsultationStatusPending {
		t.Fatalf("expected pending status, got %s", booked.Status)
	}
	if booked.SearchKey != "priya nair priya@example.com" {
		t.Fatalf("unexpected search key %q", booked.SearchKey)
	}
	if !booked.CreatedAt.Equal(now) || !booked.UpdatedAt.Equal(now) {
		t.Fatalf("expected timestamps %s, got %s / %s", now, booked.CreatedAt, booked.UpdatedAt)
	}

	if len(publisher.messages) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(publisher.messages))
	}
	message := publisher.messages[0]
	if message.Kind != NotificationKindConsultationBooked {
		t.Fatalf("expected kind %s, got %s", NotificationKindConsultationBooked, message.Kind)
	}
	if message.To != "priya@example.com" || message.EntityRef != "tcons_test" {
		t.Fatalf("unexpected message %#v", message)
	}
	if message.Payload["preferredDate"] != "2026-02-14" || message.Payload["preferredTime"] != "10:30" {
		t.Fatalf("unexpected payload %#v", message.Payload)
	}
}

func TestConsultationServiceBookValidation(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	valid := BookConsultationCommand{
		Segment:       domain.TaxSegmentBusiness,
		FullName:      "Arjun Mehta",
		Email:         "arjun@example.com",
		Phone:         "9876543210",
		PreferredDate: "2026-03-01",
		PreferredTime: "15:00",
	}

	cases := []struct {
		name   string
		mutate func(*BookConsultationCommand)
	}{
		{"unknown segment", func(cmd *BookConsultationCommand) { cmd.Segment = "corporate" }},
		{"short name", func(cmd *BookConsultationCommand) { cmd.FullName = "Al" }},
		{"bad email", func(cmd *BookConsultationCommand) { cmd.Email = "not-an-email" }},
		{"short phone", func(cmd *BookConsultationCommand) { cmd.Phone = "12345" }},
		{"bad date", func(cmd *BookConsultationCommand) { cmd.PreferredDate = "01-03-2026" }},
		{"bad time", func(cmd *BookConsultationCommand) { cmd.PreferredTime = "3 PM" }},
		{"oversized notes", func(cmd *BookConsultationCommand) { cmd.Notes = strings.Repeat("x", 2001) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemoryConsultationRepo()
			svc, err := NewConsultationService(ConsultationServiceDeps{
				Consultations: repo,
				Clock:         func() time.Time { return now },
			})
			if err != nil {
				t.Fatalf("new consultation service: %v", err)
			}

			cmd := valid
			tc.mutate(&cmd)
			if _, err := svc.Book(context.Background(), cmd); !errors.Is(err, ErrConsultationInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
			if len(repo.consultations) != 0 {
				t.Fatalf("expected nothing persisted, got %d", len(repo.consultations))
			}
		})
	}
}

func TestConsultationServiceBookSurvivesPublisherFailure(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	repo := newMemoryConsultationRepo()
	publisher := &captureNotificationPublisher{fail: true}

	var logged []string
	svc, err := NewConsultationService(ConsultationServiceDeps{
		Consultations: repo,
		Clock:         func() time.Time { return now },
		IDGenerator:   func() string { return "tcons_pub" },
		Notifications: publisher,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})
	if err != nil {
		t.Fatalf("new consultation service: %v", err)
	}

	booked, err := svc.Book(context.Background(), BookConsultationCommand{
		Segment:       domain.TaxSegmentPersonal,
		FullName:      "Priya Nair",
		Email:         "priya@example.com",
		Phone:         "9876543210",
		PreferredDate: "2026-02-14",
		PreferredTime: "10:30",
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if booked.ID != "tcons_pub" {
		t.Fatalf("expected booking to succeed, got %s", booked.ID)
	}
	if len(logged) != 1 || logged[0] != "consultation.notification_publish_failed" {
		t.Fatalf("expected publish failure log, got %v", logged)
	}
}

func TestConsultationServiceCancelAuthorization(t *testing.T) {
	now := time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC)
	userRef := "usr_1"
	repo := newMemoryConsultationRepo()
	repo.consultations["tcons_1"] = domain.TaxConsultation{
		ID:        "tcons_1",
		Segment:   domain.TaxSegmentPersonal,
		FullName:  "Priya Nair",
		Email:     "priya@example.com",
		Phone:     "9876543210",
		Status:    domain.ConsultationStatusPending,
		UserRef:   &userRef,
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now.Add(-time.Hour),
	}

	svc, err := NewConsultationService(ConsultationServiceDeps{
		Consultations: repo,
		Clock:         func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new consultation service: %v", err)
	}

	ctx := context.Background()
	_, err = svc.Cancel(ctx, CancelConsultationCommand{
		ConsultationID: "tcons_1",
		ActorRef:       "usr_2",
		ActorEmail:     "someone@else.com",
	})
	if !errors.Is(err, ErrConsultationUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	cancelled, err := svc.Cancel(ctx, CancelConsultationCommand{
		ConsultationID: "tcons_1",
		ActorEmail:     "PRIYA@example.com",
		Reason:         "found a local advisor",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.ConsultationStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if cancelled.CancelledAt == nil || !cancelled.CancelledAt.Equal(now) {
		t.Fatalf("expected cancelled at %s, got %v", now, cancelled.CancelledAt)
	}

	again, err := svc.Cancel(ctx, CancelConsultationCommand{
		ConsultationID: "tcons_1",
		ActorRef:       "usr_1",
	})
	if err != nil {
		t.Fatalf("idempotent cancel: %v", err)
	}
	if again.Status != domain.ConsultationStatusCancelled {
		t.Fatalf("expected cancelled, got %s", again.Status)
	}

	repo.consultations["tcons_2"] = domain.TaxConsultation{
		ID:      "tcons_2",
		Segment: domain.TaxSegmentBusiness,
		Email:   "priya@example.com",
		Status:  domain.ConsultationStatusCompleted,
	}
	_, err = svc.Cancel(ctx, CancelConsultationCommand{
		ConsultationID: "tcons_2",
		ActorEmail:     "priya@example.com",
	})
	if !errors.Is(err, ErrConsultationInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestConsultationServiceUpdateStatusTransitions(t *testing.T) {
	now := time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC)
	repo := newMemoryConsultationRepo()
	repo.consultations["tcons_p"] = domain.TaxConsultation{
		ID:      "tcons_p",
		Segment: domain.TaxSegmentPersonal,
		Email:   "a@example.com",
		Status:  domain.ConsultationStatusScheduled,
	}
	repo.consultations["tcons_b"] = domain.TaxConsultation{
		ID:      "tcons_b",
		Segment: domain.TaxSegmentBusiness,
		Email:   "b@example.com",
		Status:  domain.ConsultationStatusScheduled,
	}

	svc, err := NewConsultationService(ConsultationServiceDeps{
		Consultations: repo,
		Clock:         func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new consultation service: %v", err)
	}

	ctx := context.Background()

	_, err = svc.UpdateStatus(ctx, ConsultationStatusCommand{
		ConsultationID: "tcons_p",
		Status:         domain.ConsultationStatusInProgress,
		ActorRef:       "adm_1",
	})
	if !errors.Is(err, ErrConsultationInvalidState) {
		t.Fatalf("expected in-progress rejection for personal segment, got %v", err)
	}

	inProgress, err := svc.UpdateStatus(ctx, ConsultationStatusCommand{
		ConsultationID: "tcons_b",
		Status:         domain.ConsultationStatusInProgress,
		ActorRef:       "adm_1",
	})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if inProgress.Status != domain.ConsultationStatusInProgress {
		t.Fatalf("expected in-progress, got %s", inProgress.Status)
	}
	if !inProgress.UpdatedAt.Equal(now) {
		t.Fatalf("expected updated at %s, got %s", now, inProgress.UpdatedAt)
	}

	same, err := svc.UpdateStatus(ctx, ConsultationStatusCommand{
		ConsultationID: "tcons_b",
		Status:         domain.ConsultationStatusInProgress,
		ActorRef:       "adm_1",
	})
	if err != nil {
		t.Fatalf("idempotent update: %v", err)
	}
	if same.Status != domain.ConsultationStatusInProgress {
		t.Fatalf("expected unchanged status, got %s", same.Status)
	}

	completed, err := svc.UpdateStatus(ctx, ConsultationStatusCommand{
		ConsultationID: "tcons_b",
		Status:         domain.ConsultationStatusCompleted,
		ActorRef:       "adm_1",
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != domain.ConsultationStatusCompleted {
		t.Fatalf("expected completed, got %s", completed.Status)
	}

	_, err = svc.UpdateStatus(ctx, ConsultationStatusCommand{
		ConsultationID: "tcons_b",
		Status:         domain.ConsultationStatusScheduled,
		ActorRef:       "adm_1",
	})
	if !errors.Is(err, ErrConsultationInvalidState) {
		t.Fatalf("expected terminal state rejection, got %v", err)
	}

	_, err = svc.UpdateStatus(ctx, ConsultationStatusCommand{
		ConsultationID: "tcons_p",
		Status:         "archived",
		ActorRef:       "adm_1",
	})
	if !errors.Is(err, ErrConsultationInvalidInput) {
		t.Fatalf("expected unknown status rejection, got %v", err)
	}
}

func TestConsultationServiceAssignConsultant(t *testing.T) {
	now := time.Date(2026, 2, 12, 14, 0, 0, 0, time.UTC)
	repo := newMemoryConsultationRepo()
	repo.consultations["tcons_1"] = domain.TaxConsultation{
		ID:      "tcons_1",
		Segment: domain.TaxSegmentBusiness,
		Email:   "a@example.com",
		Status:  domain.ConsultationStatusPending,
	}
	repo.consultations["tcons_done"] = domain.TaxConsultation{
		ID:      "tcons_done",
		Segment: domain.TaxSegmentBusiness,
		Email:   "b@example.com",
		Status:  domain.ConsultationStatusCancelled,
	}

	svc, err := NewConsultationService(ConsultationServiceDeps{
		Consultations: repo,
		Clock:         func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new consultation service: %v", err)
	}

	ctx := context.Background()
	assigned, err := svc.AssignConsultant(ctx, AssignConsultantCommand{
		ConsultationID: "tcons_1",
		ConsultantRef:  "Rakesh Iyer",
		ActorRef:       "adm_1",
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if assigned.ConsultantRef == nil || *assigned.ConsultantRef != "Rakesh Iyer" {
		t.Fatalf("expected consultant assigned, got %v", assigned.ConsultantRef)
	}
	if assigned.Status != domain.ConsultationStatusPending {
		t.Fatalf("assignment must not change status, got %s", assigned.Status)
	}

	_, err = svc.AssignConsultant(ctx, AssignConsultantCommand{
		ConsultationID: "tcons_done",
		ConsultantRef:  "Rakesh Iyer",
		ActorRef:       "adm_1",
	})
	if !errors.Is(err, ErrConsultationInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}

	_, err = svc.AssignConsultant(ctx, AssignConsultantCommand{
		ConsultationID: "tcons_1",
		ConsultantRef:  "ab",
		ActorRef:       "adm_1",
	})
	if !errors.Is(err, ErrConsultationInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestConsultationServiceMapsRepositoryErrors(t *testing.T) {
	repo := newMemoryConsultationRepo()
	repo.consultations["tcons_dup"] = domain.TaxConsultation{ID: "tcons_dup", Status: domain.ConsultationStatusPending}

	svc, err := NewConsultationService(ConsultationServiceDeps{
		Consultations: repo,
		IDGenerator:   func() string { return "tcons_dup" },
	})
	if err != nil {
		t.Fatalf("new consultation service: %v", err)
	}

	if _, err := svc.GetConsultation(context.Background(), "missing"); !errors.Is(err, ErrConsultationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_, err = svc.Book(context.Background(), BookConsultationCommand{
		Segment:       domain.TaxSegmentPersonal,
		FullName:      "Priya Nair",
		Email:         "priya@example.com",
		Phone:         "9876543210",
		PreferredDate: "2026-02-14",
		PreferredTime: "10:30",
	})
	if !errors.Is(err, ErrConsultationConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSanitizeFreeText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"strips markup", "<script>alert(1)</script><b>hello</b> world", "hello world"},
		{"keeps newlines", "line one\r\nline  two", "line one\nline two"},
		{"drops control characters", "planning ahead", "planning ahead"},
		{"keeps entities as plain text", "Q&A on 80C > 80D", "Q&A on 80C > 80D"},
		{"collapses whitespace", "   spaced \t out   ", "spaced out"},
		{"empty", "   ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitizeFreeText(tc.in); got != tc.want {
				t.Fatalf("sanitizeFreeText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

// --- test doubles -----------------------------------------------------------------

type captureNotificationPublisher struct {
	messages []NotificationJobMessage
	fail     bool
}

func (c *captureNotificationPublisher) PublishNotification(_ context.Context, message NotificationJobMessage) (string, error) {
	if c.fail {
		return "", errors.New("publish failed")
	}
	c.messages = append(c.messages, message)
	return "srv_" + message.Kind, nil
}

type memoryConsultationRepo struct {
	consultations map[string]domain.TaxConsultation
}

func newMemoryConsultationRepo() *memoryConsultationRepo {
	return &memoryConsultationRepo{consultations: make(map[string]domain.TaxConsultation)}
}

func (m *memoryConsultationRepo) Insert(_ context.Context, consultation domain.TaxConsultation) error {
	if _, exists := m.consultations[consultation.ID]; exists {
		return consultationRepoErr{message: "duplicate", conflict: true}
	}
	m.consultations[consultation.ID] = consultation
	return nil
}

func (m *memoryConsultationRepo) Update(_ context.Context, consultation domain.TaxConsultation) (domain.TaxConsultation, error) {
	if _, ok := m.consultations[consultation.ID]; !ok {
		return domain.TaxConsultation{}, consultationRepoErr{message: "not found", notFound: true}
	}
	m.consultations[consultation.ID] = consultation
	return consultation, nil
}

func (m *memoryConsultationRepo) Delete(_ context.Context, consultationID string) error {
	if _, ok := m.consultations[consultationID]; !ok {
		return consultationRepoErr{message: "not found", notFound: true}
	}
	delete(m.consultations, consultationID)
	return nil
}

func (m *memoryConsultationRepo) FindByID(_ context.Context, consultationID string) (domain.TaxConsultation, error) {
	consultation, ok := m.consultations[consultationID]
	if !ok {
		return domain.TaxConsultation{}, consultationRepoErr{message: "not found", notFound: true}
	}
	return consultation, nil
}

func (m *memoryConsultationRepo) List(_ context.Context, _ repositories.ConsultationListFilter) (domain.CursorPage[domain.TaxConsultation], error) {
	items := make([]domain.TaxConsultation, 0, len(m.consultations))
	for _, consultation := range m.consultations {
		items = append(items, consultation)
	}
	return domain.CursorPage[domain.TaxConsultation]{Items: items}, nil
}

func (m *memoryConsultationRepo) Count(_ context.Context, _ repositories.ConsultationCountFilter) (int64, error) {
	return int64(len(m.consultations)), nil
}

type consultationRepoErr struct {
	message  string
	notFound bool
	conflict bool
}

func (e consultationRepoErr) Error() string       { return e.message }
func (e consultationRepoErr) IsNotFound() bool    { return e.notFound }
func (e consultationRepoErr) IsConflict() bool    { return e.conflict }
func (e consultationRepoErr) IsUnavailable() bool { return false }
