package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/rupeeplan/api/internal/domain"
	"github.com/rupeeplan/api/internal/platform/textutil"
	"github.com/rupeeplan/api/internal/repositories"
)

const (
	consultationIDPrefix       = "tcons_"
	consultationNotesMaxLength = 2000
	preferredDateLayout        = "2006-01-02"
	preferredTimeLayout        = "15:04"
)

var (
	// ErrConsultationInvalidInput indicates validation failures for consultation operations.
	ErrConsultationInvalidInput = errors.New("consultation: invalid input")
	// ErrConsultationNotFound indicates a consultation could not be located.
	ErrConsultationNotFound = errors.New("consultation: not found")
	// ErrConsultationUnauthorized indicates the actor may not access the consultation.
	ErrConsultationUnauthorized = errors.New("consultation: unauthorized")
	// ErrConsultationConflict signals duplicate bookings or conflicting updates.
	ErrConsultationConflict = errors.New("consultation: conflict")
	// ErrConsultationInvalidState is returned when an invalid status transition is attempted.
	ErrConsultationInvalidState = errors.New("consultation: invalid state transition")
)

// consultationTransitions lists the allowed status moves. In-progress is
// additionally restricted to business-segment engagements.
var consultationTransitions = map[domain.ConsultationStatus][]domain.ConsultationStatus{
	domain.ConsultationStatusPending: {
		domain.ConsultationStatusScheduled,
		domain.ConsultationStatusCancelled,
	},
	domain.ConsultationStatusScheduled: {
		domain.ConsultationStatusInProgress,
		domain.ConsultationStatusCompleted,
		domain.ConsultationStatusCancelled,
	},
	domain.ConsultationStatusInProgress: {
		domain.ConsultationStatusCompleted,
		domain.ConsultationStatusCancelled,
	},
}

// ConsultationServiceDeps bundles collaborators required to construct a ConsultationService.
type ConsultationServiceDeps struct {
	Consultations repositories.ConsultationRepository
	Clock         func() time.Time
	IDGenerator   func() string
	Sanitizer     func(string) string
	Notifications NotificationPublisher
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type consultationService struct {
	consultations repositories.ConsultationRepository
	clock         func() time.Time
	newID         func() string
	sanitize      func(string) string
	notifications NotificationPublisher
	logger        func(context.Context, string, map[string]any)
}

// NewConsultationService wires dependencies into a concrete ConsultationService implementation.
func NewConsultationService(deps ConsultationServiceDeps) (ConsultationService, error) {
	if deps.Consultations == nil {
		return nil, errors.New("consultation service: consultation repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return consultationIDPrefix + ulid.Make().String()
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

	return &consultationService{
		consultations: deps.Consultations,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:         idGen,
		sanitize:      sanitize,
		notifications: deps.Notifications,
		logger:        logger,
	}, nil
}

func (s *consultationService) Book(ctx context.Context, cmd BookConsultationCommand) (TaxConsultation, error) {
	segment, err := normalizeTaxSegment(cmd.Segment)
	if err != nil {
		return TaxConsultation{}, fmt.Errorf("%w: %v", ErrConsultationInvalidInput, err)
	}
	fullName, err := normalizePersonName(cmd.FullName)
	if err != nil {
		return TaxConsultation{}, fmt.Errorf("%w: %v", ErrConsultationInvalidInput, err)
	}
	email, err := normalizeEmailAddress(cmd.Email)
	if err != nil {
		return TaxConsultation{}, fmt.Errorf("%w: %v", ErrConsultationInvalidInput, err)
	}
	phone, err := normalizePhoneNumber(cmd.Phone)
	if err != nil {
		return TaxConsultation{}, fmt.Errorf("%w: %v", ErrConsultationInvalidInput, err)
	}
	preferredDate := strings.TrimSpace(cmd.PreferredDate)
	if _, err := time.Parse(preferredDateLayout, preferredDate); err != nil {
		return TaxConsultation{}, fmt.Errorf("%w: preferred date must use YYYY-MM-DD", ErrConsultationInvalidInput)
	}
	preferredTime := strings.TrimSpace(cmd.PreferredTime)
	if _, err := time.Parse(preferredTimeLayout, preferredTime); err != nil {
		return TaxConsultation{}, fmt.Errorf("%w: preferred time must use HH:MM", ErrConsultationInvalidInput)
	}
	notes := s.sanitize(cmd.Notes)
	if len(notes) > consultationNotesMaxLength {
		return TaxConsultation{}, fmt.Errorf("%w: notes cannot exceed %d characters", ErrConsultationInvalidInput, consultationNotesMaxLength)
	}

	now := s.now()
	consultation := domain.TaxConsultation{
		ID:            s.newID(),
		Segment:       segment,
		FullName:      fullName,
		Email:         email,
		Phone:         phone,
		PreferredDate: preferredDate,
		PreferredTime: preferredTime,
		Notes:         notes,
		Status:        domain.ConsultationStatusPending,
		UserRef:       normalizeOptionalRef(cmd.UserRef),
		SearchKey:     textutil.SearchKey(fullName, email),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.consultations.Insert(ctx, consultation); err != nil {
		return TaxConsultation{}, s.mapConsultationError(err)
	}

	s.notifyBooked(ctx, consultation)

	return consultation, nil
}

func (s *consultationService) GetConsultation(ctx context.Context, consultationID string) (TaxConsultation, error) {
	consultationID = strings.TrimSpace(consultationID)
	if consultationID == "" {
		return TaxConsultation{}, fmt.Errorf("%w: consultation id is required", ErrConsultationInvalidInput)
	}
	consultation, err := s.consultations.FindByID(ctx, consultationID)
	if err != nil {
		return TaxConsultation{}, s.mapConsultationError(err)
	}
	return consultation, nil
}

func (s *consultationService) ListConsultations(ctx context.Context, filter ConsultationListFilter) (domain.CursorPage[TaxConsultation], error) {
	filter.Pagination = normalizePagination(filter.Pagination)
	page, err := s.consultations.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[TaxConsultation]{}, s.mapConsultationError(err)
	}
	return page, nil
}

func (s *consultationService) Cancel(ctx context.Context, cmd CancelConsultationCommand) (TaxConsultation, error) {
	consultationID := strings.TrimSpace(cmd.ConsultationID)
	if consultationID == "" {
		return TaxConsultation{}, fmt.Errorf("%w: consultation id is required", ErrConsultationInvalidInput)
	}
	actorRef := strings.TrimSpace(cmd.ActorRef)
	actorEmail := strings.ToLower(strings.TrimSpace(cmd.ActorEmail))
	if actorRef == "" && actorEmail == "" {
		return TaxConsultation{}, fmt.Errorf("%w: actor is required", ErrConsultationInvalidInput)
	}

	consultation, err := s.consultations.FindByID(ctx, consultationID)
	if err != nil {
		return TaxConsultation{}, s.mapConsultationError(err)
	}

	if !consultationBelongsTo(consultation, actorRef, actorEmail) {
		return TaxConsultation{}, ErrConsultationUnauthorized
	}

	switch consultation.Status {
	case domain.ConsultationStatusPending, domain.ConsultationStatusScheduled:
	case domain.ConsultationStatusCancelled:
		return consultation, nil
	default:
		return TaxConsultation{}, fmt.Errorf("%w: cannot cancel a %s consultation", ErrConsultationInvalidState, consultation.Status)
	}

	now := s.now()
	consultation.Status = domain.ConsultationStatusCancelled
	consultation.CancelledAt = &now
	consultation.UpdatedAt = now

	updated, err := s.consultations.Update(ctx, consultation)
	if err != nil {
		return TaxConsultation{}, s.mapConsultationError(err)
	}

	s.logger(ctx, "consultation.cancelled", map[string]any{
		"consultationId": updated.ID,
		"actorRef":       actorRef,
		"reason":         strings.TrimSpace(cmd.Reason),
	})

	return updated, nil
}

func (s *consultationService) UpdateStatus(ctx context.Context, cmd ConsultationStatusCommand) (TaxConsultation, error) {
	consultationID := strings.TrimSpace(cmd.ConsultationID)
	if consultationID == "" {
		return TaxConsultation{}, fmt.Errorf("%w: consultation id is required", ErrConsultationInvalidInput)
	}
	if strings.TrimSpace(cmd.ActorRef) == "" {
		return TaxConsultation{}, fmt.Errorf("%w: actor ref is required", ErrConsultationInvalidInput)
	}
	target := domain.ConsultationStatus(strings.ToLower(strings.TrimSpace(string(cmd.Status))))
	switch target {
	case domain.ConsultationStatusPending,
		domain.ConsultationStatusScheduled,
		domain.ConsultationStatusInProgress,
		domain.ConsultationStatusCompleted,
		domain.ConsultationStatusCancelled:
	default:
		return TaxConsultation{}, fmt.Errorf("%w: unknown status %q", ErrConsultationInvalidInput, cmd.Status)
	}

	consultation, err := s.consultations.FindByID(ctx, consultationID)
	if err != nil {
		return TaxConsultation{}, s.mapConsultationError(err)
	}

	if consultation.Status == target {
		return consultation, nil
	}
	if target == domain.ConsultationStatusInProgress && consultation.Segment != domain.TaxSegmentBusiness {
		return TaxConsultation{}, fmt.Errorf("%w: in-progress applies to business consultations only", ErrConsultationInvalidState)
	}
	if !consultationTransitionAllowed(consultation.Status, target) {
		return TaxConsultation{}, fmt.Errorf("%w: cannot transition from %s to %s", ErrConsultationInvalidState, consultation.Status, target)
	}

	now := s.now()
	consultation.Status = target
	consultation.UpdatedAt = now
	if target == domain.ConsultationStatusCancelled {
		consultation.CancelledAt = &now
	}

	updated, err := s.consultations.Update(ctx, consultation)
	if err != nil {
		return TaxConsultation{}, s.mapConsultationError(err)
	}

	s.logger(ctx, "consultation.status_changed", map[string]any{
		"consultationId": updated.ID,
		"status":         string(updated.Status),
		"actorRef":       strings.TrimSpace(cmd.ActorRef),
	})

	return updated, nil
}

func (s *consultationService) AssignConsultant(ctx context.Context, cmd AssignConsultantCommand) (TaxConsultation, error) {
	consultationID := strings.TrimSpace(cmd.ConsultationID)
	if consultationID == "" {
		return TaxConsultation{}, fmt.Errorf("%w: consultation id is required", ErrConsultationInvalidInput)
	}
	consultantRef := strings.TrimSpace(cmd.ConsultantRef)
	if len(consultantRef) < 3 || len(consultantRef) > 100 {
		return TaxConsultation{}, fmt.Errorf("%w: consultant ref must be 3 to 100 characters", ErrConsultationInvalidInput)
	}
	if strings.TrimSpace(cmd.ActorRef) == "" {
		return TaxConsultation{}, fmt.Errorf("%w: actor ref is required", ErrConsultationInvalidInput)
	}

	consultation, err := s.consultations.FindByID(ctx, consultationID)
	if err != nil {
		return TaxConsultation{}, s.mapConsultationError(err)
	}

	switch consultation.Status {
	case domain.ConsultationStatusCompleted, domain.ConsultationStatusCancelled:
		return TaxConsultation{}, fmt.Errorf("%w: cannot assign consultant to a %s consultation", ErrConsultationInvalidState, consultation.Status)
	}

	consultation.ConsultantRef = &consultantRef
	consultation.UpdatedAt = s.now()

	updated, err := s.consultations.Update(ctx, consultation)
	if err != nil {
		return TaxConsultation{}, s.mapConsultationError(err)
	}
	return updated, nil
}

func (s *consultationService) Delete(ctx context.Context, cmd DeleteConsultationCommand) error {
	consultationID := strings.TrimSpace(cmd.ConsultationID)
	if consultationID == "" {
		return fmt.Errorf("%w: consultation id is required", ErrConsultationInvalidInput)
	}
	if strings.TrimSpace(cmd.ActorRef) == "" {
		return fmt.Errorf("%w: actor ref is required", ErrConsultationInvalidInput)
	}
	if err := s.consultations.Delete(ctx, consultationID); err != nil {
		return s.mapConsultationError(err)
	}
	return nil
}

func (s *consultationService) notifyBooked(ctx context.Context, consultation domain.TaxConsultation) {
	if s.notifications == nil {
		return
	}
	message := NotificationJobMessage{
		Kind:      NotificationKindConsultationBooked,
		To:        consultation.Email,
		ToName:    consultation.FullName,
		EntityRef: consultation.ID,
		Payload: map[string]string{
			"segment":       string(consultation.Segment),
			"preferredDate": consultation.PreferredDate,
			"preferredTime": consultation.PreferredTime,
		},
		EnqueuedAt: s.now(),
	}
	if _, err := s.notifications.PublishNotification(ctx, message); err != nil {
		s.logger(ctx, "consultation.notification_publish_failed", map[string]any{
			"consultationId": consultation.ID,
			"error":          err.Error(),
		})
	}
}

func (s *consultationService) now() time.Time {
	return s.clock()
}

func (s *consultationService) mapConsultationError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrConsultationNotFound
		case repoErr.IsConflict():
			return ErrConsultationConflict
		}
	}
	return err
}

func consultationTransitionAllowed(from, to domain.ConsultationStatus) bool {
	for _, candidate := range consultationTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func consultationBelongsTo(consultation domain.TaxConsultation, actorRef, actorEmail string) bool {
	if actorRef != "" && consultation.UserRef != nil && *consultation.UserRef == actorRef {
		return true
	}
	if actorEmail != "" && strings.EqualFold(consultation.Email, actorEmail) {
		return true
	}
	return false
}

var freeTextPolicy = bluemonday.StrictPolicy()

// sanitizeFreeText strips markup and control characters from customer-entered
// text, collapsing horizontal whitespace while preserving newlines. The policy
// escapes entities on output, so the result is unescaped back to plain text.
func sanitizeFreeText(input string) string {
	cleaned := html.UnescapeString(freeTextPolicy.Sanitize(input))
	trimmed := strings.TrimSpace(cleaned)
	if trimmed == "" {
		return ""
	}

	normalized := strings.ReplaceAll(strings.ReplaceAll(trimmed, "\r\n", "\n"), "\r", "\n")
	lines := strings.Split(normalized, "\n")
	for i, line := range lines {
		line = strings.Map(func(r rune) rune {
			if unicode.IsControl(r) && r != '\n' {
				return -1
			}
			return r
		}, line)
		lines[i] = strings.Join(strings.Fields(line), " ")
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
