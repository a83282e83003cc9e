package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rupeeplan/api/internal/platform/mail"
)

// Kinds carried by queued notification jobs. Verification codes are sent
// synchronously and never travel through the queue.
const (
	NotificationKindConsultationBooked = "consultation.booked"
	NotificationKindApplicationStatus  = "application.status_changed"
)

const (
	notificationIDPrefix           = "ntf_"
	defaultVerificationCodeTTL     = 5 * time.Minute
	verificationCodeSubject        = "Your RupeePlan verification code"
	consultationBookedMailSubject  = "Your tax consultation request is in"
	applicationStatusMailSubject   = "Update on your tax planning application"
	notificationFallbackSalutation = "there"
)

var (
	// ErrNotificationInvalidInput indicates a message that can never be delivered.
	ErrNotificationInvalidInput = errors.New("notification: invalid input")
	// ErrNotificationUnknownKind indicates a job kind this service does not handle.
	ErrNotificationUnknownKind = errors.New("notification: unknown kind")
)

// NotificationPublisher enqueues notification jobs for asynchronous delivery.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, message NotificationJobMessage) (string, error)
}

// NotificationJobMessage is the payload carried by the notification queue.
type NotificationJobMessage struct {
	NotificationID string            `json:"notificationId"`
	Kind           string            `json:"kind"`
	To             string            `json:"to"`
	ToName         string            `json:"toName,omitempty"`
	EntityRef      string            `json:"entityRef,omitempty"`
	Payload        map[string]string `json:"payload,omitempty"`
	EnqueuedAt     time.Time         `json:"enqueuedAt"`
}

// EnsureNotificationID returns the given id, or a freshly generated
// notification identifier when blank.
func EnsureNotificationID(id string) string {
	if strings.TrimSpace(id) != "" {
		return id
	}
	return notificationIDPrefix + ulid.Make().String()
}

// NotificationServiceDeps bundles collaborators required to construct a NotificationService.
type NotificationServiceDeps struct {
	Mailer mail.Sender
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type notificationService struct {
	mailer mail.Sender
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewNotificationService wires dependencies into a concrete NotificationService implementation.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Mailer == nil {
		return nil, errors.New("notification service: mailer is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &notificationService{
		mailer: deps.Mailer,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *notificationService) SendVerificationCode(ctx context.Context, cmd VerificationCodeCommand) error {
	email, err := normalizeEmailAddress(cmd.Email)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotificationInvalidInput, err)
	}
	code := strings.TrimSpace(cmd.Code)
	if code == "" {
		return fmt.Errorf("%w: verification code is required", ErrNotificationInvalidInput)
	}
	ttl := cmd.ExpiresIn
	if ttl <= 0 {
		ttl = defaultVerificationCodeTTL
	}

	data := verificationCodeMailData{
		Name:    salutation(cmd.FullName),
		Code:    code,
		Minutes: int(ttl.Minutes()),
	}
	html, err := renderMailTemplate(verificationCodeTemplate, data)
	if err != nil {
		return err
	}
	text := fmt.Sprintf(
		"Hi %s,\n\nYour RupeePlan verification code is %s. It expires in %d minutes.\n\nIf you did not request this code, you can ignore this email.\n",
		data.Name, data.Code, data.Minutes,
	)

	messageID, err := s.mailer.Send(ctx, mail.Message{
		To:      email,
		ToName:  strings.TrimSpace(cmd.FullName),
		Subject: verificationCodeSubject,
		HTML:    html,
		Text:    text,
		Tags:    map[string]string{"category": "verification_code"},
	})
	if err != nil {
		return fmt.Errorf("send verification code: %w", err)
	}

	s.logger(ctx, "notification.verification_code_sent", map[string]any{
		"messageId": messageID,
	})
	return nil
}

func (s *notificationService) Dispatch(ctx context.Context, message NotificationJobMessage) error {
	email, err := normalizeEmailAddress(message.To)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotificationInvalidInput, err)
	}

	var (
		subject string
		html    string
		text    string
	)
	switch strings.TrimSpace(message.Kind) {
	case NotificationKindConsultationBooked:
		subject, html, text, err = composeConsultationBookedMail(message)
	case NotificationKindApplicationStatus:
		subject, html, text, err = composeApplicationStatusMail(message)
	default:
		return fmt.Errorf("%w: %q", ErrNotificationUnknownKind, message.Kind)
	}
	if err != nil {
		return err
	}

	messageID, err := s.mailer.Send(ctx, mail.Message{
		To:      email,
		ToName:  strings.TrimSpace(message.ToName),
		Subject: subject,
		HTML:    html,
		Text:    text,
		Tags:    map[string]string{"category": strings.ReplaceAll(message.Kind, ".", "_")},
	})
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", message.Kind, err)
	}

	fields := map[string]any{
		"notificationId": message.NotificationID,
		"kind":           message.Kind,
		"entityRef":      message.EntityRef,
		"messageId":      messageID,
	}
	if !message.EnqueuedAt.IsZero() {
		fields["queueLagMs"] = s.clock().Sub(message.EnqueuedAt).Milliseconds()
	}
	s.logger(ctx, "notification.dispatched", fields)
	return nil
}

func composeConsultationBookedMail(message NotificationJobMessage) (string, string, string, error) {
	date := strings.TrimSpace(message.Payload["preferredDate"])
	slot := strings.TrimSpace(message.Payload["preferredTime"])
	if date == "" || slot == "" {
		return "", "", "", fmt.Errorf("%w: consultation payload is missing the preferred slot", ErrNotificationInvalidInput)
	}
	segment := strings.TrimSpace(message.Payload["segment"])
	if segment == "" {
		segment = "tax"
	}

	data := consultationBookedMailData{
		Name:          salutation(message.ToName),
		Segment:       segment,
		PreferredDate: date,
		PreferredTime: slot,
	}
	html, err := renderMailTemplate(consultationBookedTemplate, data)
	if err != nil {
		return "", "", "", err
	}
	text := fmt.Sprintf(
		"Hi %s,\n\nWe received your %s consultation request for %s at %s. A consultant will reach out shortly to confirm the slot.\n",
		data.Name, data.Segment, data.PreferredDate, data.PreferredTime,
	)
	return consultationBookedMailSubject, html, text, nil
}

func composeApplicationStatusMail(message NotificationJobMessage) (string, string, string, error) {
	status := strings.TrimSpace(message.Payload["status"])
	if status == "" {
		return "", "", "", fmt.Errorf("%w: application payload is missing the status", ErrNotificationInvalidInput)
	}

	data := applicationStatusMailData{
		Name:          salutation(message.ToName),
		ApplicationID: strings.TrimSpace(message.EntityRef),
		Status:        status,
	}
	html, err := renderMailTemplate(applicationStatusTemplate, data)
	if err != nil {
		return "", "", "", err
	}
	text := fmt.Sprintf(
		"Hi %s,\n\nYour tax planning application %s is now %s. Sign in to your RupeePlan account for the details.\n",
		data.Name, data.ApplicationID, data.Status,
	)
	return applicationStatusMailSubject, html, text, nil
}

type verificationCodeMailData struct {
	Name    string
	Code    string
	Minutes int
}

type consultationBookedMailData struct {
	Name          string
	Segment       string
	PreferredDate string
	PreferredTime string
}

type applicationStatusMailData struct {
	Name          string
	ApplicationID string
	Status        string
}

var verificationCodeTemplate = template.Must(template.New("verification_code").Parse(`<p>Hi {{.Name}},</p>
<p>Your RupeePlan verification code is <strong>{{.Code}}</strong>. It expires in {{.Minutes}} minutes.</p>
<p>If you did not request this code, you can ignore this email.</p>`))

var consultationBookedTemplate = template.Must(template.New("consultation_booked").Parse(`<p>Hi {{.Name}},</p>
<p>We received your {{.Segment}} consultation request for <strong>{{.PreferredDate}}</strong> at <strong>{{.PreferredTime}}</strong>.</p>
<p>A consultant will reach out shortly to confirm the slot.</p>`))

var applicationStatusTemplate = template.Must(template.New("application_status").Parse(`<p>Hi {{.Name}},</p>
<p>Your tax planning application <strong>{{.ApplicationID}}</strong> is now <strong>{{.Status}}</strong>.</p>
<p>Sign in to your RupeePlan account for the details.</p>`))

func renderMailTemplate(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s mail: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func salutation(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return notificationFallbackSalutation
	}
	return name
}
