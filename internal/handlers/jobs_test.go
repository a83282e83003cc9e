package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rupeeplan/api/internal/services"
)

type stubNotificationService struct {
	sendFn     func(ctx context.Context, cmd services.VerificationCodeCommand) error
	dispatchFn func(ctx context.Context, message services.NotificationJobMessage) error
}

func (s *stubNotificationService) SendVerificationCode(ctx context.Context, cmd services.VerificationCodeCommand) error {
	if s.sendFn != nil {
		return s.sendFn(ctx, cmd)
	}
	return errors.New("not implemented")
}

func (s *stubNotificationService) Dispatch(ctx context.Context, message services.NotificationJobMessage) error {
	if s.dispatchFn != nil {
		return s.dispatchFn(ctx, message)
	}
	return errors.New("not implemented")
}

func newJobRouter(h *JobHandlers) *chi.Mux {
	router := chi.NewRouter()
	h.Routes(router)
	return router
}

func pushBody(t *testing.T, data []byte) *bytes.Reader {
	t.Helper()
	envelope := pushEnvelope{
		Message: pushMessage{
			Data:        data,
			MessageID:   "msg-1",
			PublishTime: "2025-06-05T13:00:00Z",
		},
		Subscription: "projects/rupeeplan/subscriptions/notification-jobs",
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("failed to marshal push envelope: %v", err)
	}
	return bytes.NewReader(raw)
}

func TestNotificationJobDispatch(t *testing.T) {
	var captured services.NotificationJobMessage
	service := &stubNotificationService{
		dispatchFn: func(_ context.Context, message services.NotificationJobMessage) error {
			captured = message
			return nil
		},
	}

	handler := NewJobHandlers(service)
	router := newJobRouter(handler)

	message := services.NotificationJobMessage{
		NotificationID: "notif-1",
		Kind:           "consultation.booked",
		To:             "asha@example.in",
		ToName:         "Asha Verma",
		EntityRef:      "consultations/cons-1",
		Payload:        map[string]string{"preferredDate": "2025-06-10"},
		EnqueuedAt:     time.Date(2025, 6, 5, 13, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(message)
	if err != nil {
		t.Fatalf("failed to marshal job message: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/jobs/notifications", pushBody(t, data))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.NotificationID != "notif-1" || captured.Kind != "consultation.booked" {
		t.Fatalf("unexpected dispatched message %+v", captured)
	}
	if captured.To != "asha@example.in" || captured.EntityRef != "consultations/cons-1" {
		t.Fatalf("unexpected recipient details %+v", captured)
	}
	if captured.Payload["preferredDate"] != "2025-06-10" {
		t.Fatalf("unexpected payload %v", captured.Payload)
	}
}

func TestNotificationJobAcksMalformedPayload(t *testing.T) {
	dispatched := false
	service := &stubNotificationService{
		dispatchFn: func(context.Context, services.NotificationJobMessage) error {
			dispatched = true
			return nil
		},
	}

	handler := NewJobHandlers(service)
	router := newJobRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/jobs/notifications", pushBody(t, []byte("not json")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected poison message to be acked with 200, got %d", rr.Code)
	}
	if dispatched {
		t.Fatalf("malformed payload must not reach the notification service")
	}
	if !strings.Contains(rr.Body.String(), "malformed payload") {
		t.Fatalf("expected drop reason in response, got %s", rr.Body.String())
	}
}

func TestNotificationJobAcksEmptyPayload(t *testing.T) {
	handler := NewJobHandlers(&stubNotificationService{})
	router := newJobRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/jobs/notifications", pushBody(t, nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected empty message to be acked with 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "empty payload") {
		t.Fatalf("expected drop reason in response, got %s", rr.Body.String())
	}
}

func TestNotificationJobAcksUnknownKind(t *testing.T) {
	service := &stubNotificationService{
		dispatchFn: func(context.Context, services.NotificationJobMessage) error {
			return services.ErrNotificationUnknownKind
		},
	}

	handler := NewJobHandlers(service)
	router := newJobRouter(handler)

	data, _ := json.Marshal(services.NotificationJobMessage{Kind: "unknown.kind", To: "asha@example.in"})
	req := httptest.NewRequest(http.MethodPost, "/jobs/notifications", pushBody(t, data))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected unknown kind to be acked with 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "notification dropped") {
		t.Fatalf("expected drop reason in response, got %s", rr.Body.String())
	}
}

func TestNotificationJobRetriesDeliveryFailure(t *testing.T) {
	service := &stubNotificationService{
		dispatchFn: func(context.Context, services.NotificationJobMessage) error {
			return errors.New("smtp: connection refused")
		},
	}

	handler := NewJobHandlers(service)
	router := newJobRouter(handler)

	data, _ := json.Marshal(services.NotificationJobMessage{Kind: "consultation.booked", To: "asha@example.in"})
	req := httptest.NewRequest(http.MethodPost, "/jobs/notifications", pushBody(t, data))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected delivery failure to trigger redelivery, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "notification_delivery_failed") {
		t.Fatalf("expected notification_delivery_failed code, got %s", rr.Body.String())
	}
}

func TestNotificationJobRejectsBadEnvelope(t *testing.T) {
	handler := NewJobHandlers(&stubNotificationService{})
	router := newJobRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/jobs/notifications", strings.NewReader("push it real good"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for non-envelope body, got %d", rr.Code)
	}
}
