package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rupeeplan/api/internal/platform/httpx"
	"github.com/rupeeplan/api/internal/services"
)

const maxPushBodySize = 1 << 20

// JobHandlers consumes queued background work delivered over HTTP. The
// notification endpoint is the push target for the Pub/Sub subscription, so
// its status codes drive redelivery: 2xx acknowledges the message, anything
// else makes Pub/Sub retry.
type JobHandlers struct {
	notifications services.NotificationService
}

// NewJobHandlers constructs the internal job endpoints.
func NewJobHandlers(notifications services.NotificationService) *JobHandlers {
	return &JobHandlers{notifications: notifications}
}

// Routes registers the job endpoints on the provided router.
func (h *JobHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/jobs/notifications", h.handleNotificationJob)
}

func (h *JobHandlers) handleNotificationJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifications == nil {
		writeServiceUnavailable(ctx, w, "notification_service_unavailable", "notification service is unavailable")
		return
	}

	body, err := readLimitedBody(r, maxPushBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var envelope pushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be a pubsub push envelope", http.StatusBadRequest))
		return
	}

	// A message that cannot be decoded will never decode on redelivery, so
	// acknowledge it instead of letting the subscription retry forever.
	var message services.NotificationJobMessage
	if len(envelope.Message.Data) == 0 {
		writeJSONResponse(w, http.StatusOK, messageResponse{Message: "notification dropped: empty payload"})
		return
	}
	if err := json.Unmarshal(envelope.Message.Data, &message); err != nil {
		writeJSONResponse(w, http.StatusOK, messageResponse{Message: "notification dropped: malformed payload"})
		return
	}

	if err := h.notifications.Dispatch(ctx, message); err != nil {
		switch {
		case errors.Is(err, services.ErrNotificationInvalidInput), errors.Is(err, services.ErrNotificationUnknownKind):
			writeJSONResponse(w, http.StatusOK, messageResponse{Message: "notification dropped: " + err.Error()})
		default:
			httpx.WriteError(ctx, w, httpx.NewError("notification_delivery_failed", "notification delivery failed", http.StatusServiceUnavailable))
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// pushEnvelope mirrors the JSON wrapper Pub/Sub wraps around pushed messages.
// Data is base64 in transit; encoding/json decodes it into the byte slice.
type pushEnvelope struct {
	Message      pushMessage `json:"message"`
	Subscription string      `json:"subscription"`
}

type pushMessage struct {
	Data        []byte            `json:"data"`
	MessageID   string            `json:"messageId"`
	Attributes  map[string]string `json:"attributes"`
	PublishTime string            `json:"publishTime"`
}
