package jobs

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rupeeplan/api/internal/services"
)

func TestPubSubNotificationPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "notification-jobs")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubNotificationPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubNotificationPublisher: %v", err)
	}

	enqueuedAt := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	msg := services.NotificationJobMessage{
		Kind:      services.NotificationKindConsultationBooked,
		To:        "priya@example.com",
		ToName:    "Priya Nair",
		EntityRef: "tcons_01HZX3",
		Payload: map[string]string{
			"segment":       "business",
			"preferredDate": "2026-02-14",
			"preferredTime": "10:30",
		},
		EnqueuedAt: enqueuedAt,
	}

	if _, err := publisher.PublishNotification(ctx, msg); err != nil {
		t.Fatalf("PublishNotification: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.NotificationJobMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Kind != msg.Kind || payload.To != msg.To || payload.EntityRef != msg.EntityRef {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if !strings.HasPrefix(payload.NotificationID, "ntf_") {
		t.Fatalf("expected assigned notification id, got %q", payload.NotificationID)
	}
	if attr := messages[0].Attributes["kind"]; attr != services.NotificationKindConsultationBooked {
		t.Fatalf("expected kind attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["notificationId"]; attr != payload.NotificationID {
		t.Fatalf("attribute id %q does not match payload id %q", attr, payload.NotificationID)
	}
	if _, ok := messages[0].Attributes["to"]; ok {
		t.Fatalf("recipient address should not be exposed as an attribute")
	}
}
