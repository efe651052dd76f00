package push

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/linkpulse/notifyhub/internal/domain/notification"
	"google.golang.org/api/option"
)

// messagingClient is the subset of the firebase messaging client the sender needs
type messagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMSender delivers deferred notifications as Firebase Cloud Messaging pushes.
// Devices subscribe to the topic `user_{userID}`.
type FCMSender struct {
	client messagingClient
	logger *slog.Logger
}

// NewFCMSender initializes a firebase app from a service account file
func NewFCMSender(ctx context.Context, credentialsPath string, logger *slog.Logger) (*FCMSender, error) {
	if credentialsPath == "" {
		return nil, fmt.Errorf("firebase credentials path not provided")
	}
	if _, err := os.Stat(credentialsPath); err != nil {
		return nil, fmt.Errorf("firebase credentials file not readable at %s: %w", credentialsPath, err)
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firebase messaging client: %w", err)
	}

	return newFCMSender(client, logger), nil
}

func newFCMSender(client messagingClient, logger *slog.Logger) *FCMSender {
	return &FCMSender{
		client: client,
		logger: logger.With("component", "fcm_sender"),
	}
}

// Send pushes d to its recipient's topic
func (s *FCMSender) Send(ctx context.Context, d notification.DeferredDelivery) error {
	msg := BuildMessage(d)

	id, err := s.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to send push: %w", err)
	}

	s.logger.Debug("Push sent",
		"message_id", id,
		"topic", msg.Topic,
		"notification_id", d.Notification.ID,
	)
	return nil
}

// Topic returns the FCM topic a user's devices subscribe to
func Topic(userID string) string {
	return "user_" + userID
}

// BuildMessage converts a deferred delivery into an FCM message
func BuildMessage(d notification.DeferredDelivery) *messaging.Message {
	n := d.Notification
	data := map[string]string{
		"notification_id": n.ID,
		"type":            string(n.Type),
		"actor_id":        n.ActorID,
	}
	if n.RefID != nil {
		data["ref_id"] = *n.RefID
	}

	return &messaging.Message{
		Topic: Topic(n.RecipientID),
		Notification: &messaging.Notification{
			Title: title(n.Type),
			Body:  body(n.Type),
		},
		Data: data,
	}
}

func title(t notification.NotificationType) string {
	switch t {
	case notification.TypeFollow:
		return "New follower"
	case notification.TypeLike:
		return "New like"
	case notification.TypeReply, notification.TypeReplyToReply:
		return "New reply"
	case notification.TypeReshare:
		return "New reshare"
	case notification.TypeMention:
		return "You were mentioned"
	default:
		return "New notification"
	}
}

func body(t notification.NotificationType) string {
	switch t {
	case notification.TypeFollow:
		return "Someone started following you"
	case notification.TypeLike:
		return "Someone liked your post"
	case notification.TypeReply:
		return "Someone replied to your post"
	case notification.TypeReplyToReply:
		return "Someone replied to your reply"
	case notification.TypeReshare:
		return "Someone reshared your post"
	case notification.TypeMention:
		return "Someone mentioned you"
	default:
		return "You have a new notification"
	}
}
