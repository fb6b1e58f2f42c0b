package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/felipepmaragno/chatgw/internal/domain"
	"github.com/felipepmaragno/chatgw/internal/httputil"
)

type NotificationType string

const (
	NotificationCredentialRejected NotificationType = "credential_rejected"
	NotificationProviderDegraded   NotificationType = "provider_degraded"
)

type Notification struct {
	Type     NotificationType `json:"type"`
	Provider string           `json:"provider"`
	Message  string           `json:"message"`
	Data     map[string]any   `json:"data,omitempty"`
}

type Notifier interface {
	Send(ctx context.Context, notification Notification) error
}

// FromError reports whether err deserves an operator notification: a
// rejected credential, or the vendor failing on its side.
func FromError(provider string, err error) (Notification, bool) {
	n := Notification{Provider: provider, Message: err.Error()}

	switch kind := domain.KindOf(err); kind {
	case domain.KindAuthenticationFailed, domain.KindInvalidAPIKey:
		n.Type = NotificationCredentialRejected
	case domain.KindServerError:
		n.Type = NotificationProviderDegraded
	default:
		return Notification{}, false
	}

	if status := domain.StatusCodeOf(err); status != 0 {
		n.Data = map[string]any{"status_code": status}
	}
	return n, true
}

type publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSNotifier struct {
	client   publisher
	topicArn string
}

func NewSNSNotifier(ctx context.Context, region, topicArn string) (*SNSNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithHTTPClient(httputil.DefaultClient()),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSNSNotifierWithConfig(cfg, topicArn), nil
}

func NewSNSNotifierWithConfig(cfg aws.Config, topicArn string) *SNSNotifier {
	return &SNSNotifier{
		client:   sns.NewFromConfig(cfg),
		topicArn: topicArn,
	}
}

func (n *SNSNotifier) Send(ctx context.Context, notification Notification) error {
	message, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(n.topicArn),
		Message:  aws.String(string(message)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"Type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(notification.Type)),
			},
			"Provider": {
				DataType:    aws.String("String"),
				StringValue: aws.String(notification.Provider),
			},
		},
	}

	if _, err := n.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}

	slog.Info("notification sent",
		"type", notification.Type,
		"provider", notification.Provider,
	)

	return nil
}

type InMemoryNotifier struct {
	mu            sync.Mutex
	notifications []Notification
	handlers      []func(Notification)
}

func NewInMemoryNotifier() *InMemoryNotifier {
	return &InMemoryNotifier{}
}

func (n *InMemoryNotifier) Send(ctx context.Context, notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.notifications = append(n.notifications, notification)
	for _, handler := range n.handlers {
		handler(notification)
	}

	slog.Debug("notification recorded",
		"type", notification.Type,
		"provider", notification.Provider,
	)

	return nil
}

func (n *InMemoryNotifier) OnNotification(handler func(Notification)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers = append(n.handlers, handler)
}

func (n *InMemoryNotifier) GetNotifications() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	result := make([]Notification, len(n.notifications))
	copy(result, n.notifications)
	return result
}

func (n *InMemoryNotifier) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = nil
}
