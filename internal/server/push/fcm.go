package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// isDeadToken reports whether an FCM error means the token will never work again.
var isDeadToken = func(err error) bool {
	return messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err)
}

type multicastClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMSender sends notifications through Firebase Cloud Messaging.
type FCMSender struct {
	client multicastClient
}

// NewFCMSender initialises a Firebase app from a service-account JSON file.
func NewFCMSender(ctx context.Context, credentialsFile string) (*FCMSender, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging: %w", err)
	}
	return &FCMSender{client: client}, nil
}

func (s *FCMSender) Send(ctx context.Context, n Notification) ([]string, error) {
	res, err := s.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens: n.Tokens,
		Data:   n.Data,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fcm send: %w", err)
	}
	if res.FailureCount == 0 {
		return nil, nil
	}

	var dead []string
	for i, r := range res.Responses {
		if r.Success || i >= len(n.Tokens) {
			continue
		}
		if isDeadToken(r.Error) {
			dead = append(dead, n.Tokens[i])
		}
	}
	return dead, nil
}
