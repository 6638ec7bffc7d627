package firebase

import (
	"context"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"ledgersync/internal/domain/notification"
)

const fcmBatchLimit = 500

// TokenDeactivator marks a token FCM reported as invalid.
type TokenDeactivator func(ctx context.Context, token string) error

// multicaster is the part of messaging.Client we use.
type multicaster interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Client implements notification.Messenger using Firebase Cloud Messaging
type Client struct {
	msgClient   multicaster
	deactivator TokenDeactivator
}

var _ notification.Messenger = (*Client)(nil)

// NewClient initializes a Firebase app from a service account file.
// deactivator may be nil.
func NewClient(ctx context.Context, credentialsFile string, deactivator TokenDeactivator) (*Client, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging client: %w", err)
	}

	return &Client{msgClient: msgClient, deactivator: deactivator}, nil
}

// SendMulticast sends a visible notification to every token, batching at the FCM limit.
func (c *Client) SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	return c.send(ctx, "notification", tokens, func(batch []string) *messaging.MulticastMessage {
		return &messaging.MulticastMessage{
			Tokens:       batch,
			Notification: &messaging.Notification{Title: title, Body: body},
			Data:         data,
		}
	})
}

// SendDataOnly sends a silent data message, used to make open clients reload.
func (c *Client) SendDataOnly(ctx context.Context, tokens []string, data map[string]string) error {
	return c.send(ctx, "data-only", tokens, func(batch []string) *messaging.MulticastMessage {
		return &messaging.MulticastMessage{Tokens: batch, Data: data}
	})
}

func (c *Client) send(ctx context.Context, kind string, tokens []string, build func([]string) *messaging.MulticastMessage) error {
	if len(tokens) == 0 {
		return nil
	}

	var success, failure int
	for _, batch := range chunkTokens(tokens, fcmBatchLimit) {
		resp, err := c.msgClient.SendEachForMulticast(ctx, build(batch))
		if err != nil {
			return fmt.Errorf("failed to send FCM %s multicast: %w", kind, err)
		}

		success += resp.SuccessCount
		failure += resp.FailureCount
		if resp.FailureCount > 0 {
			c.handleFailures(ctx, batch, resp)
		}
	}

	log.Printf("FCM %s multicast: %d success, %d failure", kind, success, failure)
	return nil
}

func (c *Client) handleFailures(ctx context.Context, tokens []string, resp *messaging.BatchResponse) {
	for i, r := range resp.Responses {
		if r.Error == nil {
			continue
		}
		if !messaging.IsUnregistered(r.Error) && !messaging.IsInvalidArgument(r.Error) {
			log.Printf("FCM send error for token %s: %v", maskToken(tokens[i]), r.Error)
			continue
		}

		log.Printf("FCM token %s is invalid, deactivating", maskToken(tokens[i]))
		if c.deactivator == nil {
			continue
		}
		if err := c.deactivator(ctx, tokens[i]); err != nil {
			log.Printf("Failed to deactivate FCM token %s: %v", maskToken(tokens[i]), err)
		}
	}
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func chunkTokens(tokens []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(tokens); start += size {
		chunks = append(chunks, tokens[start:min(start+size, len(tokens))])
	}
	return chunks
}
