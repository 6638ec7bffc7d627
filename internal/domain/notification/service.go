package notification

import (
	"context"
	"errors"
	"log"
)

// Service contains the business logic for notification operations
type Service struct {
	repo      Repository
	messenger Messenger
}

// NewService creates a new notification service. messenger may be nil, in which
// case notifications are only stored.
func NewService(repo Repository, messenger Messenger) *Service {
	return &Service{repo: repo, messenger: messenger}
}

// RegisterDevice registers a device token for the authenticated user.
// If the token already belongs to another user, it is reassigned.
func (s *Service) RegisterDevice(ctx context.Context, params CreateDeviceTokenParams) (*DeviceToken, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return s.repo.UpsertDeviceToken(ctx, params)
}

// DeactivateToken marks a token as unusable. Wired as the FCM client's deactivator.
func (s *Service) DeactivateToken(ctx context.Context, token string) error {
	return s.repo.DeactivateToken(ctx, token)
}

// ListNotifications returns paginated notifications for a user
func (s *Service) ListNotifications(ctx context.Context, userID int64, page, perPage int) ([]*Notification, int, error) {
	if userID <= 0 {
		return nil, 0, errors.New("valid user ID is required")
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	return s.repo.ListByUserID(ctx, userID, page, perPage)
}

// SendToUser pushes to every active device of the user and stores a record.
// Delivery failures are logged, never returned.
func (s *Service) SendToUser(ctx context.Context, userID int64, title, body, category string, data map[string]string) error {
	params := CreateNotificationParams{
		UserID:   userID,
		Title:    title,
		Message:  body,
		Category: category,
		Data:     withRoute(data, category),
	}
	if err := params.Validate(); err != nil {
		return err
	}

	if tokens := s.activeTokens(ctx, userID); len(tokens) > 0 && s.messenger != nil {
		if err := s.messenger.SendMulticast(ctx, tokens, title, body, params.Data); err != nil {
			log.Printf("Error sending notification to user %d: %v", userID, err)
		}
	}

	if _, err := s.repo.CreateNotification(ctx, params); err != nil {
		log.Printf("Error storing notification for user %d: %v", userID, err)
	}
	return nil
}

// SendDataOnlyToUser sends a silent message, e.g. to make open clients reload.
func (s *Service) SendDataOnlyToUser(ctx context.Context, userID int64, data map[string]string) error {
	if s.messenger == nil {
		return nil
	}
	tokens := s.activeTokens(ctx, userID)
	if len(tokens) == 0 {
		return nil
	}
	return s.messenger.SendDataOnly(ctx, tokens, data)
}

func (s *Service) activeTokens(ctx context.Context, userID int64) []string {
	tokens, err := s.repo.GetActiveTokensByUserID(ctx, userID)
	if err != nil {
		log.Printf("Error loading device tokens for user %d: %v", userID, err)
		return nil
	}
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Token
	}
	return out
}

func withRoute(data map[string]string, category string) map[string]string {
	out := make(map[string]string, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	if _, ok := out["route"]; !ok {
		out["route"] = category
	}
	return out
}
