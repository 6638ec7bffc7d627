package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"ledgersync/internal/domain/notification"
)

const (
	deviceTokenColumns  = `id, user_id, token, device_type, is_active, created_at, last_used`
	notificationColumns = `id, user_id, title, message, category, data, created_at`
)

type NotificationRepository struct {
	db *DB
}

var _ notification.Repository = (*NotificationRepository)(nil)

func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func scanDeviceToken(row rowScanner) (*notification.DeviceToken, error) {
	var dt notification.DeviceToken
	if err := row.Scan(&dt.ID, &dt.UserID, &dt.Token, &dt.DeviceType, &dt.IsActive, &dt.CreatedAt, &dt.LastUsed); err != nil {
		return nil, err
	}
	return &dt, nil
}

// scanNotification reads notificationColumns plus any trailing destinations.
func scanNotification(row rowScanner, extra ...any) (*notification.Notification, error) {
	var n notification.Notification
	var data []byte
	dest := append([]any{&n.ID, &n.UserID, &n.Title, &n.Message, &n.Category, &data, &n.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &n.Data); err != nil {
		return nil, fmt.Errorf("notification %s has malformed data: %w", n.ID, err)
	}
	return &n, nil
}

// UpsertDeviceToken registers a device token. A token seen before is reactivated
// and moved to this user, since a device changes hands on re-login.
func (r *NotificationRepository) UpsertDeviceToken(ctx context.Context, params notification.CreateDeviceTokenParams) (*notification.DeviceToken, error) {
	dt, err := scanDeviceToken(r.db.QueryRowContext(ctx, `
		INSERT INTO device_tokens (user_id, token, device_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO UPDATE
			SET user_id = EXCLUDED.user_id,
			    device_type = EXCLUDED.device_type,
			    is_active = true,
			    last_used = NOW()
		RETURNING `+deviceTokenColumns,
		params.UserID, params.Token, params.DeviceType,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert device token: %w", err)
	}
	return dt, nil
}

func (r *NotificationRepository) GetActiveTokensByUserID(ctx context.Context, userID int64) ([]*notification.DeviceToken, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+deviceTokenColumns+`
		FROM device_tokens
		WHERE user_id = $1 AND is_active
		ORDER BY last_used DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*notification.DeviceToken
	for rows.Next() {
		dt, err := scanDeviceToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, dt)
	}
	return tokens, rows.Err()
}

// DeactivateToken is called by the push client when the messaging service reports
// a token as unregistered.
func (r *NotificationRepository) DeactivateToken(ctx context.Context, token string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE device_tokens SET is_active = false WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to deactivate token: %w", err)
	}
	return expectRow(result, notification.ErrDeviceTokenNotFound)
}

func (r *NotificationRepository) CreateNotification(ctx context.Context, params notification.CreateNotificationParams) (*notification.Notification, error) {
	data := params.Data
	if data == nil {
		data = map[string]string{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification data: %w", err)
	}

	n, err := scanNotification(r.db.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, title, message, category, data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+notificationColumns,
		params.UserID, params.Title, params.Message, params.Category, payload,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	return n, nil
}

// ListByUserID returns one page, newest first, and the user's total count.
// The count rides along on every row; an empty page falls back to a COUNT query.
func (r *NotificationRepository) ListByUserID(ctx context.Context, userID int64, page, perPage int) ([]*notification.Notification, int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`, COUNT(*) OVER ()
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, perPage, (page-1)*perPage,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var (
		items []*notification.Notification
		total int
	)
	for rows.Next() {
		n, err := scanNotification(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate notifications: %w", err)
	}

	if len(items) == 0 && page > 1 {
		err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1`, userID).Scan(&total)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
		}
	}
	return items, total, nil
}
