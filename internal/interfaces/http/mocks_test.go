package http

import (
	"context"
	"time"

	"ledgersync/internal/domain/account"
	"ledgersync/internal/domain/connection"
	"ledgersync/internal/domain/notification"
	"ledgersync/internal/domain/openfinance"
	"ledgersync/internal/domain/snapshot"
	"ledgersync/internal/domain/user"
	"ledgersync/internal/interfaces/scheduler"
	"ledgersync/internal/shared/middleware"
)

func withUser(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, middleware.UserIDKey, id)
}

type MockUserRepo struct {
	CreateFunc     func(ctx context.Context, params user.CreateUserParams) (*user.User, error)
	GetByIDFunc    func(ctx context.Context, id int64) (*user.User, error)
	GetByEmailFunc func(ctx context.Context, email string) (*user.User, error)
}

func (m *MockUserRepo) Create(ctx context.Context, params user.CreateUserParams) (*user.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, params)
	}
	return nil, nil
}

func (m *MockUserRepo) GetByID(ctx context.Context, id int64) (*user.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, user.ErrUserNotFound
}

func (m *MockUserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, user.ErrUserNotFound
}

type MockConnectionRepo struct {
	GetByIDFunc       func(ctx context.Context, id string) (*connection.Connection, error)
	ListByOwnerIDFunc func(ctx context.Context, ownerID int64) ([]*connection.Connection, error)
	DeleteFunc        func(ctx context.Context, id string) error
	CreateFunc        func(ctx context.Context, exchange *connection.PendingExchange) error
	ClaimFunc         func(ctx context.Context, ownerID int64, exchangeID, connectionID string, now time.Time) (*connection.Connection, error)
}

func (m *MockConnectionRepo) GetByID(ctx context.Context, id string) (*connection.Connection, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, connection.ErrConnectionNotFound
}

func (m *MockConnectionRepo) GetCursor(ctx context.Context, id string) (*string, error) {
	return nil, nil
}

func (m *MockConnectionRepo) ListByOwnerID(ctx context.Context, ownerID int64) ([]*connection.Connection, error) {
	if m.ListByOwnerIDFunc != nil {
		return m.ListByOwnerIDFunc(ctx, ownerID)
	}
	return nil, nil
}

func (m *MockConnectionRepo) ListOwnersWithActiveConnections(ctx context.Context) ([]int64, error) {
	return nil, nil
}

func (m *MockConnectionRepo) MarkError(ctx context.Context, id string, message string) error {
	return nil
}

func (m *MockConnectionRepo) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *MockConnectionRepo) Create(ctx context.Context, exchange *connection.PendingExchange) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, exchange)
	}
	return nil
}

func (m *MockConnectionRepo) Claim(ctx context.Context, ownerID int64, exchangeID, connectionID string, now time.Time) (*connection.Connection, error) {
	if m.ClaimFunc != nil {
		return m.ClaimFunc(ctx, ownerID, exchangeID, connectionID, now)
	}
	return nil, connection.ErrExchangeNotFound
}

func (m *MockConnectionRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type MockTokenExchanger struct {
	ExchangePublicTokenFunc func(ctx context.Context, publicToken string) (*connection.ExchangedCredential, error)
}

func (m *MockTokenExchanger) ExchangePublicToken(ctx context.Context, publicToken string) (*connection.ExchangedCredential, error) {
	if m.ExchangePublicTokenFunc != nil {
		return m.ExchangePublicTokenFunc(ctx, publicToken)
	}
	return &connection.ExchangedCredential{AccessToken: "access-" + publicToken, ExternalID: "item-1"}, nil
}

type plainVault struct{}

func (plainVault) Encrypt(plaintext string) (string, error) { return "enc:" + plaintext, nil }

func newConnectionService(repo *MockConnectionRepo) *connection.Service {
	return connection.NewService(repo, repo, &MockTokenExchanger{}, plainVault{}, 30*time.Minute)
}

type MockSyncer struct {
	SyncOwnerFunc      func(ctx context.Context, ownerID int64) ([]*openfinance.SyncResult, error)
	SyncConnectionFunc func(ctx context.Context, ownerID int64, connectionID string) (*openfinance.SyncResult, error)
}

func (m *MockSyncer) SyncOwner(ctx context.Context, ownerID int64) ([]*openfinance.SyncResult, error) {
	if m.SyncOwnerFunc != nil {
		return m.SyncOwnerFunc(ctx, ownerID)
	}
	return nil, nil
}

func (m *MockSyncer) SyncConnection(ctx context.Context, ownerID int64, connectionID string) (*openfinance.SyncResult, error) {
	if m.SyncConnectionFunc != nil {
		return m.SyncConnectionFunc(ctx, ownerID, connectionID)
	}
	return &openfinance.SyncResult{ConnectionID: connectionID, OwnerID: ownerID}, nil
}

type MockSubmitter struct {
	SubmitFunc func(job scheduler.Job) error
	submitted  []scheduler.Job
}

func (m *MockSubmitter) Submit(job scheduler.Job) error {
	if m.SubmitFunc != nil {
		if err := m.SubmitFunc(job); err != nil {
			return err
		}
	}
	m.submitted = append(m.submitted, job)
	return nil
}

type MockAccountRepo struct {
	ListActiveByOwnerIDFunc func(ctx context.Context, ownerID int64) ([]*account.Account, error)
}

func (m *MockAccountRepo) ListByConnectionID(ctx context.Context, connectionID string) ([]*account.Account, error) {
	return nil, nil
}

func (m *MockAccountRepo) ListActiveByOwnerID(ctx context.Context, ownerID int64) ([]*account.Account, error) {
	if m.ListActiveByOwnerIDFunc != nil {
		return m.ListActiveByOwnerIDFunc(ctx, ownerID)
	}
	return nil, nil
}

type MockSnapshotRepo struct {
	UpsertFunc        func(ctx context.Context, s *snapshot.Snapshot) (*snapshot.Snapshot, error)
	GetByPeriodFunc   func(ctx context.Context, ownerID int64, period time.Time) (*snapshot.Snapshot, error)
	ListByOwnerIDFunc func(ctx context.Context, ownerID int64, limit int) ([]*snapshot.Snapshot, error)
}

func (m *MockSnapshotRepo) Upsert(ctx context.Context, s *snapshot.Snapshot) (*snapshot.Snapshot, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, s)
	}
	return s, nil
}

func (m *MockSnapshotRepo) GetByPeriod(ctx context.Context, ownerID int64, period time.Time) (*snapshot.Snapshot, error) {
	if m.GetByPeriodFunc != nil {
		return m.GetByPeriodFunc(ctx, ownerID, period)
	}
	return nil, snapshot.ErrSnapshotNotFound
}

func (m *MockSnapshotRepo) ListByOwnerID(ctx context.Context, ownerID int64, limit int) ([]*snapshot.Snapshot, error) {
	if m.ListByOwnerIDFunc != nil {
		return m.ListByOwnerIDFunc(ctx, ownerID, limit)
	}
	return nil, nil
}

type MockNotificationRepo struct {
	UpsertDeviceTokenFunc func(ctx context.Context, params notification.CreateDeviceTokenParams) (*notification.DeviceToken, error)
	ListByUserIDFunc      func(ctx context.Context, userID int64, page, perPage int) ([]*notification.Notification, int, error)
}

func (m *MockNotificationRepo) UpsertDeviceToken(ctx context.Context, params notification.CreateDeviceTokenParams) (*notification.DeviceToken, error) {
	if m.UpsertDeviceTokenFunc != nil {
		return m.UpsertDeviceTokenFunc(ctx, params)
	}
	return &notification.DeviceToken{UserID: params.UserID, Token: params.Token, DeviceType: params.DeviceType, IsActive: true}, nil
}

func (m *MockNotificationRepo) GetActiveTokensByUserID(ctx context.Context, userID int64) ([]*notification.DeviceToken, error) {
	return nil, nil
}

func (m *MockNotificationRepo) DeactivateToken(ctx context.Context, token string) error {
	return nil
}

func (m *MockNotificationRepo) CreateNotification(ctx context.Context, params notification.CreateNotificationParams) (*notification.Notification, error) {
	return &notification.Notification{}, nil
}

func (m *MockNotificationRepo) ListByUserID(ctx context.Context, userID int64, page, perPage int) ([]*notification.Notification, int, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID, page, perPage)
	}
	return nil, 0, nil
}
