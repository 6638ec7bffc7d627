package notification

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Categories double as the client route a notification opens.
const (
	CategoryAccounts  = "accounts"
	CategoryLedger    = "ledger"
	CategorySnapshots = "snapshots"
)

var (
	categories  = []string{CategoryAccounts, CategoryLedger, CategorySnapshots}
	deviceTypes = []string{"ios", "android", "web"}
)

var (
	ErrDeviceTokenNotFound = errors.New("device token not found")
	ErrInvalidCategory     = errors.New("invalid notification category")
	ErrInvalidDeviceType   = fmt.Errorf("device type must be one of %v", deviceTypes)
	ErrInvalidToken        = errors.New("device token is required")
)

// DeviceToken is a push registration of one of a user's devices.
type DeviceToken struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"-"`
	Token      string    `json:"token"`
	DeviceType string    `json:"deviceType"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsed   time.Time `json:"lastUsed"`
}

// Notification is the stored copy of a push sent to a user.
type Notification struct {
	ID        string            `json:"id"`
	UserID    int64             `json:"-"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Category  string            `json:"category"`
	Data      map[string]string `json:"data"`
	CreatedAt time.Time         `json:"createdAt"`
}

type CreateDeviceTokenParams struct {
	UserID     int64
	Token      string
	DeviceType string
}

func (p CreateDeviceTokenParams) Validate() error {
	switch {
	case p.UserID <= 0:
		return errors.New("valid user ID is required")
	case p.Token == "":
		return ErrInvalidToken
	case !IsValidDeviceType(p.DeviceType):
		return ErrInvalidDeviceType
	}
	return nil
}

type CreateNotificationParams struct {
	UserID   int64
	Title    string
	Message  string
	Category string
	Data     map[string]string
}

func (p CreateNotificationParams) Validate() error {
	switch {
	case p.UserID <= 0:
		return errors.New("valid user ID is required")
	case p.Title == "" || p.Message == "":
		return errors.New("notification title and message are required")
	case !IsValidCategory(p.Category):
		return fmt.Errorf("%w: %q", ErrInvalidCategory, p.Category)
	}
	return nil
}

func IsValidCategory(c string) bool { return slices.Contains(categories, c) }

func IsValidDeviceType(dt string) bool { return slices.Contains(deviceTypes, dt) }
