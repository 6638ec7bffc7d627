package notification

import (
	"context"
	"log"
	"strconv"
	"strings"

	"ledgersync/internal/shared/messages"
)

// SyncNotifier turns sync outcomes into user-facing notifications.
type SyncNotifier struct {
	svc  *Service
	msgs *messages.Messages
}

func NewSyncNotifier(svc *Service, msgs *messages.Messages) *SyncNotifier {
	return &SyncNotifier{svc: svc, msgs: msgs}
}

// ConnectionNeedsAttention tells the owner a connection moved to the error state.
func (n *SyncNotifier) ConnectionNeedsAttention(ctx context.Context, ownerID int64, connectionID, institution string) {
	text := n.msgs.ConnectionNeedsAttention
	body := strings.ReplaceAll(text.Body, "{institution}", institution)

	err := n.svc.SendToUser(ctx, ownerID, text.Title, body, CategoryAccounts, map[string]string{
		"connectionId": connectionID,
	})
	if err != nil {
		log.Printf("User %d: failed to send attention notification: %v", ownerID, err)
	}
}

// LedgerUpdated sends a silent reload trigger after a sync that changed entries.
func (n *SyncNotifier) LedgerUpdated(ctx context.Context, ownerID int64, connectionID string, changed int) {
	if changed == 0 {
		return
	}
	err := n.svc.SendDataOnlyToUser(ctx, ownerID, map[string]string{
		"type":         "reload",
		"route":        CategoryLedger,
		"connectionId": connectionID,
		"changed":      strconv.Itoa(changed),
	})
	if err != nil {
		log.Printf("User %d: failed to send reload trigger: %v", ownerID, err)
	}
}
