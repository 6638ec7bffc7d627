package listener

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"ledgersync/internal/domain/snapshot"
	"ledgersync/internal/infrastructure/postgres"
)

const (
	reconnectInterval = 5 * time.Second
	pingInterval      = 90 * time.Second
)

// Recomputer refreshes an owner's aggregates.
type Recomputer interface {
	Recompute(ctx context.Context, ownerID int64) (*snapshot.Snapshot, error)
}

// LedgerListener recomputes snapshots when any process commits a ledger apply.
// Recompute is idempotent, so duplicates with the in-process recompute are harmless.
type LedgerListener struct {
	connStr    string
	snapshots  Recomputer
	shutdownCh chan struct{}
	done       chan struct{}

	// inflight holds owners with a running recompute; true means another
	// notification arrived meanwhile and one more pass is owed.
	mu       sync.Mutex
	inflight map[int64]bool
}

// NewLedgerListener creates a new listener for ledger_applied notifications
func NewLedgerListener(connStr string, snapshots Recomputer) *LedgerListener {
	return &LedgerListener{
		connStr:    connStr,
		snapshots:  snapshots,
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
		inflight:   make(map[int64]bool),
	}
}

// Start begins listening in a background goroutine
func (l *LedgerListener) Start(ctx context.Context) {
	go l.listen(ctx)
	log.Println("Ledger listener started")
}

// Stop shuts down the listener and waits for it to exit
func (l *LedgerListener) Stop() {
	close(l.shutdownCh)
	<-l.done
	log.Println("Ledger listener stopped")
}

func (l *LedgerListener) listen(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		default:
			l.connectAndListen(ctx)
		}

		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(reconnectInterval):
			log.Println("Ledger listener: reconnecting...")
		}
	}
}

func (l *LedgerListener) connectAndListen(ctx context.Context) {
	listener := pq.NewListener(l.connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			log.Println("Ledger listener: connected")
		case pq.ListenerEventDisconnected:
			log.Printf("Ledger listener: disconnected: %v", err)
		case pq.ListenerEventReconnected:
			log.Println("Ledger listener: reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			log.Printf("Ledger listener: connection attempt failed: %v", err)
		}
	})
	defer listener.Close()

	if err := listener.Listen(postgres.LedgerAppliedChannel); err != nil {
		log.Printf("Ledger listener: failed to listen on %s: %v", postgres.LedgerAppliedChannel, err)
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case n := <-listener.Notify:
			if n == nil {
				// Reconnected; notifications sent while we were away are lost, which only
				// delays a recompute until the owner's next sync.
				continue
			}
			l.handle(n)
		case <-ping.C:
			if err := listener.Ping(); err != nil {
				log.Printf("Ledger listener: ping failed: %v", err)
				return
			}
		}
	}
}

func (l *LedgerListener) handle(n *pq.Notification) {
	ownerID, err := parseOwnerID(n.Extra)
	if err != nil {
		log.Printf("Ledger listener: bad payload %q: %v", n.Extra, err)
		return
	}

	// Collapse bursts: one recompute per owner at a time, plus one more if
	// anything committed while it ran.
	l.mu.Lock()
	if _, running := l.inflight[ownerID]; running {
		l.inflight[ownerID] = true
		l.mu.Unlock()
		return
	}
	l.inflight[ownerID] = false
	l.mu.Unlock()

	go func() {
		for {
			l.recompute(ownerID)

			l.mu.Lock()
			if !l.inflight[ownerID] {
				delete(l.inflight, ownerID)
				l.mu.Unlock()
				return
			}
			l.inflight[ownerID] = false
			l.mu.Unlock()
		}
	}()
}

func (l *LedgerListener) recompute(ownerID int64) {
	// Not tied to the listener's context; a recompute in progress should finish on shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := l.snapshots.Recompute(ctx, ownerID); err != nil {
		log.Printf("User %d: snapshot recompute from notification failed: %v", ownerID, err)
	}
}

func parseOwnerID(payload string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
}
