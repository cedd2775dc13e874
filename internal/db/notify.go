package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

const (
	minReconnect = 10 * time.Second
	maxReconnect = time.Minute
)

// Notifier wraps the LISTEN/NOTIFY mechanism in PostgreSQL.  It publishes
// archived encounter ids and lets review clients subscribe to them.
type Notifier struct {
	DB      *sql.DB
	DSN     string
	Channel string
}

// NewNotifier constructs a new Notifier.  The channel should match the
// POSTGRES_NOTIFY_CHANNEL environment variable; dsn is used to open the
// dedicated listener connection.
func NewNotifier(db *sql.DB, dsn, channel string) *Notifier {
	return &Notifier{DB: db, DSN: dsn, Channel: channel}
}

// Notify sends the encounter id as the notification payload.
func (n *Notifier) Notify(ctx context.Context, encounterID string) error {
	_, err := n.DB.ExecContext(ctx, "SELECT pg_notify($1, $2)", n.Channel, encounterID)
	return err
}

// Subscribe yields encounter ids as they are announced on the channel until
// ctx is cancelled.  Each subscription holds its own listener connection.
func (n *Notifier) Subscribe(ctx context.Context) (<-chan string, error) {
	l := pq.NewListener(n.DSN, minReconnect, maxReconnect, nil)
	if err := l.Listen(n.Channel); err != nil {
		_ = l.Close()
		return nil, err
	}
	ch := make(chan string)
	go func() {
		defer func() {
			_ = l.Close()
			close(ch)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case notification, ok := <-l.Notify:
				if !ok {
					return
				}
				// nil after a reconnect
				if notification == nil {
					continue
				}
				select {
				case ch <- notification.Extra:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}
