package notif

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Notification is one raw item from the store's change feed.
type Notification struct {
	Channel string
	Payload string
}

// Feed is a persistent subscription to the store's change notifications.
type Feed interface {
	// Next blocks until a notification arrives, ctx is cancelled, or the
	// underlying connection is lost.
	Next(ctx context.Context) (Notification, error)
	Close(ctx context.Context) error
}

// DialFunc opens a fresh feed connection. The dispatcher calls it at startup
// and again after every lost connection.
type DialFunc func(ctx context.Context) (Feed, error)

// PostgresFeed returns a DialFunc that LISTENs for the chat trigger
// notifications over a dedicated connection.
func PostgresFeed(dbURL string) DialFunc {
	return func(ctx context.Context) (Feed, error) {
		conn, err := pgx.Connect(ctx, dbURL)
		if err != nil {
			return nil, err
		}
		for _, ch := range []string{chanChatUpdated, chanChatMessageCreated} {
			if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
				conn.Close(ctx)
				return nil, err
			}
		}
		return &pgFeed{conn: conn}, nil
	}
}

type pgFeed struct {
	conn *pgx.Conn
}

func (f *pgFeed) Next(ctx context.Context) (Notification, error) {
	n, err := f.conn.WaitForNotification(ctx)
	if err != nil {
		return Notification{}, err
	}
	return Notification{Channel: n.Channel, Payload: n.Payload}, nil
}

func (f *pgFeed) Close(ctx context.Context) error {
	return f.conn.Close(ctx)
}
