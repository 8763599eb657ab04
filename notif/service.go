// Package notif fans out data-store change notifications to the live
// subscriptions of every affected user. A single background dispatcher reads
// the raw feed, decodes each item into a typed event and publishes it to the
// per-user broadcast endpoints; SSE handlers register receive handles and
// consume from them independently.
package notif

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"chat-server/domain"
)

const reconnectDelay = time.Second

// Service is the subscriber registry plus the dispatcher that feeds it.
type Service struct {
	dial DialFunc

	mu    sync.RWMutex
	users map[int64]*endpoint

	done chan struct{}
}

func New(dial DialFunc) *Service {
	return &Service{
		dial:  dial,
		users: make(map[int64]*endpoint),
		done:  make(chan struct{}),
	}
}

// Register returns a receive handle for every event subsequently published
// to userID. The user's endpoint is created on first registration and shared
// by later ones; entries are kept for the life of the process.
func (s *Service) Register(userID int64) *Receiver {
	s.mu.RLock()
	ep := s.users[userID]
	s.mu.RUnlock()
	if ep == nil {
		s.mu.Lock()
		if ep = s.users[userID]; ep == nil {
			ep = newEndpoint()
			s.users[userID] = ep
		}
		s.mu.Unlock()
	}
	return ep.subscribe(backlogCap)
}

// publish delivers ev to userID's endpoint. A user with no live
// subscription is a no-op; events are not queued for future registrations.
func (s *Service) publish(userID int64, ev domain.AppEvent) {
	s.mu.RLock()
	ep := s.users[userID]
	s.mu.RUnlock()
	if ep == nil {
		return
	}
	ep.send(ev)
}

// Listen connects to the change feed and starts the dispatcher goroutine.
// A connection failure here is returned to the caller; failures after that
// only trigger reconnects.
func (s *Service) Listen(ctx context.Context) error {
	feed, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect change feed: %w", err)
	}
	go s.run(ctx, feed)
	return nil
}

// Done is closed once the dispatcher goroutine has exited at shutdown.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) run(ctx context.Context, feed Feed) {
	defer close(s.done)
	for {
		s.pump(ctx, feed)
		feed.Close(context.Background())
		if ctx.Err() != nil {
			return
		}
		log.Error("change feed lost, reconnecting")
		var err error
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			if feed, err = s.dial(ctx); err == nil {
				break
			}
			log.Errorf("reconnect change feed: %v", err)
		}
	}
}

// pump drains the feed until it fails or ctx is cancelled. A notification
// that does not decode is logged and skipped, never fatal to the loop.
func (s *Service) pump(ctx context.Context, feed Feed) {
	for {
		raw, err := feed.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Errorf("change feed: %v", err)
			}
			return
		}
		decoded, err := decodeNotification(raw.Channel, raw.Payload)
		if err != nil {
			log.Errorf("discarding notification: %v", err)
			continue
		}
		log.Debugf("dispatching %s to %d users", decoded.event.EventName(), len(decoded.userIDs))
		for _, uid := range decoded.userIDs {
			s.publish(uid, decoded.event)
		}
	}
}
