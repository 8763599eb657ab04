package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"chat-server/domain"
	"chat-server/internal/consts"
)

// Proxies in front of long-lived connections reclaim idle ones, so the
// stream carries a comment frame at this interval even when nothing happens.
const keepAliveInterval = 30 * time.Second

// EventStream is one subscription's receive side.
type EventStream interface {
	Recv(ctx context.Context) (ev domain.AppEvent, missed uint64, err error)
	Close()
}

// Notifier hands out event subscriptions for authenticated users.
type Notifier interface {
	Register(userID int64) EventStream
}

// streamEvents pushes the caller's live events over SSE until the client
// disconnects. Only this connection's receive handle is released on exit;
// other subscriptions for the same user are untouched.
func streamEvents(events Notifier) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := claimsFrom(c)
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		c.Response().WriteHeader(http.StatusOK)
		flusher.Flush()

		ctx := c.Request().Context()
		sub := events.Register(claims.UserID)
		defer sub.Close()
		for {
			recvCtx, cancel := context.WithTimeout(ctx, keepAliveInterval)
			ev, missed, err := sub.Recv(recvCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if !errors.Is(err, context.DeadlineExceeded) {
					c.Logger().Error(err)
					return nil
				}
				if _, err := io.WriteString(c.Response(), ": alive\n\n"); err != nil {
					return nil
				}
				flusher.Flush()
				continue
			}
			if missed > 0 {
				c.Logger().Warnf("user %d lagged, dropped %d events", claims.UserID, missed)
			}
			name, data, err := marshalEvent(ev)
			if err != nil {
				c.Logger().Error(err)
				continue
			}
			if _, err := fmt.Fprintf(c.Response(), "%s%s\n%s%s\n\n",
				consts.SSEEventPrefix, name, consts.SSEDataPrefix, data); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}

// marshalEvent picks the wire tag and payload for an event. The switch is
// exhaustive over the domain.AppEvent variants.
func marshalEvent(ev domain.AppEvent) (name string, data []byte, err error) {
	switch e := ev.(type) {
	case domain.NewChat:
		data, err = json.Marshal(e.Chat)
	case domain.AddToChat:
		data, err = json.Marshal(e.Chat)
	case domain.RemoveFromChat:
		data, err = json.Marshal(e.Chat)
	case domain.NewMessage:
		data, err = json.Marshal(e.Msg)
	default:
		return "", nil, fmt.Errorf("unknown event type %T", ev)
	}
	if err != nil {
		return "", nil, err
	}
	return ev.EventName(), data, nil
}
