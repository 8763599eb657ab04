package notif

import (
	"encoding/json"
	"fmt"

	"chat-server/domain"
)

// Trigger channels the feed is subscribed to. The chats trigger emits
// pg_notify('chat_updated', json_build_object('op', TG_OP, 'old', OLD, 'new', NEW)::text)
// and the messages trigger emits
// pg_notify('chat_message_created', json_build_object('message', NEW, 'members', ...)::text).
const (
	chanChatUpdated        = "chat_updated"
	chanChatMessageCreated = "chat_message_created"
)

type chatUpdated struct {
	Op  string       `json:"op"`
	Old *domain.Chat `json:"old"`
	New *domain.Chat `json:"new"`
}

// affectedUserIDs is the union of the old and new member lists, so one
// decode covers creation, member adds and member removes without diffing.
func (u *chatUpdated) affectedUserIDs() []int64 {
	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, chat := range []*domain.Chat{u.Old, u.New} {
		if chat == nil {
			continue
		}
		for _, id := range chat.Members {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

type messageCreated struct {
	Message domain.Msg `json:"message"`
	// Members is computed by the trigger at write time; it is deliberately
	// not recomputed from the chat's current member list.
	Members []int64 `json:"members"`
}

// notification is a decoded feed item: one event plus the users it goes to.
type notification struct {
	userIDs []int64
	event   domain.AppEvent
}

func decodeNotification(channel, payload string) (*notification, error) {
	switch channel {
	case chanChatUpdated:
		var upd chatUpdated
		if err := json.Unmarshal([]byte(payload), &upd); err != nil {
			return nil, fmt.Errorf("parse %s payload: %w", channel, err)
		}
		var ev domain.AppEvent
		switch upd.Op {
		case "INSERT":
			if upd.New == nil {
				return nil, fmt.Errorf("%s: INSERT without new row", channel)
			}
			ev = domain.NewChat{Chat: *upd.New}
		case "UPDATE":
			if upd.New == nil {
				return nil, fmt.Errorf("%s: UPDATE without new row", channel)
			}
			ev = domain.AddToChat{Chat: *upd.New}
		case "DELETE":
			if upd.Old == nil {
				return nil, fmt.Errorf("%s: DELETE without old row", channel)
			}
			ev = domain.RemoveFromChat{Chat: *upd.Old}
		default:
			return nil, fmt.Errorf("%s: unknown op %q", channel, upd.Op)
		}
		return &notification{userIDs: upd.affectedUserIDs(), event: ev}, nil
	case chanChatMessageCreated:
		var created messageCreated
		if err := json.Unmarshal([]byte(payload), &created); err != nil {
			return nil, fmt.Errorf("parse %s payload: %w", channel, err)
		}
		return &notification{
			userIDs: created.Members,
			event:   domain.NewMessage{Msg: created.Message},
		}, nil
	default:
		return nil, fmt.Errorf("unknown notification channel %q", channel)
	}
}
