package domain

import "time"

// ChatType mirrors the chat_type enum in the database.
type ChatType string

const (
	ChatTypeSingle         ChatType = "single"
	ChatTypeGroup          ChatType = "group"
	ChatTypePrivateChannel ChatType = "private_channel"
	ChatTypePublicChannel  ChatType = "public_channel"
)

// Valid reports whether t is one of the known chat types.
func (t ChatType) Valid() bool {
	switch t {
	case ChatTypeSingle, ChatTypeGroup, ChatTypePrivateChannel, ChatTypePublicChannel:
		return true
	}
	return false
}

const (
	ChatStatusDeleted int16 = 0
	ChatStatusActive  int16 = 1
)

type Chat struct {
	ID        int64     `json:"id" db:"id"`
	WsID      int64     `json:"ws_id" db:"ws_id"`
	Name      *string   `json:"name" db:"name"`
	ChatType  ChatType  `json:"chat_type" db:"chat_type"`
	Members   []int64   `json:"members" db:"members"`
	Status    int16     `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Msg is a single chat message. Immutable once stored.
type Msg struct {
	ID        int64     `json:"id" db:"id"`
	ChatID    int64     `json:"chat_id" db:"chat_id"`
	SenderID  int64     `json:"sender_id" db:"sender_id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
