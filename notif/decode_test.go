package notif

import (
	"sort"
	"testing"

	"chat-server/domain"
)

const insertPayload = `{"op":"INSERT","old":null,"new":{"id":8,"ws_id":1,"name":"room","chat_type":"public_channel","members":[1,4],"status":1,"created_at":"2024-11-17T01:01:32.372249+00:00"}}`

func sortedIDs(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestDecodeChatInsert(t *testing.T) {
	decoded, err := decodeNotification("chat_updated", insertPayload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ev, ok := decoded.event.(domain.NewChat)
	if !ok {
		t.Fatalf("expected NewChat, got %T", decoded.event)
	}
	if ev.EventName() != "new_chat" {
		t.Fatalf("unexpected event name %s", ev.EventName())
	}
	if ev.Chat.ID != 8 || ev.Chat.WsID != 1 || ev.Chat.ChatType != domain.ChatTypePublicChannel {
		t.Fatalf("unexpected chat %+v", ev.Chat)
	}
	got := sortedIDs(decoded.userIDs)
	if len(got) != 2 || got[0] != 1 || got[1] != 4 {
		t.Fatalf("unexpected affected users %v", got)
	}
}

func TestDecodeChatUpdateUnionsMembers(t *testing.T) {
	payload := `{"op":"UPDATE",
		"old":{"id":3,"ws_id":1,"name":null,"chat_type":"group","members":[1,2],"status":1,"created_at":"2024-11-17T01:01:32Z"},
		"new":{"id":3,"ws_id":1,"name":null,"chat_type":"group","members":[1,3],"status":1,"created_at":"2024-11-17T01:01:32Z"}}`
	decoded, err := decodeNotification("chat_updated", payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := decoded.event.(domain.AddToChat); !ok {
		t.Fatalf("expected AddToChat, got %T", decoded.event)
	}
	got := sortedIDs(decoded.userIDs)
	want := []int64{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestDecodeChatDelete(t *testing.T) {
	payload := `{"op":"DELETE",
		"old":{"id":3,"ws_id":1,"name":null,"chat_type":"group","members":[1,2],"status":0,"created_at":"2024-11-17T01:01:32Z"},
		"new":null}`
	decoded, err := decodeNotification("chat_updated", payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ev, ok := decoded.event.(domain.RemoveFromChat)
	if !ok {
		t.Fatalf("expected RemoveFromChat, got %T", decoded.event)
	}
	if ev.Chat.ID != 3 {
		t.Fatalf("unexpected chat %+v", ev.Chat)
	}
}

func TestDecodeMessageCreated(t *testing.T) {
	payload := `{"message":{"id":7,"chat_id":1,"sender_id":1,"content":"hi","created_at":"2024-11-17T00:57:45.398913+00:00"},"members":[1,2]}`
	decoded, err := decodeNotification("chat_message_created", payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ev, ok := decoded.event.(domain.NewMessage)
	if !ok {
		t.Fatalf("expected NewMessage, got %T", decoded.event)
	}
	if ev.Msg.ID != 7 || ev.Msg.Content != "hi" {
		t.Fatalf("unexpected message %+v", ev.Msg)
	}
	got := sortedIDs(decoded.userIDs)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected affected users %v", got)
	}
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		name    string
		channel string
		payload string
	}{
		{"unknown channel", "user_updated", `{}`},
		{"malformed json", "chat_updated", `{"op":`},
		{"unknown op", "chat_updated", `{"op":"TRUNCATE","old":null,"new":null}`},
		{"insert without new", "chat_updated", `{"op":"INSERT","old":null,"new":null}`},
		{"update without new", "chat_updated", `{"op":"UPDATE","old":null,"new":null}`},
		{"delete without old", "chat_updated", `{"op":"DELETE","old":null,"new":null}`},
		{"malformed message", "chat_message_created", `not json`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := decodeNotification(tc.channel, tc.payload); err == nil {
				t.Fatal("expected decode error")
			}
		})
	}
}
