package storage

import (
	"context"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"chat-server/domain"
	"chat-server/internal/consts"
)

type fakeBackend struct {
	chats      []domain.Chat
	stored     map[int64]domain.Chat
	fetchCalls int
}

func (f *fakeBackend) FetchChat(_ context.Context, chatID int64) (*domain.Chat, error) {
	if chat, ok := f.stored[chatID]; ok {
		return &chat, nil
	}
	return nil, nil
}

func (f *fakeBackend) FetchUserChats(_ context.Context, userID, wsID int64) ([]domain.Chat, error) {
	f.fetchCalls++
	return f.chats, nil
}

func (f *fakeBackend) SaveChat(_ context.Context, chat *domain.Chat) (domain.Chat, error) {
	saved := *chat
	if saved.ID == 0 {
		saved.ID = 1
	}
	if f.stored == nil {
		f.stored = make(map[int64]domain.Chat)
	}
	f.stored[saved.ID] = saved
	return saved, nil
}

func (f *fakeBackend) DeleteChat(_ context.Context, chatID int64) (domain.Chat, error) {
	return domain.Chat{ID: chatID, Members: []int64{1, 2}}, nil
}

func setupCache(t *testing.T, base backend) (*Cache, *redis.Client) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { rc.Close() })
	return NewCache(base, rc, time.Hour), rc
}

func TestFetchUserChatsCaches(t *testing.T) {
	base := &fakeBackend{chats: []domain.Chat{{ID: 3, WsID: 1, Members: []int64{1, 2}, Status: 1}}}
	cache, rc := setupCache(t, base)
	ctx := context.Background()

	chats, err := cache.FetchUserChats(ctx, 1, 1)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(chats) != 1 || chats[0].ID != 3 {
		t.Fatalf("unexpected chats %+v", chats)
	}
	if base.fetchCalls != 1 {
		t.Fatalf("expected 1 backend call, got %d", base.fetchCalls)
	}
	if rc.Exists(ctx, consts.ChatsKeyPrefix+"1").Val() != 1 {
		t.Fatal("chat list was not cached")
	}

	// second read is served from the cache
	if _, err := cache.FetchUserChats(ctx, 1, 1); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if base.fetchCalls != 1 {
		t.Fatalf("expected cache hit, backend called %d times", base.fetchCalls)
	}
}

func TestSaveChatEvictsMembers(t *testing.T) {
	base := &fakeBackend{}
	cache, rc := setupCache(t, base)
	ctx := context.Background()

	for _, uid := range []int64{1, 2, 3} {
		if err := rc.Set(ctx, consts.ChatsKeyPrefix+strconv.FormatInt(uid, 10), "[]", 0).Err(); err != nil {
			t.Fatalf("seed cache: %v", err)
		}
	}

	_, err := cache.SaveChat(ctx, &domain.Chat{WsID: 1, ChatType: domain.ChatTypeGroup, Members: []int64{1, 2}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	for _, uid := range []int64{1, 2} {
		if rc.Exists(ctx, consts.ChatsKeyPrefix+strconv.FormatInt(uid, 10)).Val() != 0 {
			t.Fatalf("cache for user %d was not evicted", uid)
		}
	}
	if rc.Exists(ctx, consts.ChatsKeyPrefix+"3").Val() != 1 {
		t.Fatal("unrelated user's cache was evicted")
	}
}

func TestSaveChatEvictsRemovedMembers(t *testing.T) {
	base := &fakeBackend{stored: map[int64]domain.Chat{
		5: {ID: 5, WsID: 1, ChatType: domain.ChatTypeGroup, Members: []int64{1, 2}, Status: 1},
	}}
	cache, rc := setupCache(t, base)
	ctx := context.Background()

	for _, uid := range []int64{1, 2, 3, 9} {
		if err := rc.Set(ctx, consts.ChatsKeyPrefix+strconv.FormatInt(uid, 10), "[]", 0).Err(); err != nil {
			t.Fatalf("seed cache: %v", err)
		}
	}

	// user 2 leaves, user 3 joins
	_, err := cache.SaveChat(ctx, &domain.Chat{ID: 5, WsID: 1, ChatType: domain.ChatTypeGroup, Members: []int64{1, 3}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	for _, uid := range []int64{1, 2, 3} {
		if rc.Exists(ctx, consts.ChatsKeyPrefix+strconv.FormatInt(uid, 10)).Val() != 0 {
			t.Fatalf("cache for user %d was not evicted", uid)
		}
	}
	if rc.Exists(ctx, consts.ChatsKeyPrefix+"9").Val() != 1 {
		t.Fatal("unrelated user's cache was evicted")
	}
}

func TestDeleteChatEvictsMembers(t *testing.T) {
	base := &fakeBackend{}
	cache, rc := setupCache(t, base)
	ctx := context.Background()

	if err := rc.Set(ctx, consts.ChatsKeyPrefix+"2", "[]", 0).Err(); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	if _, err := cache.DeleteChat(ctx, 7); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rc.Exists(ctx, consts.ChatsKeyPrefix+"2").Val() != 0 {
		t.Fatal("member cache was not evicted after delete")
	}
}
