package storage

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"chat-server/domain"
	"chat-server/internal/consts"
)

type backend interface {
	FetchChat(ctx context.Context, chatID int64) (*domain.Chat, error)
	FetchUserChats(ctx context.Context, userID, wsID int64) ([]domain.Chat, error)
	SaveChat(ctx context.Context, chat *domain.Chat) (domain.Chat, error)
	DeleteChat(ctx context.Context, chatID int64) (domain.Chat, error)
}

// Cache wraps a Storage instance with a redis-backed per-user chat list.
// Cache failures degrade to the backend, they are never surfaced to callers.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	c := &Cache{base: base, redis: client, ttl: ttl}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) FetchUserChats(ctx context.Context, userID, wsID int64) ([]domain.Chat, error) {
	key := consts.ChatsKeyPrefix + strconv.FormatInt(userID, 10)
	if raw, err := c.redis.Get(ctx, key).Bytes(); err == nil {
		var chats []domain.Chat
		if err := json.Unmarshal(raw, &chats); err == nil {
			return chats, nil
		}
	}
	chats, err := c.base.FetchUserChats(ctx, userID, wsID)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(chats); err == nil {
		if err := c.redis.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			log.Errorf("cache chats for user %d: %v", userID, err)
		}
	}
	return chats, nil
}

// SaveChat writes through and evicts the cached chat lists of everyone whose
// membership the write may have touched. For updates that includes the members
// stored before the write, not just the incoming list, so users removed from
// a chat do not keep serving a stale cached list.
func (c *Cache) SaveChat(ctx context.Context, chat *domain.Chat) (domain.Chat, error) {
	var prev []int64
	if chat.ID != 0 {
		if stored, err := c.base.FetchChat(ctx, chat.ID); err != nil {
			log.Errorf("fetch chat %d before save: %v", chat.ID, err)
		} else if stored != nil {
			prev = stored.Members
		}
	}
	saved, err := c.base.SaveChat(ctx, chat)
	if err != nil {
		return saved, err
	}
	c.evict(ctx, prev, chat.Members, saved.Members)
	return saved, nil
}

func (c *Cache) DeleteChat(ctx context.Context, chatID int64) (domain.Chat, error) {
	deleted, err := c.base.DeleteChat(ctx, chatID)
	if err != nil {
		return deleted, err
	}
	c.evict(ctx, deleted.Members)
	return deleted, nil
}

func (c *Cache) evict(ctx context.Context, memberLists ...[]int64) {
	seen := make(map[int64]struct{})
	keys := make([]string, 0)
	for _, members := range memberLists {
		for _, id := range members {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			keys = append(keys, consts.ChatsKeyPrefix+strconv.FormatInt(id, 10))
		}
	}
	if len(keys) == 0 {
		return
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		log.Errorf("evict chat cache: %v", err)
	}
}
