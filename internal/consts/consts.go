package consts

const (
	// ChatsKeyPrefix keys the cached chat list for a user in redis.
	ChatsKeyPrefix = "chats:"

	SSEDataPrefix  = "data: "
	SSEEventPrefix = "event: "
)
