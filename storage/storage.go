package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat-server/domain"
)

// Storage provides access to the relational store.
type Storage struct {
	pool *pgxpool.Pool
}

// New creates a Storage instance backed by a Postgres connection pool.
func New(ctx context.Context, dbURL string) (*Storage, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Storage{pool: pool}, nil
}

func (s *Storage) Close() {
	s.pool.Close()
}

// FetchChat returns the chat with the given id, or nil when it does not exist.
func (s *Storage) FetchChat(ctx context.Context, chatID int64) (*domain.Chat, error) {
	rows, _ := s.pool.Query(ctx, `
		SELECT id, ws_id, name, chat_type, members, status, created_at
		FROM chats
		WHERE id = $1
	`, chatID)
	chat, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[domain.Chat])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// FetchUserChats lists the active chats the user is a member of in the workspace.
func (s *Storage) FetchUserChats(ctx context.Context, userID, wsID int64) ([]domain.Chat, error) {
	rows, _ := s.pool.Query(ctx, `
		SELECT id, ws_id, name, chat_type, members, status, created_at
		FROM chats
		WHERE ws_id = $1 AND $2 = ANY(members) AND status = 1
	`, wsID, userID)
	return pgx.CollectRows(rows, pgx.RowToStructByName[domain.Chat])
}

// SaveChat inserts the chat when it has no id yet, otherwise updates it.
// The returned row is the stored state, triggers already fired.
func (s *Storage) SaveChat(ctx context.Context, chat *domain.Chat) (domain.Chat, error) {
	var rows pgx.Rows
	if chat.ID == 0 {
		rows, _ = s.pool.Query(ctx, `
			INSERT INTO chats (ws_id, name, chat_type, members)
			VALUES ($1, $2, $3, $4)
			RETURNING id, ws_id, name, chat_type, members, status, created_at
		`, chat.WsID, chat.Name, chat.ChatType, chat.Members)
	} else {
		rows, _ = s.pool.Query(ctx, `
			UPDATE chats SET name = $1, chat_type = $2, members = $3
			WHERE id = $4
			RETURNING id, ws_id, name, chat_type, members, status, created_at
		`, chat.Name, chat.ChatType, chat.Members, chat.ID)
	}
	return pgx.CollectOneRow(rows, pgx.RowToStructByName[domain.Chat])
}

// DeleteChat soft-deletes the chat by flipping its status.
func (s *Storage) DeleteChat(ctx context.Context, chatID int64) (domain.Chat, error) {
	rows, _ := s.pool.Query(ctx, `
		UPDATE chats SET status = 0
		WHERE id = $1
		RETURNING id, ws_id, name, chat_type, members, status, created_at
	`, chatID)
	return pgx.CollectOneRow(rows, pgx.RowToStructByName[domain.Chat])
}

func (s *Storage) StoreMsg(ctx context.Context, msg *domain.Msg) (domain.Msg, error) {
	rows, _ := s.pool.Query(ctx, `
		INSERT INTO messages (chat_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, chat_id, sender_id, content, created_at
	`, msg.ChatID, msg.SenderID, msg.Content)
	return pgx.CollectOneRow(rows, pgx.RowToStructByName[domain.Msg])
}

// FetchMessages pages backwards through a chat's messages, newest first.
func (s *Storage) FetchMessages(ctx context.Context, chatID, lastID, limit int64) ([]domain.Msg, error) {
	rows, _ := s.pool.Query(ctx, `
		SELECT id, chat_id, sender_id, content, created_at
		FROM messages
		WHERE chat_id = $1 AND id < $2
		ORDER BY id DESC
		LIMIT $3
	`, chatID, lastID, limit)
	return pgx.CollectRows(rows, pgx.RowToStructByName[domain.Msg])
}

// MembersExist reports whether every id in members is a known user.
func (s *Storage) MembersExist(ctx context.Context, members []int64) (bool, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM users WHERE id = ANY($1)
	`, members).Scan(&count)
	if err != nil {
		return false, err
	}
	return count == int64(len(members)), nil
}

func (s *Storage) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	rows, _ := s.pool.Query(ctx, `
		SELECT id, ws_id, fullname, email, password_hash, created_at
		FROM users
		WHERE email = $1
	`, email)
	user, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[domain.User])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Storage) FindUserByID(ctx context.Context, userID int64) (*domain.User, error) {
	rows, _ := s.pool.Query(ctx, `
		SELECT id, ws_id, fullname, email, password_hash, created_at
		FROM users
		WHERE id = $1
	`, userID)
	user, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[domain.User])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Storage) SaveUser(ctx context.Context, user *domain.User) (domain.User, error) {
	rows, _ := s.pool.Query(ctx, `
		INSERT INTO users (ws_id, email, fullname, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, ws_id, fullname, email, password_hash, created_at
	`, user.WsID, user.Email, user.Fullname, user.PasswordHash)
	return pgx.CollectOneRow(rows, pgx.RowToStructByName[domain.User])
}

// FetchWorkspaceUsers lists every user in the workspace.
func (s *Storage) FetchWorkspaceUsers(ctx context.Context, wsID int64) ([]domain.User, error) {
	rows, _ := s.pool.Query(ctx, `
		SELECT id, ws_id, fullname, email, password_hash, created_at
		FROM users
		WHERE ws_id = $1
	`, wsID)
	return pgx.CollectRows(rows, pgx.RowToStructByName[domain.User])
}

func (s *Storage) FindWorkspaceByName(ctx context.Context, name string) (*domain.Workspace, error) {
	rows, _ := s.pool.Query(ctx, `
		SELECT id, name, owner_id, created_at
		FROM workspaces
		WHERE name = $1
	`, name)
	ws, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[domain.Workspace])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (s *Storage) FindWorkspaceByID(ctx context.Context, wsID int64) (*domain.Workspace, error) {
	rows, _ := s.pool.Query(ctx, `
		SELECT id, name, owner_id, created_at
		FROM workspaces
		WHERE id = $1
	`, wsID)
	ws, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[domain.Workspace])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (s *Storage) SaveWorkspace(ctx context.Context, ws *domain.Workspace) (domain.Workspace, error) {
	rows, _ := s.pool.Query(ctx, `
		INSERT INTO workspaces (name, owner_id)
		VALUES ($1, $2)
		RETURNING id, name, owner_id, created_at
	`, ws.Name, ws.OwnerID)
	return pgx.CollectOneRow(rows, pgx.RowToStructByName[domain.Workspace])
}
