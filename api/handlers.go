package api

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"chat-server/domain"
)

// Storage is everything the handlers need from the persistence layer.
type Storage interface {
	FetchChat(ctx context.Context, chatID int64) (*domain.Chat, error)
	FetchUserChats(ctx context.Context, userID, wsID int64) ([]domain.Chat, error)
	SaveChat(ctx context.Context, chat *domain.Chat) (domain.Chat, error)
	DeleteChat(ctx context.Context, chatID int64) (domain.Chat, error)
	StoreMsg(ctx context.Context, msg *domain.Msg) (domain.Msg, error)
	FetchMessages(ctx context.Context, chatID, lastID, limit int64) ([]domain.Msg, error)
	MembersExist(ctx context.Context, members []int64) (bool, error)
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUserByID(ctx context.Context, userID int64) (*domain.User, error)
	SaveUser(ctx context.Context, user *domain.User) (domain.User, error)
	FetchWorkspaceUsers(ctx context.Context, wsID int64) ([]domain.User, error)
	FindWorkspaceByName(ctx context.Context, name string) (*domain.Workspace, error)
	FindWorkspaceByID(ctx context.Context, wsID int64) (*domain.Workspace, error)
	SaveWorkspace(ctx context.Context, ws *domain.Workspace) (domain.Workspace, error)
}

// TokenSigner issues access tokens after a successful signin or signup.
type TokenSigner interface {
	Authenticator
	Sign(user *domain.User) (string, error)
}

type errorOutput struct {
	Error string `json:"error"`
}

type tokenOutput struct {
	Token string `json:"token"`
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth TokenSigner, events Notifier, files *FileStore) {
	g := e.Group("/api")
	g.POST("/signup", signup(store, auth))
	g.POST("/signin", signin(store, auth))

	authed := g.Group("", TokenMiddleware(auth))
	authed.GET("/users", listUsers(store))
	authed.GET("/userinfo", userInfo(store))
	authed.GET("/chats", listChats(store))
	authed.POST("/chats", createChat(store))
	authed.POST("/upload", upload(files))
	authed.GET("/events", streamEvents(events))

	chat := authed.Group("/chats/:id", ChatGuard(store))
	chat.GET("", getChat())
	chat.PATCH("", updateChat(store))
	chat.DELETE("", deleteChat(store))
	chat.POST("", sendMsg(store))
	chat.GET("/messages", listMessages(store))
}

type signupInput struct {
	Fullname  string `json:"fullname"`
	Email     string `json:"email"`
	Workspace string `json:"workspace"`
	Password  string `json:"password"`
}

func signup(store Storage, auth TokenSigner) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var input signupInput
		if err := c.Bind(&input); err != nil {
			return c.JSON(http.StatusBadRequest, errorOutput{Error: "invalid body"})
		}
		if input.Fullname == "" || input.Email == "" || input.Workspace == "" || input.Password == "" {
			return c.JSON(http.StatusBadRequest, errorOutput{Error: "fullname, email, workspace and password are required"})
		}
		existing, err := store.FindUserByEmail(ctx, input.Email)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorOutput{Error: "system error"})
		}
		if existing != nil {
			return c.JSON(http.StatusConflict, errorOutput{Error: "email already exist"})
		}
		ws, err := store.FindWorkspaceByName(ctx, input.Workspace)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorOutput{Error: "system error"})
		}
		if ws == nil {
			created, err := store.SaveWorkspace(ctx, &domain.Workspace{Name: input.Workspace})
			if err != nil {
				c.Logger().Error(err)
				return c.JSON(http.StatusInternalServerError, errorOutput{Error: "system error"})
			}
			ws = &created
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorOutput{Error: "system error"})
		}
		user, err := store.SaveUser(ctx, &domain.User{
			WsID:         ws.ID,
			Fullname:     input.Fullname,
			Email:        input.Email,
			PasswordHash: string(hash),
		})
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorOutput{Error: "system error"})
		}
		token, err := auth.Sign(&user)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorOutput{Error: "system error"})
		}
		return c.JSON(http.StatusCreated, tokenOutput{Token: token})
	}
}

type signinInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func signin(store Storage, auth TokenSigner) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var input signinInput
		if err := c.Bind(&input); err != nil {
			return c.JSON(http.StatusBadRequest, errorOutput{Error: "invalid body"})
		}
		user, err := store.FindUserByEmail(ctx, input.Email)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorOutput{Error: "system error"})
		}
		if user == nil {
			return c.JSON(http.StatusNotFound, errorOutput{Error: "not found: " + input.Email})
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
			return c.JSON(http.StatusUnauthorized, errorOutput{Error: "invalid credentials"})
		}
		token, err := auth.Sign(user)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorOutput{Error: "system error"})
		}
		return c.JSON(http.StatusOK, tokenOutput{Token: token})
	}
}

type chatUser struct {
	ID      int64  `json:"id"`
	Display string `json:"display"`
}

func listUsers(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := claimsFrom(c)
		users, err := store.FetchWorkspaceUsers(c.Request().Context(), claims.WsID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorOutput{Error: "system error"})
		}
		out := make([]chatUser, 0, len(users))
		for _, u := range users {
			out = append(out, chatUser{ID: u.ID, Display: u.Fullname})
		}
		return c.JSON(http.StatusOK, out)
	}
}

type userInfoOutput struct {
	ID        int64  `json:"id"`
	Display   string `json:"display"`
	Workspace string `json:"workspace"`
}

func userInfo(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		claims := claimsFrom(c)
		user, err := store.FindUserByID(ctx, claims.UserID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorOutput{Error: "system error"})
		}
		if user == nil {
			return c.JSON(http.StatusNotFound, errorOutput{Error: strconv.FormatInt(claims.UserID, 10)})
		}
		ws, err := store.FindWorkspaceByID(ctx, user.WsID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorOutput{Error: "system error"})
		}
		if ws == nil {
			return c.JSON(http.StatusNotFound, errorOutput{Error: "workspace not found"})
		}
		return c.JSON(http.StatusOK, userInfoOutput{ID: user.ID, Display: user.Fullname, Workspace: ws.Name})
	}
}

func listChats(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := claimsFrom(c)
		chats, err := store.FetchUserChats(c.Request().Context(), claims.UserID, claims.WsID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorOutput{Error: "system error"})
		}
		return c.JSON(http.StatusOK, chats)
	}
}

type chatInput struct {
	Name     *string         `json:"name"`
	ChatType domain.ChatType `json:"chat_type"`
	Members  []int64         `json:"members"`
}

func createChat(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		claims := claimsFrom(c)
		var input chatInput
		if err := c.Bind(&input); err != nil {
			return c.JSON(http.StatusBadRequest, errorOutput{Error: "invalid body"})
		}
		if !input.ChatType.Valid() {
			return c.JSON(http.StatusBadRequest, errorOutput{Error: "unknown chat type"})
		}
		if !containsMember(input.Members, claims.UserID) {
			return c.JSON(http.StatusBadRequest, errorOutput{Error: "current user should be in members"})
		}
		ok, err := store.MembersExist(ctx, input.Members)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorOutput{Error: "system error"})
		}
		if !ok {
			return c.JSON(http.StatusBadRequest, errorOutput{Error: "members should exist"})
		}
		chat, err := store.SaveChat(ctx, &domain.Chat{
			WsID:     claims.WsID,
			Name:     input.Name,
			ChatType: input.ChatType,
			Members:  input.Members,
			Status:   domain.ChatStatusActive,
		})
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorOutput{Error: "system error"})
		}
		return c.JSON(http.StatusCreated, chat)
	}
}

func getChat() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, chatFrom(c))
	}
}

func updateChat(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		var input chatInput
		if err := c.Bind(&input); err != nil {
			return c.JSON(http.StatusBadRequest, errorOutput{Error: "invalid body"})
		}
		if !input.ChatType.Valid() {
			return c.JSON(http.StatusBadRequest, errorOutput{Error: "unknown chat type"})
		}
		if len(input.Members) == 0 {
			return c.JSON(http.StatusBadRequest, errorOutput{Error: "members must not be empty"})
		}
		chat := chatFrom(c)
		chat.Name = input.Name
		chat.ChatType = input.ChatType
		chat.Members = input.Members
		updated, err := store.SaveChat(c.Request().Context(), chat)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorOutput{Error: "system error"})
		}
		return c.JSON(http.StatusOK, updated)
	}
}

func deleteChat(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		chat := chatFrom(c)
		deleted, err := store.DeleteChat(c.Request().Context(), chat.ID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorOutput{Error: "system error"})
		}
		return c.JSON(http.StatusOK, deleted)
	}
}

type sendMsgInput struct {
	Content string `json:"content"`
}

func sendMsg(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := claimsFrom(c)
		var input sendMsgInput
		if err := c.Bind(&input); err != nil {
			return c.JSON(http.StatusBadRequest, errorOutput{Error: "invalid body"})
		}
		if input.Content == "" {
			return c.JSON(http.StatusBadRequest, errorOutput{Error: "content must not be empty"})
		}
		chat := chatFrom(c)
		msg, err := store.StoreMsg(c.Request().Context(), &domain.Msg{
			ChatID:   chat.ID,
			SenderID: claims.UserID,
			Content:  input.Content,
		})
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorOutput{Error: "system error"})
		}
		return c.JSON(http.StatusCreated, msg)
	}
}

const defaultMessagePageSize = 10

func listMessages(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		chat := chatFrom(c)
		lastID := int64(math.MaxInt64)
		if v := c.QueryParam("last_id"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n <= 0 {
				return c.JSON(http.StatusBadRequest, errorOutput{Error: "invalid last_id"})
			}
			lastID = n
		}
		limit := int64(defaultMessagePageSize)
		if v := c.QueryParam("limit"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n <= 0 || n > 100 {
				return c.JSON(http.StatusBadRequest, errorOutput{Error: "invalid limit"})
			}
			limit = n
		}
		msgs, err := store.FetchMessages(c.Request().Context(), chat.ID, lastID, limit)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorOutput{Error: "system error"})
		}
		return c.JSON(http.StatusOK, msgs)
	}
}
