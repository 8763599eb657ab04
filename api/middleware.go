package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"chat-server/domain"
)

const (
	claimsContextKey = "claims"
	chatContextKey   = "chat"
)

// Authenticator turns a raw token into verified claims.
type Authenticator interface {
	Verify(tokenStr string) (*Claims, error)
}

// TokenMiddleware authenticates requests from the Authorization header or,
// for EventSource clients that cannot set headers, a token query parameter.
func TokenMiddleware(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := ""
			if h := c.Request().Header.Get(echo.HeaderAuthorization); h != "" {
				parts := strings.SplitN(h, " ", 2)
				if len(parts) != 2 || parts[0] != "Bearer" {
					return c.JSON(http.StatusUnauthorized, errorOutput{Error: "bad authorization header"})
				}
				token = parts[1]
			} else if q := c.QueryParam("token"); q != "" {
				token = q
			} else {
				return c.JSON(http.StatusBadRequest, errorOutput{Error: "need token"})
			}
			claims, err := auth.Verify(token)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorOutput{Error: "verify token failed: " + err.Error()})
			}
			c.Set(claimsContextKey, claims)
			return next(c)
		}
	}
}

func claimsFrom(c echo.Context) *Claims {
	claims, _ := c.Get(claimsContextKey).(*Claims)
	return claims
}

// ChatGuard rejects access to chats the caller is not a member of. Deleted
// chats and chats in other workspaces look like missing ones on purpose.
func ChatGuard(store Storage) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := claimsFrom(c)
			chatID, err := strconv.ParseInt(c.Param("id"), 10, 64)
			if err != nil {
				return c.JSON(http.StatusBadRequest, errorOutput{Error: "invalid chat id"})
			}
			chat, err := store.FetchChat(c.Request().Context(), chatID)
			if err != nil {
				c.Logger().Error(err)
				return c.JSON(http.StatusInternalServerError, errorOutput{Error: "system error"})
			}
			if chat == nil || chat.Status == domain.ChatStatusDeleted ||
				chat.WsID != claims.WsID || !containsMember(chat.Members, claims.UserID) {
				return c.JSON(http.StatusNotFound, errorOutput{Error: "chat not found"})
			}
			c.Set(chatContextKey, chat)
			return next(c)
		}
	}
}

func chatFrom(c echo.Context) *domain.Chat {
	chat, _ := c.Get(chatContextKey).(*domain.Chat)
	return chat
}

func containsMember(members []int64, userID int64) bool {
	for _, id := range members {
		if id == userID {
			return true
		}
	}
	return false
}
