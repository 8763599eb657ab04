package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"chat-server/api"
	"chat-server/notif"
	"chat-server/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("missing database config")
	}
	store, err := storage.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer store.Close()

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	redisOpts, err := redisOptions(redisConn)
	if err != nil {
		log.Fatalf("invalid REDIS_CONNECTION_STRING: %v", err)
	}
	rc := redis.NewClient(redisOpts)
	cacheTTL := time.Hour
	if v := os.Getenv("CHATS_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid CHATS_CACHE_TTL: %v", err)
		}
		cacheTTL = d
	}
	cached := storage.NewCache(store, rc, cacheTTL)

	auth := newAuth()

	uploadDir := os.Getenv("UPLOAD_BASE_DIR")
	if uploadDir == "" {
		uploadDir = "uploads"
	}
	files := api.NewFileStore(uploadDir)

	notifSvc := notif.New(notif.PostgresFeed(dbURL))
	if err := notifSvc.Listen(ctx); err != nil {
		log.Fatalf("notif: %v", err)
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, cached, auth, eventSource{svc: notifSvc}, files)

	listenAddr := ":6688"
	if val, ok := os.LookupEnv("CHAT_SERVER_PORT"); ok {
		listenAddr = ":" + val
	}

	go func() {
		if err := e.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
	<-notifSvc.Done()
}

// redisOptions accepts either a redis URL (redis://...) or a bare host:port
// address. A string that looks like a URL but fails to parse is an error, not
// a fallback, so typos surface at startup.
func redisOptions(connStr string) (*redis.Options, error) {
	if !strings.Contains(connStr, "://") {
		return &redis.Options{Addr: connStr}, nil
	}
	return redis.ParseURL(connStr)
}

// newAuth picks the token mode from the environment: local Ed25519 keys for
// self-issued tokens, or a remote JWKS for externally issued ones.
func newAuth() *api.Auth {
	privPath := os.Getenv("JWT_PRIVATE_KEY")
	pubPath := os.Getenv("JWT_PUBLIC_KEY")
	if privPath != "" && pubPath != "" {
		priv, err := os.ReadFile(privPath)
		if err != nil {
			log.Fatalf("read private key: %v", err)
		}
		pub, err := os.ReadFile(pubPath)
		if err != nil {
			log.Fatalf("read public key: %v", err)
		}
		auth, err := api.NewAuth(priv, pub)
		if err != nil {
			log.Fatalf("auth: %v", err)
		}
		return auth
	}
	if jwksURL := os.Getenv("AUTH_JWKS_URL"); jwksURL != "" {
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		return api.NewAuthJWKS(jwks, os.Getenv("AUTH_JWKS_AUDIENCE"), os.Getenv("AUTH_JWKS_ISSUER"))
	}
	log.Fatal("missing auth config")
	return nil
}

type eventSource struct {
	svc *notif.Service
}

func (s eventSource) Register(userID int64) api.EventStream {
	return s.svc.Register(userID)
}
