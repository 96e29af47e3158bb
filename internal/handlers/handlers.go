package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tasvirbox/api/internal/config"
	"tasvirbox/api/internal/middleware"
	"tasvirbox/api/internal/notify"
	"tasvirbox/api/internal/repository"
	"tasvirbox/api/internal/service"
	"tasvirbox/api/internal/storage"
)

type HandlerSet struct {
	log      zerolog.Logger
	cfg      *config.AppConfig
	accounts *service.AccountService
	sessions *service.SessionService
	guests   *service.GuestService
	db       *pgxpool.Pool
	cache    *redis.Client
}

func NewHandlerSet(
	log zerolog.Logger,
	db *pgxpool.Pool,
	cache *redis.Client,
	objects *storage.ObjectStore,
	sender notify.Sender,
	cfg *config.AppConfig,
) HandlerSet {
	store := repository.NewStore(db)
	sessionSvc := service.NewSessionService(store, cfg.Session, log)
	throttle := service.NewLoginThrottle(cfg.Throttle, log)
	accountSvc := service.NewAccountService(store, sessionSvc, throttle, sender, cache, cfg, log)
	guestSvc := service.NewGuestService(store, objects, cfg.Guest, log)

	return HandlerSet{
		log:      log,
		cfg:      cfg,
		accounts: accountSvc,
		sessions: sessionSvc,
		guests:   guestSvc,
		db:       db,
		cache:    cache,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", h.RegisterAccount)
		auth.POST("/verify", h.VerifyCode)
		auth.POST("/resend", h.ResendCode)
		auth.POST("/login", h.Login)

		protected := v1.Group("/auth")
		protected.Use(middleware.Auth(h.sessions))
		protected.POST("/logout", h.Logout)
		protected.GET("/me", h.Me)

		guest := v1.Group("/guest")
		guest.Use(middleware.GuestFingerprint())
		guest.GET("/limit", h.GuestLimit)
		guest.POST("/upload", h.GuestUpload)
	}
}
