package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"ichatgo/backend/internal/api/handler"
	"ichatgo/backend/internal/completion"
	"ichatgo/backend/internal/config"
	"ichatgo/backend/internal/models"
	"ichatgo/backend/internal/session"
	"ichatgo/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies(cfg config.Config) (*gorm.DB, *redis.Client) {
	dsn := cfg.DBDSN
	if dsn == "" {
		dsn = "host=localhost user=user password=password dbname=ichatgodb port=5432 sslmode=disable"
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect PostgreSQL")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect Redis")
	}

	if err := db.AutoMigrate(&models.Room{}, &models.Turn{}); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	log.Info().Msg("database and Redis connections established, migrations complete")
	return db, rdb
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file loaded")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		// Exchanges will fail visibly in the transcript until the
		// configuration is fixed and refreshed.
		log.Warn().Err(err).Msg("configuration incomplete")
	}

	db, rdb := setupDependencies(cfg)
	s := storage.NewStorageService(db, rdb)

	factory := func(c config.Config) completion.Client {
		return completion.NewOpenAIClient(c.APIKey, c.APIHost, c.Timeout())
	}
	sess := session.NewSession(cfg, s, factory)
	go sess.Run()

	initialRoom, err := s.MostRecentRoomID()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to look up the most recent room")
	}
	activeRoom, err := sess.SwitchRoom(initialRoom)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open the initial room")
	}
	log.Info().Str("room_id", activeRoom).Msg("session ready")

	r := gin.Default()
	h := handler.NewHandler(sess, s, cfg)

	r.GET("/token", h.GetToken)
	r.GET("/ws", h.ServeWebSocket)

	authorized := r.Group("/", h.RequireAuth)
	authorized.GET("/rooms", h.ListRooms)
	authorized.POST("/rooms", h.CreateRoom)
	authorized.POST("/rooms/:id/switch", h.SwitchRoom)
	authorized.PUT("/rooms/:id", h.UpdateRoom)
	authorized.DELETE("/rooms/:id", h.DeleteRoom)
	authorized.GET("/rooms/:id/messages", h.GetMessages)
	authorized.DELETE("/rooms/:id/messages/:key", h.DeleteMessage)
	authorized.DELETE("/rooms/:id/messages", h.DeleteAllMessages)
	authorized.POST("/chat", h.Submit)
	authorized.POST("/chat/resubmit", h.Resubmit)
	authorized.POST("/config/refresh", h.RefreshConfiguration)

	server := &http.Server{
		Addr:           cfg.ListenOn,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	log.Info().Str("addr", cfg.ListenOn).Msg("starting iChatGo backend")
	if err := server.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
