package di

import (
	"time"

	"peer-chat-app/backend/internal/chat"
	"peer-chat-app/backend/internal/service"
	"peer-chat-app/backend/internal/ws"
	"peer-chat-app/backend/pkg/jwt"
	"peer-chat-app/backend/pkg/logger"
	"peer-chat-app/backend/shared/observability"
	sharedredis "peer-chat-app/backend/shared/redis"

	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	DB          *gorm.DB
	Logger      *logger.Logger
	JWTService  *jwt.Service
	UserService *service.UserService
	Registry    *chat.Registry
	History     chat.HistoryStore
	Router      *chat.Router
	Presence    *chat.Presence
	Redis       *sharedredis.RedisClient
	Metrics     *observability.ChatMetrics
	Hub         *ws.Hub
}

// Config holds the configuration for the container
type Config struct {
	LoggerConfig   logger.Config
	JWTSecret      string
	JWTExpiry      time.Duration
	RedisAddr      string
	PresenceTTL    time.Duration
	DurableHistory bool
	EnablePresence bool
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		LoggerConfig:   logger.DefaultConfig(),
		JWTSecret:      "",
		JWTExpiry:      0, // Use default
		RedisAddr:      "localhost:6379",
		PresenceTTL:    2 * time.Minute,
		DurableHistory: true,
		EnablePresence: true,
	}
}

// New creates a new dependency injection container. db may be nil when
// durable history is disabled; everything then runs in memory.
func New(db *gorm.DB, config *Config) (*Container, error) {
	if config == nil {
		config = DefaultConfig()
	}

	log := logger.New(config.LoggerConfig)

	jwtService := jwt.NewService(config.JWTSecret, config.JWTExpiry)
	userService := service.NewUserService(db, jwtService)

	var history chat.HistoryStore
	if config.DurableHistory && db != nil {
		history = chat.NewGormHistory(db)
	} else {
		history = chat.NewMemoryHistory()
	}

	var redisClient *sharedredis.RedisClient
	var presence *chat.Presence
	if config.EnablePresence {
		redisClient = sharedredis.NewRedisClientWithAddr(config.RedisAddr)
		presence = chat.NewPresence(redisClient, config.PresenceTTL)
	}

	metrics := observability.NewChatMetrics()
	registry := chat.NewRegistry()
	router := chat.NewRouter(registry, history, log, metrics)
	hub := ws.NewHub(registry, router, history, presence, metrics, log)

	return &Container{
		DB:          db,
		Logger:      log,
		JWTService:  jwtService,
		UserService: userService,
		Registry:    registry,
		History:     history,
		Router:      router,
		Presence:    presence,
		Redis:       redisClient,
		Metrics:     metrics,
		Hub:         hub,
	}, nil
}
