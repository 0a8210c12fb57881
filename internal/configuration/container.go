package configuration

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/ViseonDev/afghan-bazar-sub000/internal/auth"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/cache"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/db"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/directory"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/handler"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/hub"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/model"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/repo"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/service"
)

type Container struct {
	ChatHandler    handler.ChatHandler
	MonitorHandler handler.MonitorHandler
	Verifier       auth.Verifier
	Hub            *hub.Hub
	Config         Config
	Logger         *zap.Logger

	// private - for cleanup
	mongoClient *mongo.Database
	cache       cache.Cache
}

func BuildContainer() (*Container, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if config.Auth.Secret == "" {
		return nil, fmt.Errorf("auth secret is required (config or AUTH_SECRET)")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	con, err := db.OpenConnection(config.ChatDatabase.Uri, config.ChatDatabase.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	var summaryCache cache.Cache = cache.Noop{}
	if config.Redis.Url != "" {
		redisCache, err := cache.NewRedisCache(config.Redis.Url)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		summaryCache = redisCache
	}

	messageStore := db.NewRepository[model.Message](con, config.ChatDatabase.MessagesCollection)
	summaryStore := db.NewRepository[model.ConversationSummary](con, config.ChatDatabase.SummariesCollection)

	messageRepo := repo.NewMessageRepository(con, messageStore, config.ChatDatabase.CountersCollection, logger)
	summaryRepo := repo.NewSummaryRepository(summaryStore, logger)
	stores := directory.NewMongoStores(con, config.ChatDatabase.StoresCollection, logger)
	verifier := auth.NewJWTVerifier(config.Auth.Secret)

	chatService := service.NewChatService(messageRepo, summaryRepo, stores, summaryCache, logger)

	// Create Hub around the chat service, then close the loop: the service
	// fans out through the hub once a write is durable.
	chatHub := hub.NewHub(chatService, logger)
	chatService.SetBroadcaster(chatHub)

	chatHandler := handler.NewChatHandler(chatService)
	monitorHandler := handler.NewMonitorHandler(hub.NewMonitorService(chatHub))

	return &Container{
		ChatHandler:    chatHandler,
		MonitorHandler: monitorHandler,
		Verifier:       verifier,
		Hub:            chatHub,
		Config:         *config,
		Logger:         logger,
		mongoClient:    con,
		cache:          summaryCache,
	}, nil
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	// Stop the hub first (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	// Sync logger
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	if c.cache != nil {
		_ = c.cache.Close()
	}

	// Close MongoDB connection pool
	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	return nil
}
