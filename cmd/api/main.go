package main

import (
	"context"
	"fmt"
	"log"

	"relay-chat/config"
	"relay-chat/internal/access"
	"relay-chat/internal/handler"
	relayredis "relay-chat/internal/redis"
	"relay-chat/internal/registry"
	"relay-chat/internal/repository"
	"relay-chat/internal/server"
	"relay-chat/internal/services"
	"relay-chat/internal/storage"
	"relay-chat/internal/websocket"
	"relay-chat/pkg/database"
	"relay-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.LoadConfig()
	gin.SetMode(cfg.AppMode)

	l := logger.New(cfg.AppMode)
	defer l.Sync()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	userRepo := repository.NewUserRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var blobs services.ObjectStore
	if cfg.S3Bucket != "" {
		s3Client, err := storage.NewClient(ctx, storage.S3Config{
			Region:     cfg.S3Region,
			Bucket:     cfg.S3Bucket,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Endpoint:   cfg.S3Endpoint,
			PresignTTL: cfg.S3PresignTTL,
		})
		if err != nil {
			log.Fatalf("s3: %v", err)
		}
		blobs = s3Client
	}

	var presence *relayredis.PresenceStore
	if redisClient, err := relayredis.NewClient(cfg); err != nil {
		l.Warnf("redis unavailable, presence disabled: %v", err)
	} else {
		presence = relayredis.NewPresenceStore(redisClient, cfg.PresenceTTL)
	}

	reg := registry.New()
	hub := websocket.NewHub()
	go hub.Run(ctx)

	authorizer := access.NewAuthorizer(convRepo)
	authService := services.NewAuthService(cfg.JWTSecret)
	ingest := services.NewIngestService(db, convRepo, msgRepo, userRepo, authorizer, hub, blobs, l)
	membership := services.NewMembershipService(convRepo, msgRepo, userRepo, reg, hub, blobs, l)

	var presenceDep services.Presence
	var markerDep websocket.PresenceMarker
	if presence != nil {
		presenceDep = presence
		markerDep = presence
	}
	chatList := services.NewChatListService(convRepo, msgRepo, userRepo, presenceDep, blobs, l)

	router := server.NewRouter(server.Deps{
		Auth:          authService,
		Conversations: handler.NewConversationHandler(membership, chatList),
		Messages:      handler.NewMessageHandler(ingest),
		Socket:        websocket.NewHandler(authService, hub, reg, ingest, convRepo, markerDep, l),
		Log:           l,
	})

	l.Infof("starting server on port %s", cfg.AppPort)
	if err := router.Run(fmt.Sprintf(":%s", cfg.AppPort)); err != nil {
		log.Fatalf("server: %v", err)
	}
}
