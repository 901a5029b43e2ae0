package bootstrap

import (
	"context"
	"log"

	"tripchat-be/internal/config"
	"tripchat-be/internal/controller"
	"tripchat-be/internal/handler"
	"tripchat-be/internal/pkg/logger"
	"tripchat-be/internal/repository/unitofwork"
	"tripchat-be/internal/service"
	"tripchat-be/internal/websocket"
	"tripchat-be/pkg/notify"

	pktNats "tripchat-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ChatController controller.IChatController

	// Background services (exposed for main.go to run)
	ConsumerService service.IConsumerService

	// WebSockets
	ChatStreamHandler *handler.ChatStreamHandler
	WebSocketHub      *websocket.Hub
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 2.5 Infrastructure
	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	// WebSocket hub
	wsLogger := logger.NewIsolatedLogger("logs/chat_stream.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// 3. Services
	publisherService := service.NewPublisherService(cfg.Chat.FanoutTopic, pubSub)
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.Chat.FanoutTopic,
		uowFactory,
		rdb,
		wsHub, // Hub implements ChatDelivery
		sysLogger,
	)

	chatService := service.NewChatService(
		uowFactory,
		publisherService,
		natsPub,
		rdb,
		sysLogger,
	)

	// Notification dispatcher (durable JetStream worker)
	if natsSub != nil {
		dispatcher := notify.NewDispatcher(natsSub, sysLogger)
		go dispatcher.Start()
	}

	// Stream handler
	streamHandler := handler.NewChatStreamHandler(chatService, wsHub, wsLogger)

	// 4. Controllers
	return &Container{
		ChatController:    controller.NewChatController(chatService),
		ChatStreamHandler: streamHandler,
		WebSocketHub:      wsHub,
		ConsumerService:   consumerService,
	}
}
