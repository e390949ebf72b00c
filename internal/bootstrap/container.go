package bootstrap

import (
	"time"

	"surgical-review-be/internal/config"
	"surgical-review-be/internal/controller"
	"surgical-review-be/internal/pkg/logger"
	"surgical-review-be/internal/repository/memory"
	"surgical-review-be/internal/service"
	"surgical-review-be/internal/websocket"
	"surgical-review-be/pkg/llm"
	"surgical-review-be/pkg/llm/openai"
	"surgical-review-be/pkg/mediaparse"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type Container struct {
	// Controllers
	SessionController controller.ISessionController

	// Background services (exposed for main.go to run)
	RelayService service.IRelayService

	// WebSockets
	WebSocketHub *websocket.Hub
}

func NewContainer(cfg *config.Config) *Container {
	// 1. Core facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	eventLogger := logger.NewIsolatedLogger(cfg.App.EventLogFilePath)

	// 2. Event bus. Buffered so a slow websocket relay never blocks a store
	// dispatch mid-mutation.
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermillLogger,
	)

	// 3. Collaborator clients
	mediaClient := mediaparse.NewClient(
		cfg.Media.BaseURL,
		time.Duration(cfg.Media.RequestTimeoutMs)*time.Millisecond,
	)
	llmProvider := openai.NewOpenAIProvider(
		cfg.Llm.BaseURL,
		cfg.Llm.APIKey,
		cfg.Llm.Model,
	)

	// 4. Session layer
	sessionRepo := memory.NewSessionRepository(time.Duration(cfg.Session.TTLMinutes) * time.Minute)
	sessionService := service.NewSessionService(
		sessionRepo,
		mediaClient,
		llmProvider,
		pubSub,
		sysLogger,
		time.Duration(cfg.Poll.IntervalMs)*time.Millisecond,
		cfg.Poll.MaxAttempts,
		llm.WithTemperature(cfg.Llm.Temperature),
	)

	// 5. Event delivery
	hub := websocket.NewHub(eventLogger)
	relayService := service.NewRelayService(pubSub, hub, eventLogger)

	return &Container{
		SessionController: controller.NewSessionController(sessionService, hub, cfg.Media),
		RelayService:      relayService,
		WebSocketHub:      hub,
	}
}
