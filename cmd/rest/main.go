package main

import (
	"context"
	"log"

	"surgical-review-be/internal/bootstrap"
	"surgical-review-be/internal/config"
	"surgical-review-be/internal/server"
	"surgical-review-be/internal/tracer"
)

func main() {
	// 0. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()
	cfg.MustValidate()

	// 2. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(cfg)

	// 3. Start Background Services
	go container.WebSocketHub.Run()
	go func() {
		log.Println("Background: Starting session event relay...")
		if err := container.RelayService.Consume(context.Background()); err != nil {
			log.Printf("Background relay error: %v", err)
		}
	}()

	// 4. Initialize Server
	srv := server.New(cfg, container)

	// 5. Run Server
	log.Fatal(srv.Run())
}
