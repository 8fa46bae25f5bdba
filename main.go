package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Naveen-6087/sui-tma/pkg/config"
	"github.com/Naveen-6087/sui-tma/pkg/engine"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up context with cancellation on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create the lifecycle engine
	service, err := engine.NewService(cfg)
	if err != nil {
		log.Fatalf("Failed to create lifecycle engine: %v", err)
	}

	// Set up signal handling for graceful shutdown
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		log.Println("Received termination signal, shutting down gracefully...")
		cancel()
	}()

	// Start the engine
	log.Println("Starting the intent lifecycle engine...")
	service.Start(ctx)
}
