package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/contentlib/internal/app"
)

func main() {
	application, err := app.New()
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Start(); err != nil {
		application.Log.Error("Failed to start workers", "error", err)
		return
	}

	application.Log.Info("Server listening", "port", application.Cfg.Port)
	if err := application.Run(ctx); err != nil {
		application.Log.Error("Server failed", "error", err)
	}
}
