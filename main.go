package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	snaptalk "github.com/piyawat22/snaptalk/app"
)

func main() {
	// .env is optional; the config layer falls back to defaults.
	godotenv.Load()

	ctx, _ := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)

	app := snaptalk.New(ctx, nil)
	app.Start()
}
