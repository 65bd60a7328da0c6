package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-service/internal/cmd/client"
	"github.com/chirino/conversation-service/internal/cmd/migrate"
	"github.com/chirino/conversation-service/internal/cmd/serve"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func main() {
	// A local .env fills in settings that are not already in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("Ignoring unreadable .env file", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "conversation-service",
		Usage: "Direct and group conversations with unread counts and a realtime relay",
		Commands: []*cli.Command{
			serve.Command(),
			migrate.Command(),
			client.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
