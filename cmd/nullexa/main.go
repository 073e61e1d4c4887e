// Nullexa — terminal chat client.
//
// Connects to a Nullexa coordinator, negotiates peer-to-peer data channels
// for direct chats, and relays room traffic through the coordinator. This
// binary is only the thin rendering/command layer; all connection
// orchestration lives in internal/client and below.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/nullexa/nullexa/internal/client"
	"github.com/nullexa/nullexa/internal/config"
)

var version = "dev"

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	fs := pflag.NewFlagSet("nullexa", pflag.ContinueOnError)
	var (
		serverURL = fs.StringP("server-url", "s", "ws://localhost:3000/ws", "coordinator websocket URL")
		uploadURL = fs.String("upload-url", "", "coordinator upload base URL (derived from --server-url when empty)")
		username  = fs.StringP("username", "u", "", "display name to request after connecting")
		logLevel  = fs.StringP("log-level", "l", "warn", "log level")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse log level")
	}
	logger = logger.Level(lvl)

	cfg := config.Config{
		ServerURL: *serverURL,
		UploadURL: *uploadURL,
		Username:  *username,
		LogLevel:  *logLevel,
	}
	if err := cfg.Normalize(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pterm.DefaultHeader.Printfln("Nullexa — v%s", version)
	pterm.Printfln("Coordinator: %s", cfg.ServerURL)
	pterm.Println()

	ui := newUI()
	c := client.New(client.Config{
		ServerURL: cfg.ServerURL,
		UploadURL: cfg.UploadURL,
		Username:  cfg.Username,
		Logger:    &logger,
	}, ui.events())
	ui.client = c

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Run(ctx)
	}()

	go ui.commandLoop(ctx, stop)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			pterm.Error.Printfln("connection lost: %v", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		_ = c.Close()
	}

	pterm.Info.Println("disconnected")
}
