package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"paul-envs/internal/config"
)

func main() {
	cfg := config.Load()

	// Configure slog; --debug raises the level once flags are parsed
	var logLevel slog.LevelVar
	if cfg.Debug {
		logLevel.Set(slog.LevelDebug)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel})
	slog.SetDefault(slog.New(handler))

	// Create context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app := newApp(cfg, os.Stdout)
	err := newRootCmd(app, &logLevel).ExecuteContext(ctx)
	app.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
