package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/taskvisor"
)

func runServe(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}

	if configPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=config.toml or provide as argument")
	}

	// Load unified config once
	cfg, err := taskvisor.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	slog.SetDefault(cfg.Log.NewSlogger())

	if err := taskvisor.RegisterMetricsDefault(); err != nil {
		fmt.Printf("Warning: failed to register metrics: %v\n", err)
	}

	engine, err := taskvisor.NewEngine(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	// Built-in executor so config-declared schedules of type "command" run
	// without embedding code.
	if err := engine.Register("command", taskvisor.CommandExecutor(engine.Supervisor)); err != nil {
		return fmt.Errorf("failed to register command executor: %w", err)
	}

	engine.Start(context.Background())

	server, err := taskvisor.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, engine)
	if err != nil {
		engine.Stop()
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	fmt.Printf("Starting taskvisor server on %s%s\n", cfg.Server.Listen, cfg.Server.BasePath)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	if err := server.Close(); err != nil {
		fmt.Printf("Warning: server close: %v\n", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return engine.Close(shutdownCtx)
}
