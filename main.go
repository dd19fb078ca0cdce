package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/sitecraft/sitecraft/internal/app"
	"github.com/sitecraft/sitecraft/internal/cli"
	"github.com/sitecraft/sitecraft/internal/logging"
	"github.com/sitecraft/sitecraft/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// A .env file is optional; real env vars still apply.
		fmt.Fprintln(os.Stderr, "no .env file loaded")
	}

	logger := logging.NewStdoutLogger("sitecraft")

	args, err := cli.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "usage: %v\n", err)
		os.Exit(2)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is required")
		os.Exit(2)
	}

	appCfg := app.DefaultConfig()
	appCfg.StorageRoot = args.StorageRoot
	appCfg.ProviderBaseURL = args.ProviderURL
	appCfg.PublisherCfg.BannerScriptURL = os.Getenv("BANNER_SCRIPT_URL")
	if args.Concurrency > 0 {
		appCfg.PublisherCfg.MaxConcurrency = args.Concurrency
	}

	srv, err := server.NewServer(server.Config{
		ListenAddr: args.Addr,
		JWTSecret:  jwtSecret,
		AppConfig:  appCfg,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to start", logging.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}
	defer srv.Close()

	logger.Info("listening", logging.Field{Key: "addr", Value: args.Addr})
	if err := srv.HTTPServer().ListenAndServe(); err != nil {
		logger.Error("server stopped", logging.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}
}
