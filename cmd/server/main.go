package main

import (
	"context"
	"net/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tomgroenwoldt/new-keyglide/internal/app"
	"github.com/tomgroenwoldt/new-keyglide/internal/config"
	"github.com/tomgroenwoldt/new-keyglide/internal/httpapi"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	// A missing .env is fine, the config falls back to defaults.
	if err := godotenv.Load(); err != nil {
		zap.S().Debugw("no .env file loaded", "error", err)
	}
	cfg := config.Load()

	a := app.New(cfg)
	go a.Run(context.Background())

	handler := httpapi.SetupRoutes(a)

	zap.S().Infow("listening", "addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		zap.S().Fatalw("server stopped", "error", err)
	}
}
