package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/automail/internal/api"
	"github.com/ignite/automail/internal/config"
	"github.com/ignite/automail/internal/mailer"
	"github.com/ignite/automail/internal/pkg/logger"
	"github.com/ignite/automail/internal/sheets"
	"github.com/ignite/automail/internal/template"
	"github.com/ignite/automail/internal/tracking"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logger.DEBUG)
	}

	templates := template.NewService(cfg.Templates.Directory)
	sender := mailer.NewSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)

	var sheetsSvc *sheets.Service
	if cfg.Sheets.Enabled() {
		sheetsSvc, err = sheets.NewService(context.Background(), cfg.Sheets.ClientEmail, cfg.Sheets.PrivateKey)
		if err != nil {
			log.Fatalf("sheets: %v", err)
		}
		logger.Info("google sheets integration enabled")
	} else {
		logger.Warn("google sheets credentials missing, sheet integration disabled")
	}

	var mirror tracking.Mirror
	if sheetsSvc != nil {
		mirror = sheetsSvc
	}
	ledger := tracking.NewLedger(cfg.Tracking.BaseURL, mirror)

	var gateway api.SheetGateway
	if sheetsSvc != nil {
		gateway = sheetsSvc
	}

	handlers := api.NewHandlers(
		templates,
		sender,
		gateway,
		ledger,
		cfg.Resume.Path,
		time.Duration(cfg.Sending.PerRecipientDelayMs)*time.Millisecond,
		time.Duration(cfg.Sending.BulkRowDelayMs)*time.Millisecond,
	)

	router := api.SetupRoutes(handlers, tracking.NewHandler(ledger))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("automail server listening", "addr", addr, "base_url", cfg.Server.BaseURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
