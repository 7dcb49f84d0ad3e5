package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mymanybooks/go-auth/internal/config"
	"github.com/mymanybooks/go-auth/server"
	"github.com/mymanybooks/go-auth/token/issuer"
	"github.com/mymanybooks/go-auth/token/refresh"
	"github.com/mymanybooks/go-auth/users"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("error running server")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()
	c := config.New()

	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if c.GetEnv() != "DEV" {
		logger = log.Logger
	}

	displayAppname(c.GetAppName())

	userRepo := users.NewInMemoryRepo()
	if c.GetEnv() == "DEV" {
		if err := seedDemoUser(userRepo); err != nil {
			return fmt.Errorf("seedDemoUser: %w", err)
		}
	}

	tokenIssuer, err := issuer.New([]byte(c.GetTokenSecret()), c.GetTokenIssuer(), c.GetTokenAudience())
	if err != nil {
		return fmt.Errorf("issuer.New: %w", err)
	}
	refreshManager := refresh.NewManager(refresh.NewInMemoryRepo(), c.GetRefreshTokenExpiry())

	authServer, err := server.New(c, userRepo, tokenIssuer, refreshManager, logger)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: authServer}
	go listenAndServe(httpServer, logger)
	waitForStopSignal()
	return shutdown(httpServer)
}

func listenAndServe(httpServer *http.Server, logger zerolog.Logger) {
	logger.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

// seedDemoUser registers a pre-verified account so the SDK can be exercised
// against a fresh DEV server without an email verification step.
func seedDemoUser(repo users.Repo) error {
	passwordHash, err := users.HashPassword("Password123")
	if err != nil {
		return err
	}
	return repo.Create(&users.User{
		ID:           "demo-1",
		Email:        "demo@example.com",
		Name:         "Demo",
		Surname:      "User",
		PasswordHash: passwordHash,
		Role:         users.RoleUser,
		IsActive:     true,
		Verified:     true,
		DateJoined:   time.Now(),
	})
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
