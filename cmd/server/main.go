// Package main is the entry point for the docs-chat auth server.
//
// Its job is deliberately small: load configuration from the environment
// (with .env support for local development), build the server, start it.
// All actual logic lives in the internal packages.
package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/agenticbook/docschat/internal/auth"
	"github.com/agenticbook/docschat/internal/server"
)

func main() {
	// .env is optional — real deployments set real environment variables.
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	port := envInt("PORT", 8080)

	dbPath := envStr("DB_PATH", "data/docschat.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", filepath.Dir(dbPath)),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// The signing key is non-negotiable: without it no credential can be
	// issued or verified, so the server refuses to start.
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Error("JWT_SECRET not set — generate one with: openssl rand -hex 32")
		os.Exit(1)
	}

	devMode := strings.EqualFold(os.Getenv("AUTH_DEV_MODE"), "true")
	if devMode {
		// Loud on purpose: dev mode disables the Secure cookie flag and
		// unlocks the accept-any-API-key fallback. If this line shows up
		// in production logs, the config is wrong.
		logger.Warn("AUTH_DEV_MODE is enabled — cookies are not Secure and an empty API key list accepts ANY key; never run production like this")
	}

	apiKeys := auth.ParseAPIKeys(os.Getenv("CHAT_API_KEYS"))
	if len(apiKeys) == 0 && !devMode {
		logger.Warn("CHAT_API_KEYS not set — API-key clients will be rejected until keys are configured")
	}

	googleCallback := envStr("GOOGLE_REDIRECT_URI",
		"http://localhost:"+strconv.Itoa(port)+"/api/auth/google/callback")

	cfg := server.Config{
		Port:        port,
		DBPath:      dbPath,
		FrontendURL: envStr("FRONTEND_URL", "http://localhost:3000"),

		JWTSecret:  jwtSecret,
		AccessTTL:  time.Duration(envInt("JWT_ACCESS_TTL_MINUTES", 15)) * time.Minute,
		RefreshTTL: time.Duration(envInt("JWT_REFRESH_TTL_DAYS", 7)) * 24 * time.Hour,

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleCallbackURL:  googleCallback,

		APIKeys: apiKeys,
		DevMode: devMode,

		RatePerMinute: envInt("RATE_LIMIT_PER_MINUTE", 0),
		RatePerHour:   envInt("RATE_LIMIT_PER_HOUR", 0),
	}

	if os.Getenv("GOOGLE_CLIENT_ID") == "" {
		logger.Warn("GOOGLE_CLIENT_ID not set — Google sign-in is disabled")
	}

	// The response generator is an external collaborator; without one the
	// chat endpoint reports an upstream failure but auth still works.
	srv, err := server.New(cfg, logger, nil)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// envStr reads an environment variable with a default.
func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt reads an integer environment variable with a default; a
// malformed value falls back to the default rather than crashing boot.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
