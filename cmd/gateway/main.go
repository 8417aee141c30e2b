package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/hubso/realtime/config"
	"github.com/hubso/realtime/src/auth"
	"github.com/hubso/realtime/src/presence"
	"github.com/hubso/realtime/src/rooms"
	"github.com/hubso/realtime/src/server"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}

	store := presence.NewRedisStore(presence.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Prefix:   cfg.PresencePrefix,
		TTL:      cfg.PresenceTTL,
	}, logger)

	// Presence is best-effort: a dead backend degrades it, the gateway
	// still serves connections.
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		logger.Warn().Err(err).Str("redis_addr", cfg.RedisAddr()).Msg("presence backend unreachable, running degraded")
	} else {
		logger.Info().Str("redis_addr", cfg.RedisAddr()).Msg("presence backend connected")
	}
	cancel()

	registry := rooms.New(logger)
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	srv := server.New(registry, store, verifier, server.Options{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
	}, logger)

	httpServer := &fasthttp.Server{Handler: srv.Handler()}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("gateway listening")
		if err := httpServer.ListenAndServe(cfg.Addr); err != nil {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	if err := httpServer.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	if err := store.Close(); err != nil {
		logger.Error().Err(err).Msg("presence store close error")
	}
}
