package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/storytellr/relay/internal/ai"
	"github.com/storytellr/relay/internal/bot"
	"github.com/storytellr/relay/internal/config"
	"github.com/storytellr/relay/internal/db"
	"github.com/storytellr/relay/internal/httpapi"
	"github.com/storytellr/relay/internal/httpapi/handlers"
	"github.com/storytellr/relay/internal/message"
	"github.com/storytellr/relay/internal/store/rabbitmq"
	"github.com/storytellr/relay/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	db.AutoMigrate(gdb)

	var cache bot.Cache
	if cfg.RedisAddr != "" {
		rc := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.BotCacheTTL)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rc.Ping(pingCtx); err != nil {
			log.Printf("redis unavailable, bot cache disabled addr=%s err=%v", cfg.RedisAddr, err)
		} else {
			cache = rc
		}
		cancel()
	}

	var fallback message.FailedWritePublisher
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Printf("rabbit unavailable, failed-write queue disabled err=%v", err)
		} else {
			fallback = pub
			defer pub.Close()
		}
	}

	streamer := ai.NewClient(cfg.DefaultBaseURL)
	h := handlers.NewHandler(gdb, cfg, cache, fallback, streamer)
	router := httpapi.NewRouter(h)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("relay listening addr=%s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("relay shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
