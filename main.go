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

	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"

	"tgchatbot/internal/api"
	"tgchatbot/internal/bot"
	"tgchatbot/internal/config"
	"tgchatbot/internal/ratelimit"
	"tgchatbot/internal/redis"
	"tgchatbot/internal/service/ai"
	"tgchatbot/internal/service/history"
	"tgchatbot/internal/storage"
	"tgchatbot/internal/worker"
)

func main() {
	cfgPath := os.Getenv("TGCHATBOT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("TGCHATBOT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	store := storage.NewStore(db, dbType)
	historySvc := history.NewService(store, cfg.BasicConfig.HistoryWindow)

	registry := ai.NewRegistry(cfg.BasicConfig.Models)
	aiSvc := ai.NewService(openai.NewClient(cfg.OpenAIKey), registry)

	var limiter *ratelimit.Limiter
	if cfg.Redis.Enabled {
		rdb, err := redis.NewClient(cfg)
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer rdb.Close()
		limiter = ratelimit.New(rdb, cfg.BasicConfig.RateLimitPerMinute)
	}

	idle := time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute
	manager := worker.NewManager(historySvc, aiSvc, idle)
	defer manager.Stop()

	tgClient := bot.NewClient(
		"https://api.telegram.org/bot"+cfg.TelegramToken,
		time.Duration(cfg.BasicConfig.PollTimeout+10)*time.Second,
	)
	chatBot := bot.New(tgClient, manager, historySvc, registry, limiter,
		cfg.BasicConfig.AdminIDs, cfg.BasicConfig.PollTimeout)

	router := gin.Default()
	api.NewHandler(historySvc, registry, cfg.BasicConfig.AdminToken).RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}
	srv := &http.Server{Addr: addr, Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("ops API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ops server stopped: %v", err)
		}
	}()

	log.Printf("bot started, model %s, history window %d", registry.Get(), historySvc.Window())
	if err := chatBot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("bot stopped: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown ops server: %v", err)
	}
	log.Println("bot stopped")
}
