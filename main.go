package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ankit-kumarpr/lastchat/global/config"
	"github.com/ankit-kumarpr/lastchat/logger"
	"github.com/ankit-kumarpr/lastchat/module/chat/message"
	"github.com/ankit-kumarpr/lastchat/module/chat/seq"
	"github.com/ankit-kumarpr/lastchat/service/api"
	"github.com/ankit-kumarpr/lastchat/service/mgo"
	"github.com/ankit-kumarpr/lastchat/service/natsx"
	"github.com/ankit-kumarpr/lastchat/service/relay"
	"github.com/ankit-kumarpr/lastchat/service/storage/redis"
	"github.com/ankit-kumarpr/lastchat/tools/ids"
	jwtlib "github.com/ankit-kumarpr/lastchat/tools/security"
)

func main() {
	config.Load()
	cfg := config.Global
	ids.SetNodeID(cfg.NodeID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := redis.Init(redis.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: 50,
	}); err != nil {
		logger.Errorf("[main] redis init failed: %v", err)
		return
	}
	defer func() { _ = redis.Close() }()

	if err := mgo.Connect(ctx, mgo.Config{
		URI:      cfg.MongoURI,
		Database: cfg.MongoDatabase,
		MaxRetry: 5,
	}); err != nil {
		logger.Errorf("[main] mongo connect failed: %v", err)
		return
	}
	defer func() { _ = mgo.Close(context.Background()) }()

	store := message.NewStore(mgo.DB(), seq.New(redis.Client()))
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Warnf("[main] ensure indexes: %v", err)
	}

	var bus relay.DeliverBus
	if cfg.NatsURL != "" {
		nb, err := natsx.Dial(cfg.NatsURL)
		if err != nil {
			logger.Errorf("[main] nats dial failed, running single-node: %v", err)
		} else {
			defer nb.Close()
			bus = nb
		}
	}

	gateway := relay.NewGateway(relay.Options{
		NodeID:        "gateway_" + ids.GenerateString(),
		SendQueueSize: cfg.SendQueueSize,
		WriteWait:     cfg.WriteWait,
		PingInterval:  cfg.PingInterval,
		PongWait:      cfg.PongWait,
		MaxFrameBytes: cfg.MaxFrameBytes,
	}, store, bus)

	r := gin.Default()
	r.GET("/ws", gateway.HandleWS)

	restAPI := &api.API{
		Gateway:        gateway,
		Store:          store,
		JWT:            jwtlib.Options{Secret: cfg.JWTSecret, Alg: "HS256", TTL: cfg.JWTTTL},
		HistoryPageMax: cfg.HistoryPageMax,
	}
	restAPI.Register(r)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Infof("[main] listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("[main] serve: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("[main] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("[main] http shutdown: %v", err)
	}
	gateway.Shutdown()
}
