package mgo

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/ankit-kumarpr/lastchat/logger"
	"github.com/ankit-kumarpr/lastchat/tools/errs"
)

type Config struct {
	URI         string
	Database    string
	Username    string
	Password    string
	MaxPoolSize uint64
	MaxRetry    int
}

type Manager struct {
	mu     sync.RWMutex
	client *mongo.Client
	db     *mongo.Database
}

var globalMgr Manager

// Connect dials Mongo with exponential backoff up to cfg.MaxRetry attempts.
func Connect(ctx context.Context, cfg Config) error {
	if cfg.URI == "" {
		return errs.New("mongo uri is required")
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 3
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 20
	}

	opts := options.Client().ApplyURI(cfg.URI).SetMaxPoolSize(cfg.MaxPoolSize)
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{Username: cfg.Username, Password: cfg.Password})
	}

	backoff := 200 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < cfg.MaxRetry; attempt++ {
		cli, err := mongo.Connect(ctx, opts)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err = cli.Ping(pingCtx, readpref.Primary())
			cancel()
			if err == nil {
				globalMgr.mu.Lock()
				globalMgr.client = cli
				globalMgr.db = cli.Database(cfg.Database)
				globalMgr.mu.Unlock()
				logger.Infof("[mgo] connected database=%s", cfg.Database)
				return nil
			}
			_ = cli.Disconnect(ctx)
		}
		lastErr = err
		logger.Warnf("[mgo] connect attempt %d failed: %v", attempt+1, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
	return errs.WrapMsg(lastErr, "mongo connect")
}

func DB() *mongo.Database {
	globalMgr.mu.RLock()
	defer globalMgr.mu.RUnlock()
	if globalMgr.db == nil {
		panic("mongo not connected, call Connect first")
	}
	return globalMgr.db
}

func Close(ctx context.Context) error {
	globalMgr.mu.Lock()
	defer globalMgr.mu.Unlock()
	if globalMgr.client == nil {
		return nil
	}
	err := globalMgr.client.Disconnect(ctx)
	globalMgr.client = nil
	globalMgr.db = nil
	return err
}
