package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"slideSync/backend/internal/cache"
	"slideSync/backend/internal/collab"
	"slideSync/backend/internal/httpapi/handlers"
	"slideSync/backend/internal/httpapi/middleware"
	"slideSync/backend/internal/store"
	"slideSync/backend/internal/ws"
)

type SyncConfig struct {
	Running struct {
		Port int `mapstructure:"Port"`
	} `mapstructure:"Running"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"Mysql"`
	Redis struct {
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"Redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"Kafka"`
	Auth struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"Auth"`
	Retention struct {
		KeepLastN       uint64 `mapstructure:"keepLastN"`
		IntervalMinutes int    `mapstructure:"intervalMinutes"`
	} `mapstructure:"Retention"`
}

func initConfig() (*SyncConfig, error) {
	cfg := &SyncConfig{}
	v := viper.New()
	v.SetConfigName("slideSyncConfig")
	v.SetConfigType("yaml")
	// works when launched from the repo root or from backend/
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	cfg, err := initConfig()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
	})
	if err = rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	db, err := sql.Open("mysql", cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	gormDB, err := store.InitMySQL(cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("failed to init gorm: %v", err)
	}

	kafkaCfg := sarama.NewConfig()
	// SyncProducer requires Return.Successes
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		log.Fatalf("failed to connect kafka: %v", err)
	}
	defer producer.Close()

	ctx := context.Background()
	opLog := store.NewOpLogStore(db)
	snapshots := store.NewSnapshotStore(db)
	projects := store.NewProjectStore(db)
	sessions := store.NewSessionStore(gormDB)
	if err := opLog.Init(ctx); err != nil {
		log.Fatalf("init oplog schema failed: %v", err)
	}
	if err := snapshots.Init(ctx); err != nil {
		log.Fatalf("init snapshots schema failed: %v", err)
	}
	if err := projects.Init(ctx); err != nil {
		log.Fatalf("init projects schema failed: %v", err)
	}
	if err := sessions.Init(); err != nil {
		log.Fatalf("init sessions schema failed: %v", err)
	}

	kafkaSem := collab.NewSemaphoreControl()
	wsSem := collab.NewSemaphoreControl()
	dispatcher := collab.NewKafkaDispatcher(
		producer,
		cfg.Kafka.Topic,
		kafkaSem,
		collab.KafkaDispatcherOptions{
			QueueSize:   10_000,
			Workers:     4,
			MaxRetry:    3,
			BaseBackoff: 50 * time.Millisecond,
			MaxBackoff:  1 * time.Second,
		},
	)

	engine := collab.NewEngine(opLog, snapshots, dispatcher)

	presence := cache.NewRedisPresence(rdb)
	hub := ws.NewHub(presence)
	manager := ws.NewManager(hub, engine, sessions, projects, wsSem)

	go maintenanceLoop(ctx, engine, cfg)

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	projectHandlers := handlers.NewProjects(projects, engine)

	sync := r.Group("/sync")
	sync.Use(middleware.AuthMiddleware(cfg.Auth.Secret))
	sync.GET("/ws", manager.WebSocketConnect)
	sync.POST("/projects", projectHandlers.Create)
	sync.GET("/projects/:projectID", projectHandlers.Get)
	sync.GET("/projects/:projectID/content", projectHandlers.Content)
	r.GET("/sync/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "ok"})
	})

	port := cfg.Running.Port
	_ = r.Run(fmt.Sprintf(":%d", port))
}

// maintenanceLoop periodically snapshots active projects and prunes their
// operation logs. Never the hot path; a failed round is logged and retried on
// the next tick.
func maintenanceLoop(ctx context.Context, engine *collab.Engine, cfg *SyncConfig) {
	keepLastN := cfg.Retention.KeepLastN
	if keepLastN == 0 {
		keepLastN = 10_000
	}
	interval := time.Duration(cfg.Retention.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			ids, err := engine.Projects(ctx)
			if err != nil {
				log.Printf("maintenance: list projects failed: %v", err)
				continue
			}
			for _, id := range ids {
				if err := engine.SaveSnapshot(ctx, id); err != nil {
					log.Printf("maintenance: snapshot project=%s failed: %v", id, err)
					// pruning without a fresh snapshot could drop history
					// nothing covers
					continue
				}
				if err := engine.Prune(ctx, id, keepLastN); err != nil {
					log.Printf("maintenance: prune project=%s failed: %v", id, err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
