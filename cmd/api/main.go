package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/imrishuroy/go-storefront-ledger/internal/aws"
	"github.com/imrishuroy/go-storefront-ledger/internal/catalog"
	"github.com/imrishuroy/go-storefront-ledger/internal/checkout"
	"github.com/imrishuroy/go-storefront-ledger/internal/config"
	"github.com/imrishuroy/go-storefront-ledger/internal/handlers"
	"github.com/imrishuroy/go-storefront-ledger/internal/idempotency"
	"github.com/imrishuroy/go-storefront-ledger/internal/inventory"
	"github.com/imrishuroy/go-storefront-ledger/internal/kafka"
	"github.com/imrishuroy/go-storefront-ledger/internal/logging"
	"github.com/imrishuroy/go-storefront-ledger/internal/metrics"
	"github.com/imrishuroy/go-storefront-ledger/internal/notify"
	"github.com/imrishuroy/go-storefront-ledger/internal/orders"
	"github.com/imrishuroy/go-storefront-ledger/internal/promo"
	"github.com/imrishuroy/go-storefront-ledger/internal/session"
	"github.com/imrishuroy/go-storefront-ledger/internal/users"
)

func setupRouter(base *slog.Logger, cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.Middleware(base))
	r.Use(metrics.Middleware())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	handlers.Register(r, cfg)

	return r
}

// publisherFor picks the notification transport. A nil publisher disables notifications.
func publisherFor(cfg *config.Config, clients *aws.Clients, log *slog.Logger) (notify.Publisher, func()) {
	switch cfg.NotifyTransport {
	case config.TransportKafka:
		p := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		return p, func() {
			if err := p.Close(); err != nil {
				log.Warn("kafka writer close failed", "err", err)
			}
		}
	case config.TransportSQS:
		if cfg.QueueURL == "" {
			log.Warn("ORDERS_QUEUE_URL empty, notifications disabled")
			return nil, func() {}
		}
		return aws.NewPublisher(clients.SQS, cfg.QueueURL), func() {}
	}
	return nil, func() {}
}

func sessionStore(cfg *config.Config, log *slog.Logger) session.Store {
	if cfg.RedisAddr == "" {
		log.Warn("REDIS_ADDR empty on a local run, sessions are kept in memory")
		return session.NewMemoryStore()
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	return session.NewRedisStore(rdb, cfg.SessionTTL)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	base := logging.Init("storefront-api", cfg.LogFile, logging.ParseLevel(cfg.LogLevel))
	log := base.With("component", "main")

	clients, err := aws.NewClients(context.Background(), cfg.AWSRegion)
	if err != nil {
		log.Error("failed to init aws clients", "err", err)
		os.Exit(1)
	}

	products := catalog.NewStore(clients.DynamoDB, cfg.ProductsTable)
	orderStore := orders.NewStore(clients.DynamoDB, cfg.OrdersTable)
	promoStore := promo.NewStore(clients.DynamoDB, cfg.PromoCodesTable)
	userStore := users.NewStore(clients.DynamoDB, cfg.UsersTable)
	ledger := inventory.NewLedger(products, orderStore)

	deps := checkout.Deps{
		DynamoDB:    clients.DynamoDB,
		Products:    products,
		Promos:      promo.NewService(promoStore),
		Orders:      orderStore,
		Ledger:      ledger,
		Idempotency: idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL),
		Users:       userStore,
		Sessions:    sessionStore(cfg, log),
		Metrics:     metrics.NewCloudWatch(clients.CloudWatch, cfg.MetricsNamespace),
	}
	pub, closePub := publisherFor(cfg, clients, log)
	defer closePub()
	if pub != nil {
		deps.Notifier = notify.NewDispatcher(userStore, pub)
	}

	r := setupRouter(base, handlers.HandlerConfig{
		Checkout: checkout.New(deps),
		Products: products,
		Ledger:   ledger,
		Promos:   promoStore,
		Users:    userStore,
		Timeout:  cfg.RequestTimeout,
	})

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if cfg.RunLocal {
		log.Info("running local server", "addr", cfg.ListenAddr, "transport", cfg.NotifyTransport)
		if err := r.Run(cfg.ListenAddr); err != nil {
			log.Error("failed to run local server", "err", err)
			os.Exit(1)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
