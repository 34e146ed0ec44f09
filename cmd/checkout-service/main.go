// cmd/checkout-service/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"bazaar/internal/pkg/config"
	"bazaar/internal/pkg/httpclient"
	"bazaar/internal/pkg/logger"
	"bazaar/internal/pkg/mq"
	"bazaar/internal/pkg/nacos"
	pkgredis "bazaar/internal/pkg/redis"
	"bazaar/internal/pkg/tracing"
	"bazaar/internal/pkg/utils"
	"bazaar/internal/pkg/zookeeper"
	"bazaar/internal/service/checkout/application"
	"bazaar/internal/service/checkout/domain"
	"bazaar/internal/service/checkout/domain/port"
	"bazaar/internal/service/checkout/infrastructure"
	"bazaar/internal/service/checkout/infrastructure/adapter"
	"bazaar/internal/service/checkout/interfaces"
)

const serviceName = "checkout-service"

// main 函数是应用的"组装根" (Composition Root)：
// 创建并组装所有依赖项，然后启动 HTTP 服务和支付事件消费者。
func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(serviceName, cfg.Server.LogLevel)

	// 1. 初始化核心技术组件
	tp, err := tracing.InitTracerProvider(serviceName, cfg.Jaeger.Endpoint)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to initialize tracer provider")
	}
	defer tp.Shutdown(context.Background())
	tracer := otel.Tracer(serviceName)

	db, err := infrastructure.NewDB(cfg.MySQL.DSN)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to initialize database")
	}

	httpClient := httpclient.NewClient(tracer)

	paymentWriter := mq.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.PaymentTopic)
	defer paymentWriter.Close()
	notificationWriter := mq.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.NotificationTopic)
	defer notificationWriter.Close()

	// 2. 快照缓存与对账锁：单实例用进程内实现，
	// 配了 Redis/ZooKeeper 就切到分布式实现。
	var snapshotCache port.SnapshotCache
	if cfg.Redis.Addr != "" {
		redisClient, err := pkgredis.NewClient(cfg.Redis.Addr)
		if err != nil {
			logger.L().Fatal().Err(err).Msg("failed to initialize redis client")
		}
		defer redisClient.Close()
		snapshotCache = infrastructure.NewRedisSnapshotCache(redisClient)
	} else {
		memCache := infrastructure.NewMemorySnapshotCache()
		defer memCache.Close()
		snapshotCache = memCache
	}

	var locker port.ReferenceLocker = infrastructure.NewMutexReferenceLocker()
	if cfg.Zookeeper.Enabled {
		zkConn, err := zookeeper.Connect(cfg.Zookeeper.Addrs)
		if err != nil {
			logger.L().Fatal().Err(err).Msg("failed to connect to zookeeper")
		}
		defer zkConn.Close()
		locker = infrastructure.NewZkReferenceLocker(zkConn)
	}

	// 3. 仓储与出站适配器
	orderRepo := infrastructure.NewGormOrderRepository(db)
	cartRepo := infrastructure.NewGormCartRepository(db)
	catalog := infrastructure.NewGormProductCatalog(db)
	txManager := infrastructure.NewGormTxManager(db)

	gateway := adapter.NewPaystackAdapter(httpClient, snapshotCache,
		func(ctx context.Context, userID string) (*domain.CartSnapshot, error) {
			return application.BuildSnapshot(ctx, cartRepo, catalog, userID, cfg.Checkout.ShippingFee)
		},
		adapter.PaystackConfig{
			BaseURL:        cfg.Gateway.BaseURL,
			SecretKey:      cfg.Gateway.SecretKey,
			CallbackURL:    cfg.Gateway.CallbackURL,
			Currency:       cfg.Gateway.Currency,
			MinAmount:      cfg.Gateway.MinAmount,
			RequestTimeout: cfg.Gateway.RequestTimeout,
			MaxRetries:     cfg.Gateway.MaxRetries,
		})

	var identity port.IdentityService = adapter.StaticIdentityAdapter{}
	if cfg.Identity.BaseURL != "" {
		identity = adapter.NewIdentityHTTPAdapter(httpClient, cfg.Identity.BaseURL)
	}

	pushHub := interfaces.NewPushHub()
	notifier := adapter.NewFanoutNotifier(
		adapter.NewKafkaNotificationAdapter(notificationWriter),
		pushHub,
	)

	policy, err := application.NewCheckoutPolicy(cfg.Checkout.PolicyRules)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to compile checkout policy")
	}

	// 4. 应用服务
	cartService := application.NewCartService(cartRepo, catalog, cfg.Checkout.ShippingFee, tracer)
	checkoutService := application.NewCheckoutService(
		txManager, orderRepo, gateway, notifier, identity,
		snapshotCache, locker, policy, tracer,
		cfg.Checkout.ShippingFee, cfg.Checkout.DeliveryLeadDays, cfg.Checkout.CartCacheTTL,
	)

	// 5. 入站接口：HTTP、WebSocket 推送、Kafka 支付事件消费者
	handler := interfaces.NewCheckoutHandler(cartService, checkoutService, gateway, paymentWriter)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.HandleFunc("/ws", pushHub.ServeWS)

	paymentReader := mq.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.PaymentTopic, cfg.Kafka.ConsumerGroupID)
	paymentDLTWriter := mq.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.PaymentDLTTopic)
	defer paymentDLTWriter.Close()
	consumer := interfaces.NewPaymentEventConsumer(paymentReader, checkoutService, mq.NewFailureHandler(paymentDLTWriter))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 6. 服务注册（可选）
	if cfg.Nacos.Enabled {
		registerWithNacos(cfg)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.L().Info().Int("port", cfg.Server.Port).Msg("✅ checkout service started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return consumer.Run(gctx)
	})
	g.Go(func() error {
		pushHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.L().Info().Msg("🛑 shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = consumer.Close()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.L().Fatal().Err(err).Msg("service exited with error")
	}
	logger.L().Info().Msg("service stopped cleanly")
}

// registerWithNacos 把本实例注册为临时节点，退出时由心跳超时自动摘除。
func registerWithNacos(cfg *config.Config) {
	client, err := nacos.NewClient(cfg.Nacos.ServerAddrs, cfg.Nacos.Namespace, cfg.Nacos.Group)
	if err != nil {
		logger.L().Warn().Err(err).Msg("nacos unavailable, skipping service registration")
		return
	}
	ip, err := utils.GetOutboundIP()
	if err != nil {
		logger.L().Warn().Err(err).Msg("cannot determine outbound ip, skipping service registration")
		return
	}
	if err := client.RegisterServiceInstance(serviceName, ip, cfg.Server.Port); err != nil {
		logger.L().Warn().Err(err).Msg("nacos registration failed")
	}
}
