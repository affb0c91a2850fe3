package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/food-order/config"
	"github.com/d60-Lab/food-order/internal/api"
	"github.com/d60-Lab/food-order/internal/api/handler"
	"github.com/d60-Lab/food-order/internal/api/middleware"
	"github.com/d60-Lab/food-order/internal/cache"
	"github.com/d60-Lab/food-order/internal/model"
	"github.com/d60-Lab/food-order/internal/notify"
	"github.com/d60-Lab/food-order/internal/repository"
	"github.com/d60-Lab/food-order/internal/service"
	"github.com/d60-Lab/food-order/pkg/database"
	"github.com/d60-Lab/food-order/pkg/logger"
	"github.com/d60-Lab/food-order/pkg/tracing"
)

// @title Food Order API
// @version 1.0
// @description 订单、支付与退款生命周期服务
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	app := &cli.App{
		Name:  "foodorder",
		Usage: "food ordering order/payment service",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "启动 HTTP 服务",
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "建表，可选写入演示菜品",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "seed", Usage: "写入演示菜品"},
				},
				Action: migrate,
			},
			{
				Name:  "token",
				Usage: "签发本地调试用的访问令牌",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Required: true},
					&cli.StringFlag{Name: "role", Value: string(service.RoleUser)},
					&cli.StringFlag{Name: "email"},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
				},
				Action: issueToken,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func bootstrap() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Init(cfg.Server.Mode); err != nil {
		return nil, nil, err
	}
	db, err := database.InitDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func migrate(c *cli.Context) error {
	_, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer database.Close(db)

	if err := db.AutoMigrate(model.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	logger.Info("migration finished")
	if !c.Bool("seed") {
		return nil
	}

	repo := repository.New(db)
	menu := []struct {
		name  string
		price string
		stock int
	}{
		{"Masala Dosa", "5.00", 100},
		{"Paneer Butter Masala", "10.00", 50},
		{"Chicken Biryani", "12.50", 80},
		{"Mango Lassi", "3.00", 200},
	}
	for _, m := range menu {
		p := &model.Product{Name: m.name, Price: decimal.RequireFromString(m.price), Stock: m.stock, IsAvailable: true}
		if err := repo.Products.Create(c.Context, p); err != nil {
			return fmt.Errorf("seed %s: %w", m.name, err)
		}
		logger.Info("seeded product", zap.String("id", p.ID), zap.String("name", p.Name))
	}
	return nil
}

func issueToken(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	token, err := middleware.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.Issuer).Issue(service.Identity{
		UserID: c.String("user"),
		Role:   service.Role(c.String("role")),
		Email:  c.String("email"),
	}, c.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func serve(c *cli.Context) error {
	cfg, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer database.Close(db)
	log := logger.L()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.Sentry.Environment}); err != nil {
			log.Warn("sentry init failed", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	shutdownTracing, err := tracing.Init(c.Context, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	if err := db.AutoMigrate(model.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	repo := repository.New(db)

	var idem service.IdempotencyStore
	if cfg.Redis.Enabled {
		rdb, err := cache.NewClient(c.Context, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		idem = cache.NewIdempotencyStore(rdb, cfg.Redis.IdempotencyTTL)
		log.Info("idempotent checkout enabled", zap.String("redis", cfg.Redis.Addr))
	}

	var publisher service.EventPublisher
	if cfg.Kafka.Enabled {
		kp := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		publisher = kp
	}

	var mailer service.Mailer = notify.LogMailer{}
	if cfg.SMTP.Enabled {
		mailer = notify.NewSMTPMailer(cfg.SMTP)
	}

	activity := service.NewActivityDispatcher(repo.Activities, cfg.Activity.QueueSize)
	stopActivity := activity.Start(cfg.Activity.Workers)
	relay := service.NewOutboxRelay(repo.Outbox, publisher, cfg.Outbox.BatchSize, cfg.Outbox.PollInterval, cfg.Outbox.Lease)
	stopRelay := relay.Start()

	gateway := service.NewGatewaySimulator(cfg.Payment.Latency, cfg.Payment.Timeout,
		service.WithOutcome(service.RandomOutcome(cfg.Payment.UPISuccessRate, cfg.Payment.CardSuccessRate)))
	payments := service.NewPaymentService(repo, gateway, activity, mailer)
	orders := service.NewOrderService(repo, payments, activity, idem)
	refunds := service.NewRefundCoordinator(repo, activity, mailer)

	if err := handler.RegisterValidators(); err != nil {
		return err
	}
	gin.SetMode(cfg.Server.Mode)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	serviceName := ""
	if cfg.Tracing.Enabled {
		serviceName = cfg.Tracing.ServiceName
	}
	router := api.NewRouter(api.RouterDeps{
		Handler:     handler.New(orders, payments, refunds),
		Tokens:      middleware.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.Issuer),
		RateLimiter: limiter,
		ServiceName: serviceName,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweepDone := make(chan struct{})
	go func() {
		t := time.NewTicker(5 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				limiter.Sweep()
			case <-sweepDone:
				return
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting http server", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-quit:
	case err := <-errCh:
		log.Error("http server failed", zap.Error(err))
	}

	log.Info("shutting down")
	close(sweepDone)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := stopRelay(ctx); err != nil {
		log.Warn("outbox relay stop", zap.Error(err))
	}
	if err := stopActivity(ctx); err != nil {
		log.Warn("activity dispatcher stop", zap.Error(err))
	}
	log.Info("server stopped")
	return nil
}
