package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"epos/gateway/internal/bridge"
	"epos/gateway/internal/cache"
	"epos/gateway/internal/handlers"
	"epos/pkg/config"
	"epos/pkg/correlation"
	"epos/pkg/logging"
	"epos/pkg/messaging"
	"epos/pkg/server"
	"epos/pkg/tenancy"
)

func main() {
	cfg, err := config.Load("gateway", "5000")
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logger := logging.New(cfg.ServiceName, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	factory := messaging.NewFactory(cfg)

	// Commands and replies travel over separate connections so that a blocked
	// publisher never holds up reply delivery.
	commandConn := messaging.NewConnection(factory.ConnectionConfig(), logger.WithField("connection", "commands"))
	commandConn.OnConnect(factory.ReplyTopology().Func())
	if err := commandConn.Connect(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to connect to RabbitMQ")
	}
	commands := messaging.NewQueueManager(commandConn, factory.CommandPublisher(), logger)
	defer commands.Close()

	replyConn := messaging.NewConnection(factory.ConnectionConfig(), logger.WithField("connection", "replies"))
	replyConn.OnConnect(factory.ReplyTopology().Func())
	if err := replyConn.Connect(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to connect to RabbitMQ")
	}
	replies := messaging.NewQueueManager(replyConn, factory.CommandPublisher(), logger)
	defer replies.Close()

	reg := server.NewRegistry()
	metrics, err := correlation.NewMetrics(reg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to register metrics")
	}

	tracker := correlation.NewTracker(cfg.SlotRetention, correlation.WithMetrics(metrics))
	go tracker.Run(ctx, cfg.SweepInterval, logger)

	replies.RegisterConsumer("replies", factory.ReplyConsumer(), bridge.NewReplyConsumer(tracker, logger).Handle)
	replies.StartAllConsumers(ctx)

	b := bridge.New(commands.Publisher(), tracker, cfg.ReplyQueue, cfg.RequestTimeout, logger)

	responses := cache.New(ctx, cfg.RedisAddr, cfg.CacheTTL, logger)
	defer responses.Close()

	tenants := tenancy.NewClient(cfg.TenantServiceURL)

	e := server.New(logger, reg)
	e.Use(tenancy.Middleware(tenants, tenants, logger, handlers.PublicPaths...))

	upstreams := handlers.Upstreams{
		Clients:  cfg.ClientServiceURL,
		Invoices: cfg.InvoiceServiceURL,
		Expenses: cfg.ExpenseServiceURL,
	}
	handlers.RegisterRoutes(e,
		handlers.NewCommandHandler(b, responses, logger),
		handlers.NewProxyHandler(upstreams, responses, logger),
		handlers.NewSystemHandler(commands.Publisher(), b, responses),
	)

	if err := server.Run(e, cfg.ServerPort, logger); err != nil {
		logger.WithError(err).Error("HTTP server stopped")
	}

	cancel()
	logger.Info("Server stopped gracefully")
}
