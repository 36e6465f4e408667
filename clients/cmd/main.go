package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"epos/clients/internal/handlers"
	"epos/clients/internal/repositories"
	"epos/clients/internal/service"
	"epos/pkg/config"
	"epos/pkg/db"
	"epos/pkg/logging"
	"epos/pkg/messaging"
	"epos/pkg/server"
	"epos/pkg/tenancy"
)

func main() {
	cfg, err := config.Load("clients", "5001")
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logger := logging.New(cfg.ServiceName, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.WithField("path", cfg.DatabasePath).Info("Connecting to database...")
	database, err := db.Connect(ctx, cfg.DatabasePath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.Close()

	if err := db.Migrate(cfg.DatabasePath, repositories.Migrations, cfg.ServiceName); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}

	factory := messaging.NewFactory(cfg)
	mqConn := messaging.NewConnection(factory.ConnectionConfig(), logger)
	queueManager := messaging.NewQueueManager(mqConn, factory.CommandPublisher(), logger)

	clientRepo := repositories.NewClientRepository(database)
	clientService := service.NewClientService(clientRepo, queueManager.Publisher(), logger)

	router := messaging.NewRouter(queueManager.Publisher(), logger)
	handlers.NewConsumerHandler(clientService).Register(router)

	mqConn.OnConnect(factory.ServiceTopology(router.RoutingKeys()).Func())
	if err := mqConn.Connect(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to connect to RabbitMQ")
	}
	defer queueManager.Close()

	queueManager.RegisterConsumer("commands", factory.ServiceConsumer(), router.Deliver)
	queueManager.StartAllConsumers(ctx)

	e := server.New(logger, server.NewRegistry())
	e.Use(tenancy.Middleware(tenancy.NewClient(cfg.TenantServiceURL), nil, logger, "/health", "/metrics"))
	e.GET("/health", server.Health("klijent-service"))
	handlers.NewClientHandler(clientService, logger).RegisterRoutes(e)

	if err := server.Run(e, cfg.ServerPort, logger); err != nil {
		logger.WithError(err).Error("HTTP server stopped")
	}

	cancel()
	logger.Info("Server stopped gracefully")
}
