package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"epos/pkg/config"
	"epos/pkg/db"
	"epos/pkg/logging"
	"epos/pkg/messaging"
	"epos/pkg/server"
	"epos/pkg/tenancy"
	"epos/tenants/internal/handlers"
	"epos/tenants/internal/repositories"
	"epos/tenants/internal/service"
)

func main() {
	cfg, err := config.Load("tenants", "5004")
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

	// Every other service authenticates through this one, so it serves
	// without the broker and only loses the activation events.
	mqConn.OnConnect(factory.PublisherTopology().Func())
	if err := mqConn.Connect(ctx); err != nil {
		logger.WithError(err).Warn("RabbitMQ unavailable, tenant events will not be published until it is back")
		go mqConn.KeepConnected(ctx)
	}
	defer queueManager.Close()

	tenantRepo := repositories.NewTenantRepository(database)
	tenantService := service.NewTenantService(tenantRepo, queueManager.Publisher(), logger)

	e := server.New(logger, server.NewRegistry())
	e.Use(tenancy.Middleware(tenantService, nil, logger, handlers.PublicPaths...))
	e.GET("/health", server.Health("tenant-management"))
	handlers.NewTenantHandler(tenantService, logger).RegisterRoutes(e)

	if err := server.Run(e, cfg.ServerPort, logger); err != nil {
		logger.WithError(err).Error("HTTP server stopped")
	}

	cancel()
	logger.Info("Server stopped gracefully")
}
