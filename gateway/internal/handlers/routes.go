package handlers

import (
	"github.com/labstack/echo/v4"
)

// PublicPaths are served without a tenant key.
var PublicPaths = []string{"/health", "/metrics", "/api/system"}

func RegisterRoutes(e *echo.Echo, commands *CommandHandler, proxy *ProxyHandler, system *SystemHandler) {
	e.GET("/health", system.Health)
	e.GET("/api/system/status", system.Status)

	api := e.Group("/api")

	api.GET("/klijenti", proxy.ListClients)
	api.POST("/klijenti", commands.CreateClient)
	api.GET("/klijenti/:id", proxy.GetClient)
	api.PUT("/klijenti/:id", commands.UpdateClient)
	api.DELETE("/klijenti/:id", commands.DeleteClient)
	api.GET("/klijenti/:id/fakture", proxy.ListClientInvoices)

	api.POST("/fakture", commands.CreateInvoice)
	api.GET("/fakture/:id", proxy.GetInvoice)
	api.PUT("/fakture/:id", commands.UpdateInvoice)
	api.DELETE("/fakture/:id", commands.DeleteInvoice)

	api.GET("/troskovi", proxy.ListExpenses)
	api.POST("/troskovi", commands.CreateExpense)
	api.GET("/troskovi/statistike", proxy.Statistics)
	api.GET("/troskovi/:id", proxy.GetExpense)
	api.PUT("/troskovi/:id", commands.UpdateExpense)
	api.DELETE("/troskovi/:id", commands.DeleteExpense)

	api.GET("/kategorije", proxy.ListCategories)
}
