package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RegisterRoutes configures all API routes, middleware, and error handlers.
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig) {
	e.HTTPErrorHandler = JSONErrorHandler()

	e.Use(SetJSONContentType)
	e.Use(SetNoCacheHeaders)

	// Optional API key authentication
	if cfg.APIKey != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.APIKey, nil
			},
		}))
	}

	// API v1 routes
	v1 := e.Group("/v1")
	v1.GET("/health", h.Health)
	v1.GET("/assets", h.Assets)

	// Wallet lookup and holdings
	v1.GET("/wallets/:chat_id", h.Wallet)
	v1.GET("/wallets/:chat_id/positions", h.WalletPositions)

	// Conversational buy flow
	purchase := v1.Group("/purchase")
	purchase.POST("/start", h.PurchaseStart)
	purchase.POST("/amount", h.PurchaseAmount)
	purchase.POST("/cancel", h.PurchaseCancel)
	purchase.GET("/:chat_id", h.PurchaseSession)

	// Live trade feed
	v1.GET("/trades/recent", h.RecentTrades)

	// AI endpoints with rate limiting
	aigroup := v1.Group("/ai")
	aigroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(0.2), // 1 request every 5 seconds
		Burst:     2,               // Allow burst of 2 requests
		ExpiresIn: 2 * time.Minute, // Rate limit window
	})))
	aigroup.POST("/ask", h.AIAsk) // Natural language to SQL endpoint

	// Operational toggles (trading kill switch and friends)
	if h.Toggles != nil {
		toggleGroup := v1.Group("/toggles")
		toggleGroup.GET("", h.TogglesList)
		toggleGroup.POST("", h.TogglesSet)
		toggleGroup.GET("/:key", h.TogglesGet)
		toggleGroup.PUT("/:key", h.TogglesUpdate)
		toggleGroup.DELETE("/:key", h.TogglesDelete)
	}

	// Catch-all route for 404 responses
	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
