package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/glivermore2025/getsovrn-site/controllers"
	"github.com/glivermore2025/getsovrn-site/middleware"
)

// Controllers groups the handlers mounted by RegisterRoutes.
type Controllers struct {
	Webhook      *controllers.WebhookController
	Checkout     *controllers.CheckoutController
	Contribution *controllers.ContributionController
	Portfolio    *controllers.PortfolioController
	Catalog      *controllers.CatalogController
}

// RegisterRoutes mounts the webhook without auth or rate limiting, the
// catalog browse views behind the rate limiter, and every user-facing route
// behind both.
func RegisterRoutes(r *gin.Engine, c Controllers, limiter *middleware.RateLimiter) {
	r.POST("/stripe/webhook", c.Webhook.StripeWebhook)

	public := r.Group("")
	public.Use(middleware.RateLimitMiddleware(limiter))
	public.GET("/listings", c.Catalog.ListListings)
	public.GET("/datasets", c.Catalog.ListDatasets)

	api := r.Group("")
	api.Use(middleware.RateLimitMiddleware(limiter), middleware.AuthMiddleware())

	api.POST("/listings", c.Catalog.CreateListing)
	api.GET("/purchases", c.Catalog.ListPurchases)

	checkout := api.Group("/checkout/sessions")
	checkout.POST("", c.Checkout.CreateSession)
	checkout.GET("/:id", c.Checkout.GetSession)

	datasets := api.Group("/datasets/:id")
	datasets.GET("/contribution", c.Contribution.Status)
	datasets.PUT("/contribution", c.Contribution.Join)
	datasets.DELETE("/contribution", c.Contribution.Leave)

	api.GET("/portfolio", c.Portfolio.GetPortfolio)
	api.GET("/listings/:id/download", c.Portfolio.DownloadListing)
}
