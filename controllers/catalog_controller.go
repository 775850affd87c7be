package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/glivermore2025/getsovrn-site/middleware"
	"github.com/glivermore2025/getsovrn-site/models"
	"github.com/glivermore2025/getsovrn-site/services"
)

type CatalogController struct {
	catalogService services.CatalogService
}

func NewCatalogController(catalogService services.CatalogService) *CatalogController {
	return &CatalogController{catalogService: catalogService}
}

// ListListings handles GET /listings. ?seller_id narrows to one seller.
func (cc *CatalogController) ListListings(ctx *gin.Context) {
	listings, svcErr := cc.catalogService.ListListings(ctx.Request.Context(), ctx.Query("seller_id"))
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"listings": listings})
}

// ListDatasets handles GET /datasets.
func (cc *CatalogController) ListDatasets(ctx *gin.Context) {
	datasets, svcErr := cc.catalogService.ListDatasets(ctx.Request.Context())
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"datasets": datasets})
}

// CreateListing handles POST /listings.
func (cc *CatalogController) CreateListing(ctx *gin.Context) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.CreateListingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	listing, svcErr := cc.catalogService.CreateListing(ctx.Request.Context(), userID, &req)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusCreated, listing)
}

// ListPurchases handles GET /purchases.
func (cc *CatalogController) ListPurchases(ctx *gin.Context) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	history, svcErr := cc.catalogService.ListPurchases(ctx.Request.Context(), userID)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, history)
}
