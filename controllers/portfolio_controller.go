package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/glivermore2025/getsovrn-site/middleware"
	"github.com/glivermore2025/getsovrn-site/services"
	"github.com/google/uuid"
)

// PortfolioController serves the contributor earnings and buyer download views.
type PortfolioController struct {
	portfolioService services.PortfolioService
	downloadService  services.DownloadService
}

func NewPortfolioController(portfolioService services.PortfolioService, downloadService services.DownloadService) *PortfolioController {
	return &PortfolioController{portfolioService: portfolioService, downloadService: downloadService}
}

// GetPortfolio handles GET /portfolio.
func (pc *PortfolioController) GetPortfolio(ctx *gin.Context) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	portfolio, svcErr := pc.portfolioService.GetPortfolio(ctx.Request.Context(), userID)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, portfolio)
}

// DownloadListing handles GET /listings/:id/download.
func (pc *PortfolioController) DownloadListing(ctx *gin.Context) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	listingID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing id"})
		return
	}

	link, svcErr := pc.downloadService.GetDownloadLink(ctx.Request.Context(), userID, listingID)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, link)
}
