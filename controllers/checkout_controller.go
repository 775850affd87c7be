package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/glivermore2025/getsovrn-site/middleware"
	"github.com/glivermore2025/getsovrn-site/models"
	"github.com/glivermore2025/getsovrn-site/services"
)

type CheckoutController struct {
	checkoutService services.CheckoutService
}

func NewCheckoutController(checkoutService services.CheckoutService) *CheckoutController {
	return &CheckoutController{checkoutService: checkoutService}
}

// CreateSession handles POST /checkout/sessions.
func (cc *CheckoutController) CreateSession(ctx *gin.Context) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.CreateCheckoutRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	session, svcErr := cc.checkoutService.CreateSession(ctx.Request.Context(), userID, &req)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusCreated, session)
}

// GetSession handles GET /checkout/sessions/:id.
func (cc *CheckoutController) GetSession(ctx *gin.Context) {
	id := ctx.Param("id")
	if id == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Session id is required"})
		return
	}

	details, svcErr := cc.checkoutService.GetSession(ctx.Request.Context(), id)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, details)
}
