package controllers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/glivermore2025/getsovrn-site/middleware"
	"github.com/glivermore2025/getsovrn-site/models"
	"github.com/glivermore2025/getsovrn-site/services"
	"github.com/google/uuid"
)

type ContributionController struct {
	contributionService services.ContributionService
}

func NewContributionController(contributionService services.ContributionService) *ContributionController {
	return &ContributionController{contributionService: contributionService}
}

// Join handles PUT /datasets/:id/contribution. The body is optional.
func (cc *ContributionController) Join(ctx *gin.Context) {
	userID, datasetID, ok := contributionTarget(ctx)
	if !ok {
		return
	}

	var req models.ContributionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	status, svcErr := cc.contributionService.Join(ctx.Request.Context(), datasetID, userID, &req)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"contribution": status})
}

// Leave handles DELETE /datasets/:id/contribution.
func (cc *ContributionController) Leave(ctx *gin.Context) {
	userID, datasetID, ok := contributionTarget(ctx)
	if !ok {
		return
	}

	if svcErr := cc.contributionService.Leave(ctx.Request.Context(), datasetID, userID); svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Contribution stopped"})
}

// Status handles GET /datasets/:id/contribution.
func (cc *ContributionController) Status(ctx *gin.Context) {
	userID, datasetID, ok := contributionTarget(ctx)
	if !ok {
		return
	}

	status, svcErr := cc.contributionService.Status(ctx.Request.Context(), datasetID, userID)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"contribution": status})
}

func contributionTarget(ctx *gin.Context) (string, uuid.UUID, bool) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", uuid.Nil, false
	}
	datasetID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid dataset id"})
		return "", uuid.Nil, false
	}
	return userID, datasetID, true
}
