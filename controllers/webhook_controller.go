package controllers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/glivermore2025/getsovrn-site/services"
)

// MaxWebhookBodyBytes caps the payment webhook body.
const MaxWebhookBodyBytes = 64 << 10

// WebhookController receives payment provider notifications.
type WebhookController struct {
	reconciler services.PurchaseReconciler
}

func NewWebhookController(reconciler services.PurchaseReconciler) *WebhookController {
	return &WebhookController{reconciler: reconciler}
}

// StripeWebhook handles POST /stripe/webhook. The raw body must reach the
// verifier unmodified, so it is read directly instead of bound.
func (wc *WebhookController) StripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxWebhookBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to read request body"})
		return
	}

	result, err := wc.reconciler.Reconcile(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		status := services.StatusCode(err)
		message := err.Error()
		if status >= http.StatusInternalServerError {
			message = "Failed to record purchase"
		}
		c.JSON(status, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "result": result})
}
