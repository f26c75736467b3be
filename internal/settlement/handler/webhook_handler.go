package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"ms-booking/internal/checkout"
	"ms-booking/internal/logger"
	"ms-booking/internal/settlement"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
)

const maxWebhookBodyBytes = int64(65536)

// EventVerifier checks the webhook signature before any payload field is
// trusted.
type EventVerifier interface {
	VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

type WebhookHandler struct {
	finalizer *settlement.Finalizer
	verifier  EventVerifier
	logger    *logger.Logger
}

func NewWebhookHandler(finalizer *settlement.Finalizer, verifier EventVerifier, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		finalizer: finalizer,
		verifier:  verifier,
		logger:    log,
	}
}

func (h *WebhookHandler) RegisterRoutes(r *gin.Engine) {
	r.POST("/webhook/stripe", h.HandleStripeWebhook)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// HandleStripeWebhook verifies and dispatches a gateway event. Signature
// failures are rejected outright with a client error and no state change;
// processing failures return 500 so the gateway keeps retrying the delivery.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("WEBHOOK", fmt.Sprintf("Failed to read webhook payload: %v", err))
		c.JSON(http.StatusBadRequest, reject("Invalid webhook payload", err.Error()))
		return
	}

	event, err := h.verifier.VerifyEvent(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		sigErr := &checkout.SignatureError{Err: err}
		h.logger.Error("WEBHOOK", sigErr.Error())
		c.JSON(http.StatusBadRequest, reject("Webhook signature verification failed", "invalid signature"))
		return
	}

	h.logger.LogWebhook(string(event.Type), event.ID, "verified, dispatching")

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			h.logger.Error("WEBHOOK", fmt.Sprintf("Failed to unmarshal checkout session: %v", err))
			c.JSON(http.StatusBadRequest, reject("Invalid event data", err.Error()))
			return
		}
		err = h.finalizer.HandleCompleted(c.Request.Context(), session.ID, session.AmountTotal)

	case "checkout.session.expired":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			h.logger.Error("WEBHOOK", fmt.Sprintf("Failed to unmarshal checkout session: %v", err))
			c.JSON(http.StatusBadRequest, reject("Invalid event data", err.Error()))
			return
		}
		err = h.finalizer.HandleExpired(c.Request.Context(), session.ID)

	default:
		h.logger.Info("WEBHOOK", fmt.Sprintf("Unhandled event type: %s", event.Type))
		c.JSON(http.StatusOK, acknowledge("Event ignored"))
		return
	}

	if err != nil {
		var notFound *checkout.NotFoundError
		if errors.As(err, &notFound) {
			// A session we never issued; acknowledge so the gateway stops
			// redelivering it.
			h.logger.Warn("WEBHOOK", fmt.Sprintf("No booking for event %s: %v", event.ID, err))
			c.JSON(http.StatusOK, acknowledge("No matching booking"))
			return
		}
		h.logger.Error("WEBHOOK", fmt.Sprintf("Failed to process event %s: %v", event.ID, err))
		c.JSON(http.StatusInternalServerError, reject("Failed to process event", "processing error"))
		return
	}

	c.JSON(http.StatusOK, acknowledge("Event processed"))
}
