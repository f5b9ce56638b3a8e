package main

import (
	"encoding/json"
	"homejobs/src/apperr"
	"homejobs/src/engine"
	"homejobs/src/types"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

func stripeWebhookRoute(g *gin.RouterGroup, svc *engine.Service, whsecret string) *gin.RouterGroup {
	g.POST("/webhook/stripe", func(ctx *gin.Context) {
		payload, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			log.Printf("[stripe] Error reading request body: %s\n", err.Error())
			ctx.Status(http.StatusServiceUnavailable)
			return
		}
		event, err := webhook.ConstructEvent(payload, ctx.GetHeader("Stripe-Signature"), whsecret)
		if err != nil {
			log.Printf("[stripe] Error verifying webhook signature: %s\n", err.Error())
			ctx.Status(http.StatusBadRequest)
			return
		}
		log.Printf("[StripeEvent] %s\n", event.Type)
		var status types.PaymentStatus
		switch event.Type {
		case "payment_intent.succeeded":
			status = types.PAYMENT_CAPTURED
		case "payment_intent.payment_failed", "payment_intent.canceled":
			status = types.PAYMENT_CAPTURE_FAILED
		default:
			ctx.Status(http.StatusOK)
			return
		}
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			log.Printf("[stripe] Error parsing PaymentIntent: %s\n", err.Error())
			ctx.Status(http.StatusBadRequest)
			return
		}
		record, err := svc.ReconcilePayment(ctx, pi.ID, status)
		if err != nil {
			if apperr.Is(err, apperr.NotFound) {
				// Intents created outside this service.
				log.Printf("[stripe] No payment for %s\n", pi.ID)
				ctx.Status(http.StatusOK)
				return
			}
			renderError(ctx, err)
			return
		}
		log.Printf("[PaymentIntent] %s booking %s is %s\n", pi.ID, record.BookingID, record.Status)
		ctx.Status(http.StatusOK)
	})
	return g
}
