package lib

import (
	"context"
	"fmt"
	"homejobs/src/config"
	"homejobs/src/engine"
	"log"
	"strings"

	"github.com/stripe/stripe-go/v82"
)

var stripeClient *stripe.Client

func GetStripeClient() *stripe.Client {
	if stripeClient != nil {
		return stripeClient
	}
	sc := stripe.NewClient(config.Get().StripeSecretKey)
	stripeClient = sc

	return sc
}

// StripeGateway settles bookings with manual-capture PaymentIntents. The
// intent is confirmed when authorized and captured once the booking is paid.
type StripeGateway struct {
	sc *stripe.Client
}

func NewStripeGateway(sc *stripe.Client) *StripeGateway {
	return &StripeGateway{sc: sc}
}

func (g *StripeGateway) Authorize(ctx context.Context, req engine.AuthorizeRequest) (*engine.Authorization, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Metadata: map[string]string{
			"booking_id": req.BookingID,
			"payer_id":   req.PayerID,
		},
	}
	if req.PaymentMethod != "" {
		params.PaymentMethod = stripe.String(req.PaymentMethod)
		params.Confirm = stripe.Bool(true)
	}
	params.SetIdempotencyKey(req.IdempotencyKey)
	pi, err := g.sc.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		log.Printf("[stripe] Error authorizing booking %s: %s\n", req.BookingID, err.Error())
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return &engine.Authorization{Ref: pi.ID}, nil
}

func (g *StripeGateway) Capture(ctx context.Context, ref string) error {
	if _, err := g.sc.V1PaymentIntents.Capture(ctx, ref, &stripe.PaymentIntentCaptureParams{}); err != nil {
		return fmt.Errorf("capture payment intent %s: %w", ref, err)
	}
	return nil
}

func (g *StripeGateway) Void(ctx context.Context, ref string) error {
	if _, err := g.sc.V1PaymentIntents.Cancel(ctx, ref, &stripe.PaymentIntentCancelParams{}); err != nil {
		return fmt.Errorf("cancel payment intent %s: %w", ref, err)
	}
	return nil
}
