package main

import (
	"homejobs/src/engine"
	"homejobs/src/middlewares"
	"homejobs/src/types"
	"net/http"

	"github.com/gin-gonic/gin"
)

func paymentHandlers(g *gin.RouterGroup, svc *engine.Service) *gin.RouterGroup {
	g.
		GET("/bookings/:id/payment", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindError(ctx, err)
				return
			}
			if !canView(ctx, svc, params.ID) {
				return
			}
			q, err := svc.PaymentQuote(ctx, params.ID)
			if err != nil {
				renderError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, q)
		}).
		POST("/bookings/:id/settle", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindError(ctx, err)
				return
			}
			var body types.SettlePaymentRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindError(ctx, err)
				return
			}
			if !actingAs(ctx, types.ROLE_CUSTOMER, body.PayerID) {
				return
			}
			settled, err := svc.SettlePayment(ctx, params.ID, engine.SettleInput{
				PayerID:       body.PayerID,
				PaymentMethod: body.PaymentMethod,
			})
			if err != nil {
				renderError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, settled)
		}).
		GET("/bookings/:id/payout", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindError(ctx, err)
				return
			}
			if !canView(ctx, svc, params.ID) {
				return
			}
			payout, err := svc.GetPayout(ctx, params.ID)
			if err != nil {
				renderError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, payout)
		}).
		POST("/appeals/:id/resolve", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindError(ctx, err)
				return
			}
			var body types.ResolveAppealRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindError(ctx, err)
				return
			}
			appeal, err := svc.ResolveAppeal(ctx, params.ID, middlewares.Actor(ctx), body.Outcome, body.Note)
			if err != nil {
				renderError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, appeal)
		})
	return g
}
