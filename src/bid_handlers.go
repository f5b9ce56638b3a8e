package main

import (
	"homejobs/src/engine"
	"homejobs/src/middlewares"
	"homejobs/src/models"
	"homejobs/src/types"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

func bidHandlers(g *gin.RouterGroup, svc *engine.Service) *gin.RouterGroup {
	g.
		POST("/bids", func(ctx *gin.Context) {
			var body types.SubmitBidRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindError(ctx, err)
				return
			}
			bid, err := svc.SubmitBid(ctx, middlewares.Actor(ctx), engine.SubmitBidInput{
				BookingID:        body.BookingID,
				ContractorID:     body.ContractorID,
				Amount:           body.Amount,
				IncludedItems:    body.IncludedItems,
				ETAMinutes:       body.ETAMinutes,
				Note:             body.Note,
				ExpiresInMinutes: body.ExpiresInMinutes,
			})
			if err != nil {
				renderError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, bid)
		}).
		GET("/bookings/:id/bids", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindError(ctx, err)
				return
			}
			if !canView(ctx, svc, params.ID) {
				return
			}
			bids, err := svc.ListBids(ctx, params.ID)
			if err != nil {
				renderError(ctx, err)
				return
			}
			// Contractors never see competing bids.
			if actor := middlewares.Actor(ctx); actor.Role == types.ROLE_CONTRACTOR {
				bids = slices.DeleteFunc(bids, func(b models.Bid) bool { return b.ContractorID != actor.ID })
			}
			ctx.JSON(http.StatusOK, gin.H{"data": bids, "count": len(bids)})
		}).
		POST("/bids/:id/accept", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindError(ctx, err)
				return
			}
			var body types.AcceptBidRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindError(ctx, err)
				return
			}
			if !actingAs(ctx, types.ROLE_CUSTOMER, body.CustomerID) {
				return
			}
			res, err := svc.AcceptBid(ctx, params.ID, body.CustomerID)
			if err != nil {
				renderError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, res)
		}).
		POST("/bids/:id/reject", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindError(ctx, err)
				return
			}
			var body types.RejectBidRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindError(ctx, err)
				return
			}
			if !actingAs(ctx, types.ROLE_CUSTOMER, body.CustomerID) {
				return
			}
			bid, err := svc.RejectBid(ctx, params.ID, body.CustomerID, body.Reason)
			if err != nil {
				renderError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, bid)
		})
	return g
}
