package main

import (
	"homejobs/src/config"
	"homejobs/src/engine"
	"homejobs/src/lifecycle"
	"homejobs/src/middlewares"
	"homejobs/src/types"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func bookingHandlers(g *gin.RouterGroup, svc *engine.Service) *gin.RouterGroup {
	g.
		POST("/bookings", func(ctx *gin.Context) {
			actor := middlewares.Actor(ctx)
			if actor.Role != types.ROLE_CUSTOMER {
				renderError(ctx, forbidden("only customers can book a job"))
				return
			}
			var body types.CreateBookingRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindError(ctx, err)
				return
			}
			in := engine.CreateBookingInput{
				CustomerID:            actor.ID,
				Category:              body.Category,
				BudgetMin:             body.BudgetMin,
				BudgetMax:             body.BudgetMax,
				Currency:              body.Currency,
				ASAP:                  body.ASAP,
				Mode:                  body.Mode,
				PreferredContractorID: body.PreferredContractorID,
			}
			if body.ScheduledAt != nil {
				at, err := time.Parse(config.TIME_PARSE_FORMAT, *body.ScheduledAt)
				if err != nil {
					bindError(ctx, err)
					return
				}
				in.ScheduledAt = &at
			}
			booking, err := svc.CreateBooking(ctx, in)
			if err != nil {
				renderError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, booking)
		}).
		GET("/bookings", func(ctx *gin.Context) {
			var q types.BookingsQueryFilters
			if err := ctx.ShouldBindQuery(&q); err != nil {
				bindError(ctx, err)
				return
			}
			f := engine.BookingFilter{Stage: q.Stage, Page: q.Page, PageSize: q.PageSize}
			actor := middlewares.Actor(ctx)
			switch actor.Role {
			case types.ROLE_CUSTOMER:
				f.CustomerID = actor.ID
			case types.ROLE_CONTRACTOR:
				f.ContractorID = actor.ID
			}
			bookings, count, err := svc.ListBookings(ctx, f)
			if err != nil {
				renderError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": bookings, "count": count})
		}).
		GET("/bookings/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindError(ctx, err)
				return
			}
			if !canView(ctx, svc, params.ID) {
				return
			}
			booking, err := svc.GetBooking(ctx, params.ID)
			if err != nil {
				renderError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, booking)
		}).
		GET("/bookings/:id/history", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindError(ctx, err)
				return
			}
			if !canView(ctx, svc, params.ID) {
				return
			}
			trail, err := svc.History(ctx, params.ID)
			if err != nil {
				renderError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": trail, "count": len(trail)})
		}).
		PATCH("/bookings/:id/status", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindError(ctx, err)
				return
			}
			var body types.StatusPatchRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindError(ctx, err)
				return
			}
			booking, err := svc.PatchStatus(ctx, params.ID, middlewares.Actor(ctx), lifecycle.Patch{
				Stage:        body.Stage,
				ContractorID: body.ContractorID,
				Evidence:     body.Evidence,
				ETA:          body.ETA,
			})
			if err != nil {
				renderError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, booking)
		}).
		POST("/bookings/:id/cancel", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindError(ctx, err)
				return
			}
			var body types.CancelBookingRequestBody
			if ctx.Request.ContentLength > 0 {
				if err := ctx.ShouldBindJSON(&body); err != nil {
					bindError(ctx, err)
					return
				}
			}
			booking, err := svc.CancelBooking(ctx, params.ID, middlewares.Actor(ctx), body.Reason)
			if err != nil {
				renderError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, booking)
		}).
		POST("/bookings/:id/forfeit", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindError(ctx, err)
				return
			}
			booking, err := svc.ForfeitBooking(ctx, params.ID, middlewares.Actor(ctx))
			if err != nil {
				renderError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, booking)
		})
	return g
}
