package main

import (
	"homejobs/src/config"
	"homejobs/src/engine"
	"homejobs/src/middlewares"
	"homejobs/src/types"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func extraPartsHandlers(g *gin.RouterGroup, svc *engine.Service) *gin.RouterGroup {
	g.
		POST("/bookings/:id/extra-parts", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindError(ctx, err)
				return
			}
			var body types.CreateExtraPartsRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindError(ctx, err)
				return
			}
			if !actingAs(ctx, types.ROLE_CONTRACTOR, body.ContractorID) {
				return
			}
			req, err := svc.CreateExtraPartsRequest(ctx, params.ID, middlewares.Actor(ctx), engine.CreateExtraPartsInput{
				ContractorID:  body.ContractorID,
				PartName:      body.PartName,
				Quantity:      body.Quantity,
				UnitPrice:     body.UnitPrice,
				TotalPrice:    body.TotalPrice,
				Justification: body.Justification,
				PhotoRef:      body.PhotoRef,
			})
			if err != nil {
				renderError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, req)
		}).
		GET("/bookings/:id/extra-parts", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindError(ctx, err)
				return
			}
			if !canView(ctx, svc, params.ID) {
				return
			}
			reqs, err := svc.ListExtraPartsRequests(ctx, params.ID)
			if err != nil {
				renderError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": reqs, "count": len(reqs)})
		}).
		POST("/extra-parts/:id/resolve", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindError(ctx, err)
				return
			}
			var body types.ResolveExtraPartsRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindError(ctx, err)
				return
			}
			if !actingAs(ctx, types.ROLE_CUSTOMER, body.CustomerID) {
				return
			}
			res, err := svc.ResolveExtraPartsRequest(ctx, params.ID, engine.ResolveExtraPartsInput{
				CustomerID:   body.CustomerID,
				Decision:     body.Decision,
				Confirm:      body.Confirm,
				AppealReason: body.AppealReason,
			})
			if err != nil {
				renderError(ctx, err)
				return
			}
			if res.ConfirmationRequired() {
				ctx.JSON(http.StatusAccepted, res)
				return
			}
			ctx.JSON(http.StatusOK, res)
		})
	return g
}

func rescheduleHandlers(g *gin.RouterGroup, svc *engine.Service) *gin.RouterGroup {
	g.
		POST("/bookings/:id/reschedules", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindError(ctx, err)
				return
			}
			var body types.CreateRescheduleRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindError(ctx, err)
				return
			}
			in := engine.CreateRescheduleInput{ASAP: body.ASAP, Reason: body.Reason}
			if body.ProposedAt != nil {
				at, err := time.Parse(config.TIME_PARSE_FORMAT, *body.ProposedAt)
				if err != nil {
					bindError(ctx, err)
					return
				}
				in.ProposedAt = &at
			}
			req, err := svc.CreateRescheduleRequest(ctx, params.ID, middlewares.Actor(ctx), in)
			if err != nil {
				renderError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, req)
		}).
		GET("/bookings/:id/reschedules", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindError(ctx, err)
				return
			}
			if !canView(ctx, svc, params.ID) {
				return
			}
			reqs, err := svc.ListRescheduleRequests(ctx, params.ID)
			if err != nil {
				renderError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": reqs, "count": len(reqs)})
		}).
		POST("/reschedules/:id/resolve", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindError(ctx, err)
				return
			}
			var body types.ResolveRescheduleRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindError(ctx, err)
				return
			}
			req, err := svc.ResolveRescheduleRequest(ctx, params.ID, middlewares.Actor(ctx), body.Approve)
			if err != nil {
				renderError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, req)
		})
	return g
}
