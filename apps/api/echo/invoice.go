package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/invoice"
	"github.com/trezcool/shule/core/listing"
	"github.com/trezcool/shule/core/settings"
)

type invoiceApi struct {
	svc         *invoice.Service
	settingsSvc *settings.Service
	logger      core.Logger
}

// invoiceView renders an invoice with its balance as of today in the school time zone.
type invoiceView struct {
	invoice.Invoice
	invoice.Balance
}

func (api *invoiceApi) view(ctx echo.Context, inv invoice.Invoice) invoiceView {
	return invoiceView{Invoice: inv, Balance: inv.Balance(api.svc.Today(ctx.Request().Context()))}
}

func registerInvoiceAPI(g *echo.Group, authed []echo.MiddlewareFunc, api *invoiceApi) {
	ig := g.Group("/invoices", authed...)
	ig.GET("", api.query)
	ig.POST("", api.create, adminMiddleware())
	ig.GET("/stats", api.stats)
	ig.POST("/mark-overdue", api.markOverdue, adminMiddleware())
	ig.GET("/:id", api.retrieve)
	ig.PUT("/:id", api.update, adminMiddleware())
	ig.DELETE("/:id", api.destroy, adminMiddleware())
	ig.POST("/:id/send", api.send, adminMiddleware())
	ig.POST("/:id/cancel", api.cancel, adminMiddleware())
	ig.POST("/:id/payments", api.recordPayment, adminMiddleware())
}

func (api *invoiceApi) query(ctx echo.Context) error {
	state := listState(ctx, invoice.Definition, api.settingsSvc)
	invoices, total, err := api.svc.Query(ctx.Request().Context(), actorOf(ctx), state.Query())
	return ctx.JSON(http.StatusOK, listing.OrEmpty(invoices, total, err, state, api.logger, "invoices"))
}

func (api *invoiceApi) create(ctx echo.Context) error {
	var data invoice.Input
	if err := bind(ctx, &data, "invoice.Input"); err != nil {
		return err
	}
	inv, err := api.svc.Create(ctx.Request().Context(), actorOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating invoice")
	}
	return ctx.JSON(http.StatusCreated, api.view(ctx, inv))
}

func (api *invoiceApi) stats(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.Stats(ctx.Request().Context(), actorOf(ctx)))
}

func (api *invoiceApi) markOverdue(ctx echo.Context) error {
	n, err := api.svc.MarkOverdue(ctx.Request().Context(), actorOf(ctx))
	if err != nil {
		return errors.Wrap(err, "marking overdue invoices")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Success: fmt.Sprintf("%d invoices marked overdue.", n), Count: n})
}

func (api *invoiceApi) retrieve(ctx echo.Context) error {
	inv, err := api.svc.Get(ctx.Request().Context(), actorOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting invoice")
	}
	return ctx.JSON(http.StatusOK, api.view(ctx, inv))
}

func (api *invoiceApi) update(ctx echo.Context) error {
	var data invoice.Input
	if err := bind(ctx, &data, "invoice.Input"); err != nil {
		return err
	}
	inv, err := api.svc.Update(ctx.Request().Context(), actorOf(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating invoice")
	}
	return ctx.JSON(http.StatusOK, api.view(ctx, inv))
}

func (api *invoiceApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), actorOf(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting invoice")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *invoiceApi) send(ctx echo.Context) error {
	inv, err := api.svc.Send(ctx.Request().Context(), actorOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "sending invoice")
	}
	return ctx.JSON(http.StatusOK, api.view(ctx, inv))
}

func (api *invoiceApi) cancel(ctx echo.Context) error {
	inv, err := api.svc.Cancel(ctx.Request().Context(), actorOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling invoice")
	}
	return ctx.JSON(http.StatusOK, api.view(ctx, inv))
}

func (api *invoiceApi) recordPayment(ctx echo.Context) error {
	var data invoice.PaymentInput
	if err := bind(ctx, &data, "PaymentInput"); err != nil {
		return err
	}
	inv, err := api.svc.RecordPayment(ctx.Request().Context(), actorOf(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return ctx.JSON(http.StatusCreated, api.view(ctx, inv))
}
