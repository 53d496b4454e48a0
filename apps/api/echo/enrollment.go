package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/enrollment"
	"github.com/trezcool/shule/core/listing"
	"github.com/trezcool/shule/core/settings"
)

type enrollmentApi struct {
	svc         *enrollment.Service
	settingsSvc *settings.Service
	logger      core.Logger
}

func registerEnrollmentAPI(g *echo.Group, authed []echo.MiddlewareFunc, api *enrollmentApi) {
	eg := g.Group("/enrollments", append(authed, staffMiddleware)...)
	eg.GET("", api.query)
	eg.POST("", api.create, adminMiddleware())
	eg.GET("/:id", api.retrieve)
	eg.DELETE("/:id", api.destroy, adminMiddleware())
}

func (api *enrollmentApi) query(ctx echo.Context) error {
	state := listState(ctx, enrollment.Definition, api.settingsSvc)
	enrollments, total, err := api.svc.Query(ctx.Request().Context(), state.Query())
	return ctx.JSON(http.StatusOK, listing.OrEmpty(enrollments, total, err, state, api.logger, "enrollments"))
}

func (api *enrollmentApi) create(ctx echo.Context) error {
	var data enrollment.Input
	if err := bind(ctx, &data, "enrollment.Input"); err != nil {
		return err
	}
	e, err := api.svc.Enroll(ctx.Request().Context(), actorOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "enrolling child")
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (api *enrollmentApi) retrieve(ctx echo.Context) error {
	e, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting enrollment")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *enrollmentApi) destroy(ctx echo.Context) error {
	if err := api.svc.Withdraw(ctx.Request().Context(), actorOf(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "withdrawing enrollment")
	}
	return ctx.NoContent(http.StatusNoContent)
}
