package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academicyear"
	"github.com/trezcool/shule/core/listing"
	"github.com/trezcool/shule/core/settings"
)

type academicYearApi struct {
	svc         *academicyear.Service
	settingsSvc *settings.Service
	logger      core.Logger
}

func registerAcademicYearAPI(g *echo.Group, authed []echo.MiddlewareFunc, api *academicYearApi) {
	yg := g.Group("/academic-years", authed...)
	yg.GET("", api.query, staffMiddleware)
	yg.POST("", api.create, adminMiddleware())
	yg.GET("/current", api.current)
	yg.GET("/:id", api.retrieve, staffMiddleware)
	yg.PUT("/:id", api.update, adminMiddleware())
	yg.DELETE("/:id", api.destroy, adminMiddleware())
	yg.POST("/:id/current", api.setCurrent, adminMiddleware())
}

func (api *academicYearApi) query(ctx echo.Context) error {
	state := listState(ctx, academicyear.Definition, api.settingsSvc)
	years, total, err := api.svc.Query(ctx.Request().Context(), state.Query())
	return ctx.JSON(http.StatusOK, listing.OrEmpty(years, total, err, state, api.logger, "academic years"))
}

func (api *academicYearApi) create(ctx echo.Context) error {
	var data academicyear.Input
	if err := bind(ctx, &data, "academicyear.Input"); err != nil {
		return err
	}
	ay, err := api.svc.Create(ctx.Request().Context(), actorOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating academic year")
	}
	return ctx.JSON(http.StatusCreated, ay)
}

func (api *academicYearApi) current(ctx echo.Context) error {
	ay, err := api.svc.Current(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting current academic year")
	}
	return ctx.JSON(http.StatusOK, ay)
}

func (api *academicYearApi) retrieve(ctx echo.Context) error {
	ay, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting academic year")
	}
	return ctx.JSON(http.StatusOK, ay)
}

func (api *academicYearApi) update(ctx echo.Context) error {
	var data academicyear.Input
	if err := bind(ctx, &data, "academicyear.Input"); err != nil {
		return err
	}
	ay, err := api.svc.Update(ctx.Request().Context(), actorOf(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating academic year")
	}
	return ctx.JSON(http.StatusOK, ay)
}

func (api *academicYearApi) setCurrent(ctx echo.Context) error {
	ay, err := api.svc.SetCurrent(ctx.Request().Context(), actorOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "setting current academic year")
	}
	return ctx.JSON(http.StatusOK, ay)
}

func (api *academicYearApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), actorOf(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting academic year")
	}
	return ctx.NoContent(http.StatusNoContent)
}
