package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/exam"
	"github.com/trezcool/shule/core/listing"
	"github.com/trezcool/shule/core/settings"
)

type examApi struct {
	svc         *exam.Service
	settingsSvc *settings.Service
	logger      core.Logger
}

func registerExamAPI(g *echo.Group, authed []echo.MiddlewareFunc, api *examApi) {
	eg := g.Group("/exams", append(authed, staffMiddleware)...)
	eg.GET("", api.query)
	eg.POST("", api.create, adminMiddleware())
	eg.GET("/:id", api.retrieve)
	eg.PUT("/:id", api.update, adminMiddleware())
	eg.DELETE("/:id", api.destroy, adminMiddleware())
}

func (api *examApi) query(ctx echo.Context) error {
	state := listState(ctx, exam.Definition, api.settingsSvc)
	exams, total, err := api.svc.Query(ctx.Request().Context(), state.Query())
	return ctx.JSON(http.StatusOK, listing.OrEmpty(exams, total, err, state, api.logger, "exams"))
}

func (api *examApi) create(ctx echo.Context) error {
	var data exam.Input
	if err := bind(ctx, &data, "exam.Input"); err != nil {
		return err
	}
	e, err := api.svc.Create(ctx.Request().Context(), actorOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating exam")
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (api *examApi) retrieve(ctx echo.Context) error {
	e, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting exam")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *examApi) update(ctx echo.Context) error {
	var data exam.Input
	if err := bind(ctx, &data, "exam.Input"); err != nil {
		return err
	}
	e, err := api.svc.Update(ctx.Request().Context(), actorOf(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating exam")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *examApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), actorOf(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting exam")
	}
	return ctx.NoContent(http.StatusNoContent)
}
