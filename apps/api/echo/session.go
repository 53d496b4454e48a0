package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/listing"
	"github.com/trezcool/shule/core/session"
	"github.com/trezcool/shule/core/settings"
)

type sessionApi struct {
	svc         *session.Service
	settingsSvc *settings.Service
	logger      core.Logger
}

func registerSessionAPI(g *echo.Group, authed []echo.MiddlewareFunc, api *sessionApi) {
	sg := g.Group("/sessions", append(authed, staffMiddleware)...)
	sg.GET("", api.query)
	sg.POST("", api.create, adminMiddleware())
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id", api.update, adminMiddleware())
	sg.DELETE("/:id", api.destroy, adminMiddleware())
}

// query lists every session to admins, and their own sessions to teachers.
func (api *sessionApi) query(ctx echo.Context) error {
	state := listState(ctx, session.Definition, api.settingsSvc)
	q := state.Query()
	if actor := actorOf(ctx); !actor.IsAdmin() {
		q = q.Eq("teacher_id", actor.ID)
	}
	sessions, total, err := api.svc.Query(ctx.Request().Context(), q)
	return ctx.JSON(http.StatusOK, listing.OrEmpty(sessions, total, err, state, api.logger, "sessions"))
}

func (api *sessionApi) create(ctx echo.Context) error {
	var data session.Input
	if err := bind(ctx, &data, "session.Input"); err != nil {
		return err
	}
	s, err := api.svc.Create(ctx.Request().Context(), actorOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating session")
	}
	return ctx.JSON(http.StatusCreated, s)
}

// retrieve returns the session with its attendance roster.
func (api *sessionApi) retrieve(ctx echo.Context) error {
	d, err := api.svc.Detail(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting session detail")
	}
	if !d.TaughtBy(actorOf(ctx)) {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *sessionApi) update(ctx echo.Context) error {
	var data session.Input
	if err := bind(ctx, &data, "session.Input"); err != nil {
		return err
	}
	s, err := api.svc.Update(ctx.Request().Context(), actorOf(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating session")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *sessionApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), actorOf(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting session")
	}
	return ctx.NoContent(http.StatusNoContent)
}
