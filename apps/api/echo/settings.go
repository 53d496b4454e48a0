package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/audit"
	"github.com/trezcool/shule/core/listing"
	"github.com/trezcool/shule/core/settings"
	"github.com/trezcool/shule/core/user"
)

type settingsApi struct {
	svc *settings.Service
}

func registerSettingsAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *settings.Service) {
	api := settingsApi{svc: svc}

	sg := g.Group("/settings", authed...)
	sg.GET("", api.retrieve)
	sg.PUT("", api.update, adminMiddleware())
	sg.DELETE("", api.reset, adminMiddleware(user.RoleAdminOwner, user.RoleAdminPrincipal))
}

func (api *settingsApi) retrieve(ctx echo.Context) error {
	s, err := api.svc.Get(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting settings")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *settingsApi) update(ctx echo.Context) error {
	var data settings.Settings
	if err := bind(ctx, &data, "Settings"); err != nil {
		return err
	}
	s, err := api.svc.Save(ctx.Request().Context(), actorOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "saving settings")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *settingsApi) reset(ctx echo.Context) error {
	s, err := api.svc.Reset(ctx.Request().Context(), actorOf(ctx))
	if err != nil {
		return errors.Wrap(err, "resetting settings")
	}
	return ctx.JSON(http.StatusOK, s)
}

type auditApi struct {
	rec    *audit.Recorder
	logger core.Logger
}

// activity logs keep their own page size
func registerAuditAPI(g *echo.Group, authed []echo.MiddlewareFunc, rec *audit.Recorder, logger core.Logger) {
	api := auditApi{rec: rec, logger: logger}

	ag := g.Group("/activity-logs", authed...)
	ag.GET("", api.query, adminMiddleware())
}

func (api *auditApi) query(ctx echo.Context) error {
	state := audit.Definition.Decode(ctx.QueryParams())
	entries, total, err := api.rec.Query(ctx.Request().Context(), state.Query())
	return ctx.JSON(http.StatusOK, listing.OrEmpty(entries, total, err, state, api.logger, "activity logs"))
}
