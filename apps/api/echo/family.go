package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/family"
	"github.com/trezcool/shule/core/listing"
	"github.com/trezcool/shule/core/settings"
)

const maxPhotoSize = "5M"

var errPhotoRequired = core.NewValidationError(nil, core.FieldError{Field: "photo", Error: "a photo file is required"})

type familyApi struct {
	svc           *family.Service
	attendanceSvc *attendance.Service
	settingsSvc   *settings.Service
	logger        core.Logger
}

func registerFamilyAPI(g *echo.Group, authed []echo.MiddlewareFunc, api *familyApi) {
	pg := g.Group("/parents")

	// un-authed endpoints
	pg.POST("/join", api.join)

	apg := pg.Group("", authed...)
	apg.GET("", api.queryParents, staffMiddleware)
	apg.POST("", api.createParent, adminMiddleware())
	apg.GET("/me", api.myProfile, parentMiddleware)
	apg.GET("/:id", api.retrieveParent)
	apg.PUT("/:id", api.updateParent, adminMiddleware())
	apg.DELETE("/:id", api.destroyParent, adminMiddleware())
	apg.POST("/:id/invite", api.invite, adminMiddleware())

	cg := g.Group("/children", authed...)
	cg.GET("", api.queryChildren)
	cg.POST("", api.createChild)
	cg.GET("/:id", api.retrieveChild)
	cg.PUT("/:id", api.updateChild)
	cg.DELETE("/:id", api.destroyChild, adminMiddleware())
	cg.PUT("/:id/photo", api.uploadPhoto, middleware.BodyLimit(maxPhotoSize))
	cg.GET("/:id/photo", api.downloadPhoto)
	cg.GET("/:id/attendance", api.attendanceSummary)
}

// Parents

func (api *familyApi) queryParents(ctx echo.Context) error {
	state := listState(ctx, family.ParentDefinition, api.settingsSvc)
	parents, total, err := api.svc.QueryParents(ctx.Request().Context(), state.Query())
	return ctx.JSON(http.StatusOK, listing.OrEmpty(parents, total, err, state, api.logger, "parents"))
}

func (api *familyApi) createParent(ctx echo.Context) error {
	var data family.ParentInput
	if err := bind(ctx, &data, "ParentInput"); err != nil {
		return err
	}
	p, err := api.svc.CreateParent(ctx.Request().Context(), actorOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating parent")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *familyApi) myProfile(ctx echo.Context) error {
	p, err := api.svc.ProfileOf(ctx.Request().Context(), actorOf(ctx))
	if err != nil {
		if err == family.ErrNoProfile {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting own parent profile")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *familyApi) retrieveParent(ctx echo.Context) error {
	p, err := api.svc.GetParent(ctx.Request().Context(), actorOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting parent")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *familyApi) updateParent(ctx echo.Context) error {
	var data family.ParentInput
	if err := bind(ctx, &data, "ParentInput"); err != nil {
		return err
	}
	p, err := api.svc.UpdateParent(ctx.Request().Context(), actorOf(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating parent")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *familyApi) destroyParent(ctx echo.Context) error {
	if err := api.svc.DeleteParent(ctx.Request().Context(), actorOf(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting parent")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *familyApi) invite(ctx echo.Context) error {
	if err := api.svc.Invite(ctx.Request().Context(), actorOf(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "inviting parent")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "The invitation has been sent."})
}

func (api *familyApi) join(ctx echo.Context) error {
	var data family.JoinInput
	if err := bind(ctx, &data, "JoinInput"); err != nil {
		return err
	}
	usr, err := api.svc.Join(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "joining parent portal")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

// Children

func (api *familyApi) queryChildren(ctx echo.Context) error {
	state := listState(ctx, family.ChildDefinition, api.settingsSvc)
	children, total, err := api.svc.QueryChildren(ctx.Request().Context(), actorOf(ctx), state.Query())
	return ctx.JSON(http.StatusOK, listing.OrEmpty(children, total, err, state, api.logger, "children"))
}

func (api *familyApi) createChild(ctx echo.Context) error {
	var data family.ChildInput
	if err := bind(ctx, &data, "ChildInput"); err != nil {
		return err
	}
	c, err := api.svc.CreateChild(ctx.Request().Context(), actorOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating child")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *familyApi) retrieveChild(ctx echo.Context) error {
	c, err := api.svc.GetChild(ctx.Request().Context(), actorOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting child")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *familyApi) updateChild(ctx echo.Context) error {
	var data family.ChildInput
	if err := bind(ctx, &data, "ChildInput"); err != nil {
		return err
	}
	c, err := api.svc.UpdateChild(ctx.Request().Context(), actorOf(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating child")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *familyApi) destroyChild(ctx echo.Context) error {
	if err := api.svc.DeleteChild(ctx.Request().Context(), actorOf(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting child")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *familyApi) uploadPhoto(ctx echo.Context) error {
	fh, err := ctx.FormFile("photo")
	if err != nil {
		return errPhotoRequired
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded photo")
	}
	defer f.Close()

	c, err := api.svc.UploadPhoto(ctx.Request().Context(), actorOf(ctx), ctx.Param("id"), f)
	if err != nil {
		return errors.Wrap(err, "uploading photo")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *familyApi) downloadPhoto(ctx echo.Context) error {
	rc, err := api.svc.OpenPhoto(ctx.Request().Context(), actorOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "opening photo")
	}
	defer rc.Close()
	return ctx.Stream(http.StatusOK, "image/jpeg", rc)
}

func (api *familyApi) attendanceSummary(ctx echo.Context) error {
	s, err := api.attendanceSvc.Summary(ctx.Request().Context(), actorOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "summarizing attendance")
	}
	return ctx.JSON(http.StatusOK, s)
}
