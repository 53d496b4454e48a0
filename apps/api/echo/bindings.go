package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/listing"
	"github.com/trezcool/shule/core/settings"
)

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	CountResponse struct {
		Success string `json:"success"`
		Count   int    `json:"count"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)

// listState decodes the list state of def from the query string, paged by
// the school default page size.
func listState(ctx echo.Context, def *listing.Definition, settingsSvc *settings.Service) listing.State {
	perPage := settingsSvc.GetOrDefaults(ctx.Request().Context()).DefaultPerPage
	return def.WithPerPage(perPage).Decode(ctx.QueryParams())
}

func bind(ctx echo.Context, data interface{}, what string) error {
	if err := ctx.Bind(data); err != nil {
		return errors.Wrap(err, "binding to "+what)
	}
	return nil
}
