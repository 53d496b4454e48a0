package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/listing"
	"github.com/trezcool/shule/core/settings"
)

type attendanceApi struct {
	svc         *attendance.Service
	settingsSvc *settings.Service
	logger      core.Logger
}

func registerAttendanceAPI(g *echo.Group, authed []echo.MiddlewareFunc, api *attendanceApi) {
	ag := g.Group("/attendances", authed...)
	ag.GET("", api.query)
	ag.POST("", api.record, staffMiddleware)
	ag.POST("/batch", api.recordBatch, staffMiddleware)
}

func (api *attendanceApi) query(ctx echo.Context) error {
	state := listState(ctx, attendance.Definition, api.settingsSvc)
	records, total, err := api.svc.Query(ctx.Request().Context(), actorOf(ctx), state.Query())
	return ctx.JSON(http.StatusOK, listing.OrEmpty(records, total, err, state, api.logger, "attendance"))
}

func (api *attendanceApi) record(ctx echo.Context) error {
	var data attendance.Input
	if err := bind(ctx, &data, "attendance.Input"); err != nil {
		return err
	}
	a, err := api.svc.Record(ctx.Request().Context(), actorOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "recording attendance")
	}
	return ctx.JSON(http.StatusCreated, a)
}

type batchResponse struct {
	Success string                  `json:"success"`
	Records []attendance.Attendance `json:"records"`
}

func (api *attendanceApi) recordBatch(ctx echo.Context) error {
	var data attendance.BatchInput
	if err := bind(ctx, &data, "attendance.BatchInput"); err != nil {
		return err
	}
	records, err := api.svc.RecordBatch(ctx.Request().Context(), actorOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "recording attendance batch")
	}
	return ctx.JSON(http.StatusCreated, batchResponse{
		Success: fmt.Sprintf("Attendance recorded for %d children.", len(records)),
		Records: records,
	})
}
