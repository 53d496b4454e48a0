package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academicyear"
	"github.com/trezcool/shule/core/family"
	"github.com/trezcool/shule/core/invoice"
	"github.com/trezcool/shule/core/session"
	"github.com/trezcool/shule/core/settings"
	"github.com/trezcool/shule/core/stats"
	"github.com/trezcool/shule/core/user"
)

type (
	dashboards struct {
		users       *user.Service
		family      *family.Service
		sessions    *session.Service
		invoices    *invoice.Service
		years       *academicyear.Service
		settingsSvc *settings.Service
		logger      core.Logger
		now         func() time.Time
	}

	AdminDashboard struct {
		CurrentYear    *academicyear.AcademicYear `json:"current_year"`
		ActiveUsers    stats.Value[int]           `json:"active_users"`
		ActiveChildren stats.Value[int]           `json:"active_children"`
		SessionsToday  stats.Value[int]           `json:"sessions_today"`
		Invoices       invoice.Stats              `json:"invoices"`
	}

	TeacherDashboard struct {
		SessionsToday     stats.Value[int] `json:"sessions_today"`
		UpcomingSessions  stats.Value[int] `json:"upcoming_sessions"`
		CompletedSessions stats.Value[int] `json:"completed_sessions"`
	}

	ParentDashboard struct {
		Children stats.Value[int] `json:"children"`
		Invoices invoice.Stats    `json:"invoices"`
	}
)

func registerDashboardAPI(g *echo.Group, authed []echo.MiddlewareFunc, d *dashboards) {
	dg := g.Group("/dashboards", authed...)
	dg.GET("/admin", d.admin, adminMiddleware())
	dg.GET("/teacher", d.teacher, staffMiddleware)
	dg.GET("/parent", d.parent, parentMiddleware)
}

// today returns the bounds of the current day in the school time zone.
func (d *dashboards) today(ctx context.Context) (time.Time, time.Time) {
	now := d.now().In(d.settingsSvc.GetOrDefaults(ctx).Location())
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return start.UTC(), start.AddDate(0, 0, 1).Add(-time.Nanosecond).UTC()
}

func (d *dashboards) logUnavailable(what string, values map[string]interface{ Available() bool }) {
	if names := stats.Unavailable(values); len(names) > 0 {
		d.logger.Warn(what+" dashboard: unavailable figures", map[string]interface{}{"figures": names})
	}
}

func (d *dashboards) admin(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	from, to := d.today(reqCtx)

	var dash AdminDashboard
	if ay, err := d.years.Current(reqCtx); err == nil {
		dash.CurrentYear = &ay
	} else if !core.IsNotFound(err) {
		d.logger.Error("getting current academic year", err)
	}
	dash.ActiveUsers = stats.Count(reqCtx, func(ctx context.Context) (int, error) {
		return d.users.Count(ctx, core.Query{}.Eq("is_active", true))
	})
	dash.ActiveChildren = stats.Count(reqCtx, func(ctx context.Context) (int, error) {
		return d.family.CountChildren(ctx, core.Query{}.Eq("status", family.ChildActive))
	})
	dash.SessionsToday = stats.Count(reqCtx, func(ctx context.Context) (int, error) {
		return d.sessions.Count(ctx, core.Query{}.Between("starts_at", from, to))
	})
	dash.Invoices = d.invoices.Stats(reqCtx, actorOf(ctx))

	d.logUnavailable("admin", map[string]interface{ Available() bool }{
		"active_users":         dash.ActiveUsers,
		"active_children":      dash.ActiveChildren,
		"sessions_today":       dash.SessionsToday,
		"invoices.outstanding": dash.Invoices.Outstanding,
		"invoices.overdue":     dash.Invoices.Overdue,
		"invoices.paid":        dash.Invoices.Paid,
	})
	return ctx.JSON(http.StatusOK, dash)
}

func (d *dashboards) teacher(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	from, to := d.today(reqCtx)
	mine := core.Query{}.Eq("teacher_id", actorOf(ctx).ID)

	var dash TeacherDashboard
	dash.SessionsToday = stats.Count(reqCtx, func(ctx context.Context) (int, error) {
		return d.sessions.Count(ctx, mine.Between("starts_at", from, to))
	})
	dash.UpcomingSessions = stats.Count(reqCtx, func(ctx context.Context) (int, error) {
		q := mine.Eq("status", session.StatusScheduled)
		q.Where = append(q.Where, core.Predicate{Field: "starts_at", Op: core.OpGTE, Value: d.now().UTC()})
		return d.sessions.Count(ctx, q)
	})
	dash.CompletedSessions = stats.Count(reqCtx, func(ctx context.Context) (int, error) {
		return d.sessions.Count(ctx, mine.Eq("status", session.StatusCompleted))
	})

	d.logUnavailable("teacher", map[string]interface{ Available() bool }{
		"sessions_today":     dash.SessionsToday,
		"upcoming_sessions":  dash.UpcomingSessions,
		"completed_sessions": dash.CompletedSessions,
	})
	return ctx.JSON(http.StatusOK, dash)
}

func (d *dashboards) parent(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	actor := actorOf(ctx)

	var dash ParentDashboard
	dash.Children = stats.Count(reqCtx, func(ctx context.Context) (int, error) {
		ids, err := d.family.OwnedChildIDs(ctx, actor)
		return len(ids), err
	})
	dash.Invoices = d.invoices.Stats(reqCtx, actor)

	d.logUnavailable("parent", map[string]interface{ Available() bool }{
		"children":             dash.Children,
		"invoices.outstanding": dash.Invoices.Outstanding,
	})
	return ctx.JSON(http.StatusOK, dash)
}
