package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academicyear"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/audit"
	"github.com/trezcool/shule/core/enrollment"
	"github.com/trezcool/shule/core/exam"
	"github.com/trezcool/shule/core/family"
	"github.com/trezcool/shule/core/invoice"
	"github.com/trezcool/shule/core/session"
	"github.com/trezcool/shule/core/settings"
	"github.com/trezcool/shule/core/user"
)

type (
	Options struct {
		Address        string
		ReadTimeout    time.Duration
		WriteTimeout   time.Duration
		AppName        string
		Debug          bool
		DisableReqLogs bool
		SignalShutdown func()

		SecretKey                 string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration

		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		AuditRec        *audit.Recorder
		SettingsSvc     *settings.Service
		UserSvc         *user.Service
		AcademicYearSvc *academicyear.Service
		FamilySvc       *family.Service
		EnrollmentSvc   *enrollment.Service
		ExamSvc         *exam.Service
		SessionSvc      *session.Service
		AttendanceSvc   *attendance.Service
		InvoiceSvc      *invoice.Service
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
	}

	server struct {
		opts     *Options
		app      *echo.Echo
		errs     chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil) // interface compliance check

func NewServer(opts *Options) Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(opts.Logger, "logger"),
		vala.IsNotNil(opts.Validate, "validate"),
		vala.IsNotNil(opts.Translator, "translator"),
		vala.IsNotNil(opts.AuditRec, "auditRec"),
		vala.IsNotNil(opts.SettingsSvc, "settingsSvc"),
		vala.IsNotNil(opts.UserSvc, "usrSvc"),
		vala.IsNotNil(opts.AcademicYearSvc, "yearSvc"),
		vala.IsNotNil(opts.FamilySvc, "familySvc"),
		vala.IsNotNil(opts.EnrollmentSvc, "enrollmentSvc"),
		vala.IsNotNil(opts.ExamSvc, "examSvc"),
		vala.IsNotNil(opts.SessionSvc, "sessionSvc"),
		vala.IsNotNil(opts.AttendanceSvc, "attendanceSvc"),
		vala.IsNotNil(opts.InvoiceSvc, "invoiceSvc"),
	).CheckAndPanic()

	s := &server{
		opts:     opts,
		app:      echo.New(),
		errs:     make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	if opts.SignalShutdown == nil {
		opts.SignalShutdown = func() {
			select {
			case s.shutdown <- syscall.SIGTERM:
			default:
			}
		}
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.HideBanner = true
	s.app.Server.ReadTimeout = s.opts.ReadTimeout
	s.app.Server.WriteTimeout = s.opts.WriteTimeout
	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(metricsMiddleware)
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in debug mode
	if !s.opts.Debug {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.opts.SignalShutdown)
	s.app.Debug = s.opts.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	tokens := newTokenIssuer(s.opts)
	authed := []echo.MiddlewareFunc{middleware.JWTWithConfig(tokens.jwtConfig()), actorMiddleware(s.opts.UserSvc)}

	o := s.opts
	registerUserAPI(v1, authed, &userApi{svc: o.UserSvc, settingsSvc: o.SettingsSvc, tokens: tokens, validate: o.Validate, logger: o.Logger})
	registerSettingsAPI(v1, authed, o.SettingsSvc)
	registerAuditAPI(v1, authed, o.AuditRec, o.Logger)
	registerAcademicYearAPI(v1, authed, &academicYearApi{svc: o.AcademicYearSvc, settingsSvc: o.SettingsSvc, logger: o.Logger})
	registerFamilyAPI(v1, authed, &familyApi{svc: o.FamilySvc, attendanceSvc: o.AttendanceSvc, settingsSvc: o.SettingsSvc, logger: o.Logger})
	registerEnrollmentAPI(v1, authed, &enrollmentApi{svc: o.EnrollmentSvc, settingsSvc: o.SettingsSvc, logger: o.Logger})
	registerExamAPI(v1, authed, &examApi{svc: o.ExamSvc, settingsSvc: o.SettingsSvc, logger: o.Logger})
	registerSessionAPI(v1, authed, &sessionApi{svc: o.SessionSvc, settingsSvc: o.SettingsSvc, logger: o.Logger})
	registerAttendanceAPI(v1, authed, &attendanceApi{svc: o.AttendanceSvc, settingsSvc: o.SettingsSvc, logger: o.Logger})
	registerInvoiceAPI(v1, authed, &invoiceApi{svc: o.InvoiceSvc, settingsSvc: o.SettingsSvc, logger: o.Logger})
	registerDashboardAPI(v1, authed, &dashboards{
		users:       o.UserSvc,
		family:      o.FamilySvc,
		sessions:    o.SessionSvc,
		invoices:    o.InvoiceSvc,
		years:       o.AcademicYearSvc,
		settingsSvc: o.SettingsSvc,
		logger:      o.Logger,
		now:         time.Now,
	})
}

// Start blocks until the server stops. Failures are reported on Errors.
func (s *server) Start() {
	if err := s.app.Start(s.opts.Address); err != nil && err != http.ErrServerClosed {
		s.errs <- err
	}
}

func (s *server) Errors() <-chan error {
	return s.errs
}

// ShutdownSignal delivers SIGINT and SIGTERM, and the shutdown requested by a fatal handler error.
func (s *server) ShutdownSignal() <-chan os.Signal {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	return s.shutdown
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.AppName+" API!")
}
