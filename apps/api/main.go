package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	echoapi "github.com/trezcool/shule/apps/api/echo"
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
	appfs "github.com/trezcool/shule/fs"
	emailsvc "github.com/trezcool/shule/services/email"
	filesvc "github.com/trezcool/shule/services/files"
	logsvc "github.com/trezcool/shule/services/logger"
	redisstore "github.com/trezcool/shule/storage/cache/redis"
	"github.com/trezcool/shule/storage/database"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	settingsStore, err := newSettingsStore(conf, db)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up settings store: %v", err), err)
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	user.InitValidators(validate, translator)

	tmpls, err := core.ParseEmailTemplates(appfs.FS, "assets/templates/email", conf.FrontendBaseURL, !conf.Debug)
	if err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}
	mailOpts := emailsvc.Options{
		AppName:          conf.AppName,
		DefaultFromEmail: conf.DefaultFromEmail,
		Templates:        tmpls,
		Logger:           logger,
	}
	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(log.New(os.Stdout, "MAIL : ", log.LstdFlags), mailOpts)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf.SendgridApiKey, mailOpts)
	}

	photos, err := filesvc.NewLocalStore(conf.MediaDir)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up media store: %v", err), err)
	}

	// set up services
	usrRepo := sqlxrepos.NewUserRepository(db)
	sessionRepo := sqlxrepos.NewSessionRepository(db)

	rec := audit.NewRecorder(database.NewTxRunner(db), sqlxrepos.NewAuditRepository(db))
	settingsSvc := settings.NewService(settingsStore, rec, validate)
	usrSvc := user.NewService(usrRepo, rec, validate)
	yearSvc := academicyear.NewService(sqlxrepos.NewAcademicYearRepository(db), rec, validate)
	familySvc := family.NewService(family.Deps{
		Repo:            sqlxrepos.NewFamilyRepository(db),
		UserRepo:        usrRepo,
		Recorder:        rec,
		Validate:        validate,
		Settings:        settingsSvc,
		Photos:          photos,
		Mail:            mailSvc,
		SecretKey:       conf.SecretKey,
		FrontendBaseURL: conf.FrontendBaseURL,
	})
	attendanceSvc := attendance.NewService(sqlxrepos.NewAttendanceRepository(db), sessionRepo, familySvc, rec, validate)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus scrape endpoint.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	http.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(&echoapi.Options{
		Address:                   conf.Server.Host,
		ReadTimeout:               conf.Server.ReadTimeout,
		WriteTimeout:              conf.Server.WriteTimeout,
		AppName:                   conf.AppName,
		Debug:                     conf.Debug,
		SecretKey:                 conf.SecretKey,
		JWTExpirationDelta:        conf.Server.JWTExpirationDelta,
		JWTRefreshExpirationDelta: conf.Server.JWTRefreshExpirationDelta,
		Logger:                    logger,
		Validate:                  validate,
		Translator:                translator,
		AuditRec:                  rec,
		SettingsSvc:               settingsSvc,
		UserSvc:                   usrSvc,
		AcademicYearSvc:           yearSvc,
		FamilySvc:                 familySvc,
		EnrollmentSvc:             enrollment.NewService(sqlxrepos.NewEnrollmentRepository(db), yearSvc, familySvc, rec, validate),
		ExamSvc:                   exam.NewService(sqlxrepos.NewExamRepository(db), yearSvc, rec, validate),
		SessionSvc:                session.NewService(sessionRepo, attendanceSvc, yearSvc, usrSvc, rec, validate),
		AttendanceSvc:             attendanceSvc,
		InvoiceSvc: invoice.NewService(invoice.Deps{
			Repo:     sqlxrepos.NewInvoiceRepository(db),
			Family:   familySvc,
			Recorder: rec,
			Validate: validate,
			Settings: settingsSvc,
			Mail:     mailSvc,
		}),
	})

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err = server.Stop(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout*3)
	defer cancel()

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Ping(ctx, db); err != nil {
		return nil, err
	}
	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// newSettingsStore picks the settings backend: the settings table (default) or Redis.
func newSettingsStore(conf *core.Config, db *sqlx.DB) (settings.Store, error) {
	switch conf.SettingsBackend {
	case "", "postgres":
		return sqlxrepos.NewSettingsStore(db), nil
	case "redis":
		client, err := redisstore.Open(context.Background(), conf.Redis)
		if err != nil {
			return nil, err
		}
		return redisstore.NewSettingsStore(client), nil
	}
	return nil, errors.Errorf("unknown settings backend %q", conf.SettingsBackend)
}
