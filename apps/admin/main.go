package main

import (
	"context"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/audit"
	"github.com/trezcool/shule/core/family"
	"github.com/trezcool/shule/core/invoice"
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

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	errAndDie(database.Ping(context.Background(), db))

	cli, err := newCommandLine(conf, db)
	errAndDie(err)

	// start CLI
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func newCommandLine(conf *core.Config, db *sqlx.DB) (*commandLine, error) {
	appLogger := logsvc.NewRollbarLogger(logger, conf)
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	user.InitValidators(validate, translator)

	var store settings.Store = sqlxrepos.NewSettingsStore(db)
	if conf.SettingsBackend == "redis" {
		client, err := redisstore.Open(context.Background(), conf.Redis)
		if err != nil {
			return nil, err
		}
		store = redisstore.NewSettingsStore(client)
	}

	tmpls, err := core.ParseEmailTemplates(appfs.FS, "assets/templates/email", conf.FrontendBaseURL, false)
	if err != nil {
		return nil, errors.Wrap(err, "parsing email templates")
	}
	mailSvc := emailsvc.NewConsoleService(logger, emailsvc.Options{
		AppName:          conf.AppName,
		DefaultFromEmail: conf.DefaultFromEmail,
		Templates:        tmpls,
		Logger:           appLogger,
	})
	photos, err := filesvc.NewLocalStore(conf.MediaDir)
	if err != nil {
		return nil, err
	}

	usrRepo := sqlxrepos.NewUserRepository(db)
	rec := audit.NewRecorder(database.NewTxRunner(db), sqlxrepos.NewAuditRepository(db))
	settingsSvc := settings.NewService(store, rec, validate)
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

	return &commandLine{
		db:     db,
		usrSvc: user.NewService(usrRepo, rec, validate),
		invoiceSvc: invoice.NewService(invoice.Deps{
			Repo:     sqlxrepos.NewInvoiceRepository(db),
			Family:   familySvc,
			Recorder: rec,
			Validate: validate,
			Settings: settingsSvc,
			Mail:     mailSvc,
		}),
	}, nil
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
