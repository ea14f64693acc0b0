package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/dossier/core"
	"github.com/trezcool/dossier/core/document"
	"github.com/trezcool/dossier/core/user"
	emailsvc "github.com/trezcool/dossier/services/email"
	logsvc "github.com/trezcool/dossier/services/logger"
	uploadsvc "github.com/trezcool/dossier/services/upload"
	"github.com/trezcool/dossier/storage/database"
	sqlxrepos "github.com/trezcool/dossier/storage/database/sqlx"
)

func main() {
	ctx := context.Background()
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer func() { _ = db.Close() }()
	if err = database.Ping(ctx, db.DB); err != nil {
		logger.Fatal("pinging database", err)
	}

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	document.InitValidators(validate, translator)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	uploader, err := uploadsvc.New(ctx, conf.Documents)
	if err != nil {
		logger.Fatal("setting up uploader", err)
	}
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db))
	docOpts, err := document.OptionsFromConfig(conf.Documents)
	if err != nil {
		logger.Fatal("loading document options", err)
	}
	docSvc, err := document.NewService(sqlxrepos.NewDocumentRepository(db), usrSvc, uploader, mailSvc, logger, docOpts, validate)
	if err != nil {
		logger.Fatal("setting up document service", err)
	}

	// start CLI
	cli := commandLine{
		db:         db.DB,
		conf:       conf,
		usrSvc:     usrSvc,
		docSvc:     docSvc,
		validate:   validate,
		translator: translator,
		out:        os.Stdout,
	}
	if err = cli.run(os.Args); err != nil {
		if err != errHelp {
			log.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
