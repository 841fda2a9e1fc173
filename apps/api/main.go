package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/unihub/campus/apps/api/echo"
	"github.com/unihub/campus/core"
	"github.com/unihub/campus/core/announce"
	"github.com/unihub/campus/core/claim"
	"github.com/unihub/campus/core/session"
	"github.com/unihub/campus/core/user"
	emailsvc "github.com/unihub/campus/services/email"
	identsvc "github.com/unihub/campus/services/identity"
	logsvc "github.com/unihub/campus/services/logger"
	"github.com/unihub/campus/storage/database"
	pgrepos "github.com/unihub/campus/storage/database/postgres"
)

// build is the git version of this program. It is set using build flags.
var build = "develop"

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig(build)

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()
	if err = database.Ping(db); err != nil {
		logger.Fatal(fmt.Sprintf("pinging database: %v", err), err)
	}

	usrRepo := pgrepos.NewUserRepository(db)
	annRepo := pgrepos.NewAnnouncementRepository(db)
	usrSvc := user.NewService(usrRepo)
	annSvc := announce.NewService(annRepo)

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	identity := identsvc.NewService(usrRepo, conf)
	syncer := claim.NewSynchronizer(
		usrRepo,
		identity,
		claim.NewBackendClient(conf.ClaimSync),
		logger,
		mailSvc,
		conf.ClaimSync,
	)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// the process-wide session container; presentation collaborators
	// subscribe to it
	manager := session.NewManager(identity, usrRepo, syncer, validate, logger)
	defer manager.Close()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Identity:   identity,
		UserSvc:    usrSvc,
		AnnSvc:     annSvc,
		Profiles:   usrRepo,
		Validate:   validate,
		Translator: translator,
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
	case <-server.ShutdownSignal():
		logger.Error("integrity issue caught, shutting down", nil)
	}

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error("stopping server", err)
	}
}

func newTranslator() ut.Translator {
	lang := en.New()
	translator, _ := ut.New(lang, lang).GetTranslator(lang.Locale())
	return translator
}
