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

	echoapi "github.com/trezcool/schoolsite/apps/api/echo"
	"github.com/trezcool/schoolsite/core"
	"github.com/trezcool/schoolsite/core/content"
	"github.com/trezcool/schoolsite/core/user"
	emailsvc "github.com/trezcool/schoolsite/services/email"
	logsvc "github.com/trezcool/schoolsite/services/logger"
	mediasvc "github.com/trezcool/schoolsite/services/media"
	tokensvc "github.com/trezcool/schoolsite/services/tokens"
	"github.com/trezcool/schoolsite/storage/database"
	inmemdb "github.com/trezcool/schoolsite/storage/database/inmem"
	sqlxrepos "github.com/trezcool/schoolsite/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()
	ctx := context.Background()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB & repos
	var (
		usrRepo     user.Repository
		contentRepo content.Repository
		health      func(context.Context) error
	)
	if conf.Database.Engine == "memory" {
		logger.Warn("using the in-memory database: data is lost on exit")
		mem := inmemdb.Open()
		usrRepo = inmemdb.NewUserRepository(mem)
		contentRepo = inmemdb.NewContentRepository(mem)
	} else {
		db, err := setUpDB(ctx, conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		defer func() {
			if err = db.Close(); err != nil {
				dbLogger.Error("Failed to close", err)
			}
		}()
		usrRepo = sqlxrepos.NewUserRepository(db)
		contentRepo = sqlxrepos.NewContentRepository(db)
		health = db.PingContext
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridAPIKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	media, err := mediasvc.New(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up media storage: %v", err), err)
	}

	denylist, closeDenylist, err := tokensvc.New(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up token denylist: %v", err), err)
	}
	defer func() {
		if err := closeDenylist(); err != nil {
			logger.Error("closing token denylist", err)
		}
	}()

	if err = core.ParseEmailTemplates(); err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		conf.Server.Address,
		nil, /* shutdown */
		&echoapi.Deps{
			Conf:       conf,
			Logger:     logger,
			UserSvc:    user.NewService(usrRepo, mailSvc, conf),
			ContentSvc: content.NewService(contentRepo, media, logger),
			MailSvc:    mailSvc,
			Denylist:   denylist,
			Health:     health,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(ctx, conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB, "up"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
