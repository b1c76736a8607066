package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/trezcool/schoolsite/core"
	"github.com/trezcool/schoolsite/core/user"
	emailsvc "github.com/trezcool/schoolsite/services/email"
	logsvc "github.com/trezcool/schoolsite/services/logger"
	"github.com/trezcool/schoolsite/storage/database"
	sqlxrepos "github.com/trezcool/schoolsite/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	if conf.Database.Engine == "memory" {
		logger.Fatal("the admin CLI needs a postgres database")
	}

	// set up DB
	db, err := database.Open(context.Background(), conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		db:     db.DB,
		usrSvc: user.NewService(sqlxrepos.NewUserRepository(db), emailsvc.NewConsoleService(conf, logger), conf),
		out:    os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	logger.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", describe(err))
		}
		os.Exit(1)
	}
}
