// Command console is a terminal admin panel for the school site.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/trezcool/schoolsite/core"
	logsvc "github.com/trezcool/schoolsite/services/logger"
	"github.com/trezcool/schoolsite/storage/kv"
)

func main() {
	conf := loadConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "CONSOLE : ", log.LstdFlags),
		&core.Config{AppName: conf.AppName, Env: "CONSOLE"},
	)

	store, err := kv.NewFileStore(conf.StateFile)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening state file: %v", err), err)
	}

	ctx := context.Background()
	cli, err := newCommandLine(ctx, conf, store, logger, os.Stdout)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up console: %v", err), err)
	}
	err = cli.run(ctx, os.Args)
	cli.Close()
	logger.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", describeError(err))
		}
		os.Exit(1)
	}
}
