package main

import (
	"log"
	"os"

	"github.com/unihub/campus/core"
	"github.com/unihub/campus/storage/database"
	pgrepos "github.com/unihub/campus/storage/database/postgres"
)

var build = "develop"

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig(build)

	// set up DB
	db, err := database.OpenAdmin(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(database.Ping(db))

	// start CLI
	cli := commandLine{
		db:      db,
		usrRepo: pgrepos.NewUserRepository(db),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
