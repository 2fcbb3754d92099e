package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/flyashdesk/dashboard/internal/app"
	"github.com/flyashdesk/dashboard/internal/config"
	log "github.com/sirupsen/logrus"
)

var configFile = flag.String("config", "", "Path to configuration file (default: $CONFIG_PATH or ./config.yaml)")

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config path] [migrate]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.AppConfig{ConfigPath: *configFile}
	var err error
	switch cmd := flag.Arg(0); cmd {
	case "":
		err = app.RunServer(ctx, cfg)
	case "migrate":
		err = app.Migrate(ctx, cfg)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).Error("dashboard exited")
		os.Exit(1)
	}
}
