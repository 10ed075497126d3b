package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/partiture/partiture/pkg/flow"
	"github.com/partiture/partiture/pkg/infra"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

const logLevelEnv = "PARTITURE_LOGLEVEL"

var (
	app       = kingpin.New("partiture", "A driver for multi-party transaction flows")
	run       = app.Command("run", "Run the configured workload").Default()
	version   = app.Command("version", "Show version information")
	lifecycle = app.Command("lifecycle", "Show the steps of the initiating lifecycle")

	configFile = run.Flag("config", "Path of config file").Required().Short('c').String()
	adminAddr  = run.Flag("admin", "Serve metrics and progress on this address, overriding the config").String()
	logLevel   = app.Flag("log-level", "Log level, overriding "+logLevelEnv).Envar(logLevelEnv).Default("info").String()
)

func newLogger(level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}
	logger := log.New()
	logger.SetLevel(lvl)
	return logger, nil
}

func runWorkload(logger *log.Logger) error {
	config, err := infra.LoadConfigFromFile(*configFile)
	if err != nil {
		return errors.Wrap(err, "fail to load config")
	}
	if *adminAddr != "" {
		config.AdminAddress = *adminAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return infra.NewProcessor(config, logger).Run(ctx)
}

func printLifecycle(w io.Writer, l flow.Lifecycle) {
	for i, s := range l {
		fmt.Fprintf(w, "%2d %-26s %s\n", i, s.Name, s.Label)
	}
}

func main() {
	fullCmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	logger, err := newLogger(*logLevel)
	if err != nil {
		app.Fatalf("%v", err)
	}

	switch fullCmd {
	case run.FullCommand():
		err = runWorkload(logger)
	case version.FullCommand():
		fmt.Print(infra.GetVersionInfo())
	case lifecycle.FullCommand():
		printLifecycle(os.Stdout, flow.SimpleInitiatingLifecycle)
	default:
		err = errors.Errorf("Invalid command: %s", fullCmd)
	}

	if err != nil {
		logger.WithError(err).Error("Partiture failed")
		os.Exit(1)
	}
}
