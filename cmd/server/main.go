// Command server receives stop-and-wait transfers and writes each completed
// file to the output directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"stopwait/config"
)

var Logger = logrus.New()

func bindFlags(fs *flag.FlagSet, c *config.Config) {
	fs.StringVar(&c.Listen, "listen", c.Listen, "listen address")
	fs.IntVar(&c.MaxSegmentSize, "segsize", c.MaxSegmentSize, "largest segment a client may use")
	fs.Float64Var(&c.ErrorRate, "error-rate", c.ErrorRate, "probability of rejecting a segment, in [0,1]")
	fs.StringVar(&c.OutputDir, "out", c.OutputDir, "directory for received files")
	fs.Int64Var(&c.MaxTransferSize, "max-size", c.MaxTransferSize, "largest accepted transfer in bytes (0 = unlimited)")
	fs.IntVar(&c.MaxConns, "max-conns", c.MaxConns, "concurrent sessions (0 = unlimited)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "panic, fatal, error, warn, info, debug or trace")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "text or json")
}

func main() {
	cfg, _, err := config.FromArgs("server", os.Args[1:], bindFlags)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := cfg.ConfigureLogger(Logger); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		Logger.WithError(err).Fatal("Server failed")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}

	server := NewServer(listener, cfg, Logger)
	Logger.WithFields(logrus.Fields{
		"addr":       server.Addr().String(),
		"segsize":    cfg.MaxSegmentSize,
		"error_rate": cfg.ErrorRate,
		"out":        cfg.OutputDir,
	}).Info("Server listening")

	go func() {
		<-ctx.Done()
		Logger.Info("Server shutting down...")
		server.Close()
	}()

	err = server.Serve()
	server.Close()
	server.Stats().printFinalStats(os.Stdout)
	return err
}
