// Command client sends a file to the server with stop-and-wait ARQ and
// prints the elapsed time and data rate.
//
//	client [flags] [file]
//
// With -watch it instead sends every file that appears in a directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"stopwait/config"
)

var Logger = logrus.New()

func bindFlags(fs *flag.FlagSet, c *config.Config) {
	fs.StringVar(&c.Host, "host", c.Host, "server host")
	fs.IntVar(&c.Port, "port", c.Port, "server port")
	fs.IntVar(&c.MaxSegmentSize, "segsize", c.MaxSegmentSize, "segment size in bytes")
	fs.StringVar(&c.Input, "input", c.Input, "file to send")
	fs.Int64Var(&c.MaxTransferSize, "max-size", c.MaxTransferSize, "largest file to send in bytes (0 = unlimited)")
	fs.DurationVar(&c.AckTimeout.Duration, "ack-timeout", c.AckTimeout.Duration, "abort if an ack takes longer (0 = wait forever)")
	fs.DurationVar(&c.ProgressInterval.Duration, "progress", c.ProgressInterval.Duration, "progress report interval (0 = off)")
	fs.StringVar(&c.WatchDir, "watch", c.WatchDir, "send every new file in this directory")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "panic, fatal, error, warn, info, debug or trace")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "text or json")
}

func main() {
	cfg, args, err := config.FromArgs("client", os.Args[1:], bindFlags)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if len(args) > 0 {
		cfg.Input = args[0]
	}
	if err := cfg.ConfigureLogger(Logger); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		Logger.WithError(err).Error("Client failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	client := NewClient(cfg, Logger, os.Stdout)

	if cfg.WatchDir != "" {
		var stats WatchStats
		err := client.Watch(ctx, cfg.WatchDir, &stats)
		Logger.WithFields(logrus.Fields{
			"sent":   stats.Sent.Load(),
			"failed": stats.Failed.Load(),
		}).Info("Watch stopped")
		return err
	}

	_, err := client.SendFile(ctx, cfg.Input)
	return err
}
