// Package config holds the settings shared by the client and the server.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"stopwait/protocol"
)

const (
	DefaultHost            = "127.0.0.1"
	DefaultInput           = "myfile.txt"
	DefaultOutputDir       = "."
	DefaultMaxTransferSize = 64 * 1024 * 1024 // 64MB
	DefaultMaxConns        = 10
)

// Duration reads "250ms"-style strings from TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	MaxSegmentSize int     `toml:"max_segment_size"`
	ErrorRate      float64 `toml:"error_rate"` // receiver only; 0 disables simulated loss

	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	Listen    string `toml:"listen"`
	Input     string `toml:"input"`
	OutputDir string `toml:"output_dir"`
	WatchDir  string `toml:"watch_dir"`

	MaxTransferSize  int64    `toml:"max_transfer_size"`
	MaxConns         int      `toml:"max_conns"`
	AckTimeout       Duration `toml:"ack_timeout"`       // 0 waits forever
	ProgressInterval Duration `toml:"progress_interval"` // 0 disables

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

func Default() *Config {
	return &Config{
		MaxSegmentSize:  protocol.DefaultSegmentSize,
		ErrorRate:       0,
		Host:            DefaultHost,
		Port:            protocol.DefaultPort,
		Listen:          ":" + strconv.Itoa(protocol.DefaultPort),
		Input:           DefaultInput,
		OutputDir:       DefaultOutputDir,
		MaxTransferSize: DefaultMaxTransferSize,
		MaxConns:        DefaultMaxConns,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load reads a TOML file over the defaults. Unknown keys are an error so a
// typo does not silently fall back to a default.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}
	return cfg, nil
}

// FromArgs resolves a binary's configuration: defaults, then the file named
// by -config, then any flag given explicitly. bind registers the binary's
// flags against the Config it is handed. Remaining positional arguments are
// returned.
func FromArgs(name string, args []string, bind func(fs *flag.FlagSet, c *Config)) (*Config, []string, error) {
	cfg := Default()
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	path := fs.String("config", os.Getenv("STOPWAIT_CONFIG"), "TOML config file")
	bind(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	if *path != "" {
		fileCfg, err := Load(*path)
		if err != nil {
			return nil, nil, err
		}
		overlay := flag.NewFlagSet(name, flag.ContinueOnError)
		bind(overlay, fileCfg)
		var setErr error
		fs.Visit(func(f *flag.Flag) {
			if f.Name == "config" {
				return
			}
			if err := overlay.Set(f.Name, f.Value.String()); err != nil && setErr == nil {
				setErr = err
			}
		})
		if setErr != nil {
			return nil, nil, setErr
		}
		cfg = fileCfg
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, fs.Args(), nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.MaxSegmentSize < 1 || c.MaxSegmentSize > protocol.MaxFrameSize-protocol.HeaderSize {
		errs = append(errs, fmt.Errorf("max_segment_size must be in [1, %d], got %d",
			protocol.MaxFrameSize-protocol.HeaderSize, c.MaxSegmentSize))
	}
	if c.ErrorRate < 0 || c.ErrorRate > 1 {
		errs = append(errs, fmt.Errorf("error_rate must be in [0, 1], got %g", c.ErrorRate))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be in [1, 65535], got %d", c.Port))
	}
	if c.MaxTransferSize < 0 {
		errs = append(errs, errors.New("max_transfer_size must not be negative"))
	}
	if c.MaxConns < 0 {
		errs = append(errs, errors.New("max_conns must not be negative"))
	}
	if c.AckTimeout.Duration < 0 || c.ProgressInterval.Duration < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Address is the client's dial target.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ConfigureLogger applies level and format to l.
func (c *Config) ConfigureLogger(l *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	l.SetLevel(level)
	if c.LogFormat == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
