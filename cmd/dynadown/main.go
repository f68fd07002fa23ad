// Command dynadown reads and writes a dynadown store from the shell.
//
//	dynadown [flags] get KEY
//	dynadown [flags] put KEY VALUE
//	dynadown [flags] del KEY
//	dynadown [flags] scan
//	dynadown [flags] destroy
//
// Flags may also come from a dynadown.{yaml,json,toml} file in the working
// directory or $HOME/.dynadown, or from DYNADOWN_* environment variables.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jacentio/dynadown/internal/logger"
	"github.com/jacentio/dynadown/kv"
	"github.com/jacentio/dynadown/store"
)

// cliConfig is the merged result of flags, config file and environment.
type cliConfig struct {
	Location        string        `mapstructure:"location"`
	Region          string        `mapstructure:"region"`
	Endpoint        string        `mapstructure:"endpoint"`
	Profile         string        `mapstructure:"profile"`
	CreateIfMissing bool          `mapstructure:"create-if-missing"`
	ErrorIfExists   bool          `mapstructure:"error-if-exists"`
	PageSize        int32         `mapstructure:"page-size"`
	Timeout         time.Duration `mapstructure:"timeout"`
	JSON            bool          `mapstructure:"json"`
	LogLevel        string        `mapstructure:"log-level"`
	LogConsole      bool          `mapstructure:"log-console"`

	Gt      string `mapstructure:"gt"`
	Gte     string `mapstructure:"gte"`
	Lt      string `mapstructure:"lt"`
	Lte     string `mapstructure:"lte"`
	Reverse bool   `mapstructure:"reverse"`
	Limit   int    `mapstructure:"limit"`
}

var errUsage = errors.New("usage: dynadown [flags] get KEY | put KEY VALUE | del KEY | scan | destroy")

// app runs one command. client is nil outside tests.
type app struct {
	client store.API
	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{stdout: os.Stdout, stderr: os.Stderr}
	if err := a.run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "dynadown:", err)
		if errors.Is(err, store.ErrNotFound) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("dynadown", pflag.ContinueOnError)
	fs.StringP("location", "l", "", "table or table/partition to operate on")
	fs.String("region", "", "AWS region")
	fs.String("endpoint", "", "DynamoDB endpoint override, e.g. http://localhost:8000")
	fs.String("profile", "", "AWS shared config profile")
	fs.Bool("create-if-missing", true, "create the table when it does not exist")
	fs.Bool("error-if-exists", false, "fail when the table already exists")
	fs.Int32("page-size", 0, "items per query page (0 lets DynamoDB decide)")
	fs.Duration("timeout", 2*time.Minute, "how long to wait for table creation or deletion")
	fs.Bool("json", false, "parse put values and print values as JSON")
	fs.String("log-level", "info", "debug, info, warn or error")
	fs.Bool("log-console", true, "human-readable logs instead of JSON")
	fs.String("gt", "", "scan keys greater than")
	fs.String("gte", "", "scan keys greater than or equal to")
	fs.String("lt", "", "scan keys less than")
	fs.String("lte", "", "scan keys less than or equal to")
	fs.Bool("reverse", false, "scan in descending order")
	fs.Int("limit", -1, "maximum entries to scan (-1 for no limit)")
	fs.String("config", "", "config file (default dynadown.{yaml,json,toml} in . or $HOME/.dynadown)")
	return fs
}

func loadConfig(fs *pflag.FlagSet) (*cliConfig, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	v.SetEnvPrefix("DYNADOWN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dynadown")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.dynadown")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg cliConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func (a *app) run(ctx context.Context, args []string) error {
	fs := newFlagSet()
	fs.SetOutput(a.stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(fs)
	if err != nil {
		return err
	}

	cmd := fs.Args()
	if len(cmd) == 0 {
		return errUsage
	}
	if cfg.Location == "" {
		return errors.New("--location is required")
	}

	log := logger.New(a.stderr, cfg.LogLevel, cfg.LogConsole).With("run", uuid.NewString())

	storeCfg := store.DefaultConfig()
	storeCfg.Client = a.client
	storeCfg.Region = cfg.Region
	storeCfg.Endpoint = cfg.Endpoint
	storeCfg.Profile = cfg.Profile
	storeCfg.CreateIfMissing = cfg.CreateIfMissing
	storeCfg.ErrorIfExists = cfg.ErrorIfExists
	storeCfg.PageSize = cfg.PageSize
	storeCfg.TableWaitTimeout = cfg.Timeout
	storeCfg.Logger = log

	switch cmd[0] {
	case "get":
		if len(cmd) != 2 {
			return errUsage
		}
		return a.withStore(ctx, cfg.Location, storeCfg, func(s *store.Store) error {
			return a.get(ctx, s, cmd[1], cfg.JSON)
		})
	case "put":
		if len(cmd) != 3 {
			return errUsage
		}
		value, err := parseValue(cmd[2], cfg.JSON)
		if err != nil {
			return err
		}
		return a.withStore(ctx, cfg.Location, storeCfg, func(s *store.Store) error {
			return s.Put(ctx, cmd[1], value)
		})
	case "del":
		if len(cmd) != 2 {
			return errUsage
		}
		return a.withStore(ctx, cfg.Location, storeCfg, func(s *store.Store) error {
			return s.Del(ctx, cmd[1])
		})
	case "scan":
		if len(cmd) != 1 {
			return errUsage
		}
		opts := kv.IteratorOptions{
			Gt:      cfg.Gt,
			Gte:     cfg.Gte,
			Lt:      cfg.Lt,
			Lte:     cfg.Lte,
			Reverse: cfg.Reverse,
			Limit:   cfg.Limit,
		}
		return a.withStore(ctx, cfg.Location, storeCfg, func(s *store.Store) error {
			return a.scan(ctx, s, opts, cfg.JSON)
		})
	case "destroy":
		if len(cmd) != 1 {
			return errUsage
		}
		storeCfg.CreateIfMissing = false
		reg := store.NewRegistry()
		storeCfg.Registry = reg
		return a.withStore(ctx, cfg.Location, storeCfg, func(s *store.Store) error {
			if err := reg.Destroy(ctx, s.Location()); err != nil {
				return err
			}
			log.Info("destroyed", "table", s.TableName())
			return nil
		})
	default:
		return fmt.Errorf("unknown command %q: %w", cmd[0], errUsage)
	}
}

func (a *app) withStore(ctx context.Context, location string, cfg store.Config, fn func(*store.Store) error) error {
	s, err := store.Open(ctx, location, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	cfg.Logger.Debug("opened store", slog.String("location", location))
	return fn(s)
}

func (a *app) get(ctx context.Context, s *store.Store, key string, asJSON bool) error {
	v, err := s.Get(ctx, key, &kv.ReadOptions{})
	if err != nil {
		return err
	}
	out, err := formatValue(v, asJSON)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, out)
	return err
}

func (a *app) scan(ctx context.Context, s *store.Store, opts kv.IteratorOptions, asJSON bool) error {
	it := s.Iterator(ctx, opts)
	defer it.Close()

	enc := json.NewEncoder(a.stdout)
	for it.Next() {
		key, _ := it.Key().(string)
		if asJSON {
			if err := enc.Encode(map[string]any{"key": key, "value": it.Value()}); err != nil {
				return err
			}
			continue
		}
		value, err := formatValue(it.Value(), false)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(a.stdout, "%s\t%s\n", key, value); err != nil {
			return err
		}
	}
	return it.Err()
}

// parseValue turns a command-line argument into a storable value.
func parseValue(arg string, asJSON bool) (any, error) {
	if !asJSON {
		return arg, nil
	}
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return nil, fmt.Errorf("parse value: %w", err)
	}
	return v, nil
}

// formatValue renders strings as-is unless asJSON is set. Everything else
// is printed as JSON.
func formatValue(v any, asJSON bool) (string, error) {
	if s, ok := v.(string); ok && !asJSON {
		return s, nil
	}
	if v == nil && !asJSON {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
