package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"letterduel/internal/relay"
	"letterduel/internal/store"
)

const releaseVersion = "0.1.0"

type config struct {
	bind        string
	port        int
	storeKind   string
	databaseURL string
	verbose     bool
}

func (c *config) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	switch c.storeKind {
	case "memory":
	case "postgres":
		if c.databaseURL == "" {
			return errors.New("--database-url is required with --store postgres")
		}
	default:
		return fmt.Errorf("unknown store %q (must be memory or postgres)", c.storeKind)
	}
	return nil
}

func newCmd(cfg *config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("LETTERDUEL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "relayd",
		Short:         "Room relay for the two-player letter game: hosts shared room documents over websockets.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: LETTERDUEL_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: LETTERDUEL_PORT)")
	fs.StringVar(&cfg.storeKind, "store", "memory", "room store backend, memory or postgres (env: LETTERDUEL_STORE)")
	fs.StringVar(&cfg.databaseURL, "database-url", "", "postgres connection string (env: LETTERDUEL_DATABASE_URL)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "log at debug level (env: LETTERDUEL_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.SetVersionTemplate("relayd v{{.Version}}\n")
	return cmd
}

func run(ctx context.Context, cfg *config) error {
	logger, err := newLogger(cfg.verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var st store.Store
	switch cfg.storeKind {
	case "memory":
		mem := store.NewMemory(ctx)
		defer mem.Shutdown()
		st = mem
	case "postgres":
		pg, err := store.NewPostgres(ctx, cfg.databaseURL, logger)
		if err != nil {
			return err
		}
		defer pg.Close()
		st = pg
	}

	addr := fmt.Sprintf("%s:%d", cfg.bind, cfg.port)
	logger.Info("relay listening",
		zap.String("addr", addr),
		zap.String("store", cfg.storeKind),
	)
	return http.ListenAndServe(addr, relay.NewServer(st, logger).Routes())
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
