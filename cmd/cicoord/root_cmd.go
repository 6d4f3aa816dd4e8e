package main

import (
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cicoord/cicoord/pkg/config"
)

type rootOpts struct {
	v          *viper.Viper
	configFile string
	bindErr    error

	config config.Config
	logger log.Logger
}

func newRoot() *rootOpts {
	return &rootOpts{v: viper.New()}
}

var rootLongHelp = strings.TrimSpace(`
cicoord coordinates CI jobs that share resources.

Workflow:
  cicoord lock acquire "$GITHUB_RUN_ID"              # Wait for exclusive use of a shared environment.
  cicoord lock release "$GITHUB_RUN_ID"              # Give it back.
  cicoord runs await "$GITHUB_REPOSITORY" "$GITHUB_RUN_ID" # Cancel superseded runs, then queue for a slot.
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "cicoord",
		Long:              rootLongHelp,
		SilenceUsage:      true,
		PersistentPreRunE: opts.PersistentPreRunE,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to a YAML config file; flags and environment variables take precedence")
	defineCommonFlags(opts.configFlags(cmd))

	cmd.AddCommand(
		newLock(opts).Command(),
		newRuns(opts).Command(),
		newConfig(opts).Command(),
		newVersionCommand(),
	)
	return cmd
}

// configFlags returns a definer for the persistent flags of cmd.
func (opts *rootOpts) configFlags(cmd *cobra.Command) configFlags {
	return configFlags{
		fs: cmd.PersistentFlags(),
		v:  opts.v,
		bail: func(err error) {
			if opts.bindErr == nil {
				opts.bindErr = err
			}
		},
	}
}

func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	if opts.bindErr != nil {
		return opts.bindErr
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	opts.config = cfg
	opts.logger = newLogger(cfg.LogFormat, cmd.ErrOrStderr())

	if cfg.ListenMetrics != "" {
		go serveMetrics(cfg.ListenMetrics, log.With(opts.logger, "component", "metrics"))
	}
	return nil
}

// loadConfig layers flags over environment variables over the config
// file over defaults.
func (opts *rootOpts) loadConfig() (config.Config, error) {
	base := config.Default()
	if opts.configFile != "" {
		var err error
		if base, err = config.Load(opts.configFile); err != nil {
			return base, err
		}
	}

	// The config file, if any, supplies the defaults; unchanged flags
	// fall back to these rather than to their own defaults.
	value := reflect.ValueOf(base)
	for i := 0; i < value.NumField(); i++ {
		key, err := configKey(value.Type().Field(i).Name)
		if err != nil {
			return base, err
		}
		opts.v.SetDefault(key, value.Field(i).Interface())
	}

	var cfg config.Config
	if err := opts.v.Unmarshal(&cfg); err != nil {
		return base, errors.Wrap(err, "reading configuration")
	}
	return cfg, nil
}

func newLogger(format string, out io.Writer) log.Logger {
	var logger log.Logger
	if format == "json" {
		logger = log.NewJSONLogger(log.NewSyncWriter(out))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(out))
	}
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "caller", log.DefaultCaller)
	return logger
}

func serveMetrics(addr string, logger log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Log("addr", addr)
	logger.Log("err", http.ListenAndServe(addr, mux))
}
