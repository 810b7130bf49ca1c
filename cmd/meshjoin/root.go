package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"meshjoin/internal/config"
	"meshjoin/internal/logging"
)

// app carries the state shared by every subcommand.
type app struct {
	v       *viper.Viper
	cfgFile string
	envFile string
	verbose bool
}

// NewRootCommand builds the command tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:           "meshjoin",
		Short:         "Stream sales transactions into a star-schema warehouse",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(a.envFile)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
	pf.StringVar(&a.envFile, "env-file", "", "file of KEY=VALUE pairs loaded into the environment (default .env if present)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	if err := config.BindFlags(pf, a.v); err != nil {
		panic(err)
	}

	root.AddCommand(a.newRunCommand(), a.newValidateCommand(), a.newBootstrapCommand())
	return root
}

// load decodes the configuration and builds the logger for it.
func (a *app) load() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	level := cfg.Log.Level
	if a.verbose {
		level = "debug"
	}
	log, err := logging.New(level, cfg.Log.Format)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

// checkConfig prints every issue to w and fails on errors.
func checkConfig(w io.Writer, cfg config.Config) error {
	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return fmt.Errorf("configuration is invalid (%d issues)", len(issues))
	}
	return nil
}
