package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"fetchplan-registry/internal/config"
	"fetchplan-registry/internal/logging"
)

type options struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "fetchplan-registry",
		Short:        "Fetch plan repository for an entity model",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"config file (default $FETCHPLAN_CONFIG or "+config.DefaultPath+")")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "overrides the configured log level")

	root.AddCommand(
		newCheckCmd(opts),
		newShowCmd(opts),
		newNamesCmd(opts),
		newEntitiesCmd(opts),
		newServeCmd(opts),
	)

	return root
}

// load reads the configuration and builds the logger. Logs go to the
// command's error stream so stdout stays machine readable.
func (o *options) load(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}

	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	logger, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}

	return cfg, logger, nil
}
