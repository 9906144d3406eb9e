package cli

import (
	"fmt"
	"io"
	"os"

	"selfheal/infrastructure/config"
	"selfheal/infrastructure/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries what every subcommand needs once the root pre-run has loaded it
type app struct {
	v       *viper.Viper
	cfgFile string

	cfg       *config.Config
	logger    *logrus.Logger
	logCloser io.Closer
}

// NewRootCmd builds the selfheal command tree
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "selfheal",
		Short:         "Run browser scripts whose broken locators are healed by the operator.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("storage", "", "storage backend (file, sqlite, postgres)")
	_ = a.v.BindPFlag("logger.level", root.PersistentFlags().Lookup("log-level"))
	_ = a.v.BindPFlag("storage.backend", root.PersistentFlags().Lookup("storage"))

	root.AddCommand(
		newServeCmd(a),
		newRunCmd(a),
		newLocatorsCmd(a),
		newScriptsCmd(a),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *app) load() error {
	if err := config.Load(a.v, a.cfgFile); err != nil {
		return err
	}

	cfg, err := config.NewConfigFromViper(a.v)
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	a.logCloser = closer
	return nil
}
