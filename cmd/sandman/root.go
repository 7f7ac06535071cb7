package sandman

import (
	"fmt"
	"os"

	"github.com/edgeflare/sandman/pkg/config"
	"github.com/edgeflare/sandman/pkg/resource"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
	logger   = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "sandman",
	Short: "Sandman serves PostgreSQL tables as linked REST resources",
	Long: `sandman derives a resource for every table with a primary key and serves
it over HTTP, announcing every change to the configured sinks`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if logger, err = newLogger(logLevel); err != nil {
			return err
		}
		if cfg, err = config.Load(viper.GetViper(), cfgFile); err != nil {
			return err
		}
		if cfg.File != "" {
			logger.Info("using config file", zap.String("file", cfg.File))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func Main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/sandman.yaml)")
	f.StringVarP(&logLevel, "log-level", "L", "info", "log at this level (debug, info, warn, error, fatal, none)")
	f.StringP("conn-string", "c", "", "PostgreSQL connection string")
	f.StringP("schema", "s", "", "PostgreSQL schema whose tables are served")
	f.Bool("inflect", false, "derive endpoints by English pluralization")

	viper.BindPFlag("rest.pg.connString", f.Lookup("conn-string"))
	viper.BindPFlag("rest.schema", f.Lookup("schema"))
	viper.BindPFlag("rest.inflect", f.Lookup("inflect"))

	rootCmd.AddCommand(serveCmd, metaCmd, versionCmd)
}

// newLogger builds a production logger at level. "none" disables logging.
func newLogger(level string) (*zap.Logger, error) {
	if level == "none" {
		return zap.NewNop(), nil
	}
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(l)
	return zc.Build()
}

// resourceOptions maps configuration to the options every table mapper and
// the OpenAPI document share.
func resourceOptions(rest config.RESTConfig) []resource.Option {
	var opts []resource.Option
	if rest.Inflect {
		opts = append(opts, resource.WithInflection())
	}
	if rest.CollectionKey != "" {
		opts = append(opts, resource.WithCollectionKey(rest.CollectionKey))
	}
	return opts
}
