// sqlassist answers natural-language questions over several SQL sources.
//
// Usage:
//
//	sqlassist serve [--config path] [--dev] [--addr :8000]
//	sqlassist ask "How many employees are there?" [--xlsx out.xlsx]
//	sqlassist execute --source db1 "SELECT * FROM departments"
//	sqlassist schedule add|list|run|results|remove
//	sqlassist feedback stats
//	sqlassist config example
//
// Environment:
//
//	SQLASSIST_LLM_API_KEY  generator API key (if not set in config)
//	SQLASSIST_DB_PASSWORD  password for network sources without one
package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ruslano69/sqlassist/internal/config"
	"github.com/ruslano69/sqlassist/internal/infra"
)

var version = "dev"

// globalFlags - флаги корневой команды
type globalFlags struct {
	configPath string
	logJSON    bool
	logLevel   string
	dev        bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("sqlassist failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "sqlassist",
		Short:         "Natural-language SQL assistant over several databases",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(g)
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "sqlassist.yaml", "path to config file")
	root.PersistentFlags().BoolVar(&g.logJSON, "log-json", false, "log as JSON instead of the console writer")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&g.dev, "dev", false, "dev mode: in-process miniredis instead of a Redis server")

	root.AddCommand(
		newServeCmd(g),
		newAskCmd(g),
		newExecuteCmd(g),
		newScheduleCmd(g),
		newFeedbackCmd(g),
		newConfigCmd(),
	)

	return root
}

func setupLogging(g *globalFlags) error {
	level, err := zerolog.ParseLevel(g.logLevel)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	if g.logJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return nil
}

// open loads the config and builds the components.
func open(ctx context.Context, g *globalFlags, opts infra.Options) (*infra.Infra, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	opts.Dev = opts.Dev || g.dev
	return infra.Setup(ctx, cfg, opts)
}
