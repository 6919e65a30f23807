package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ruslano69/sqlassist/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}

	var out string
	example := &cobra.Command{
		Use:   "example",
		Short: "Print a sample configuration (three PostgreSQL sources)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out != "" {
				if err := config.Save(out, config.Example()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sample configuration written to %s\n", out)
				return nil
			}
			data, err := config.Marshal(config.Example())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	example.Flags().StringVarP(&out, "out", "o", "", "write to file instead of stdout")

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			reg, err := cfg.Registry()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d sources, default %s)\n", path, len(cfg.Sources), reg.Default())
			return nil
		},
	}

	cmd.AddCommand(example, validate)
	return cmd
}
