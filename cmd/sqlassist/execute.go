package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ruslano69/sqlassist/internal/infra"
	"github.com/ruslano69/sqlassist/pkg/audit"
	"github.com/ruslano69/sqlassist/pkg/failure"
	"github.com/ruslano69/sqlassist/pkg/resultfmt"
)

func newExecuteCmd(g *globalFlags) *cobra.Command {
	var (
		source string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "execute <sql>",
		Short: "Run a query directly on one source",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			inf, err := open(ctx, g, infra.Options{})
			if err != nil {
				return err
			}
			defer inf.Close()

			if source == "" {
				source = inf.Registry.Default()
			}
			query := strings.Join(args, " ")

			start := time.Now()
			rs, err := inf.Executor.Execute(ctx, source, query)
			entry := audit.NewEntry(audit.OpExecute, audit.StatusSuccess).
				WithSource(source).
				WithResource(query).
				WithRecords(rs.Len()).
				WithDuration(time.Since(start))
			if err != nil {
				kind, _ := failure.KindOf(err)
				entry.WithError(string(kind), err)
			}
			if aerr := inf.Audit.Log(ctx, entry); aerr != nil {
				log.Warn().Err(aerr).Msg("audit entry dropped")
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(rs)
			}
			fmt.Fprintln(out, resultfmt.FormatLimit(rs, rs.Len()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "", "source id (default: the configured default source)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print columns and rows as JSON")
	return cmd
}
