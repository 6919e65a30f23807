package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ruslano69/sqlassist/internal/infra"
	"github.com/ruslano69/sqlassist/pkg/pipeline"
	"github.com/ruslano69/sqlassist/pkg/session"
	"github.com/ruslano69/sqlassist/pkg/xlsx"
)

func newAskCmd(g *globalFlags) *cobra.Command {
	var (
		sessionID string
		xlsxPath  string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			inf, err := open(ctx, g, infra.Options{})
			if err != nil {
				return err
			}
			defer inf.Close()

			sess := session.New(sessionID, nil)
			if inf.Sessions != nil && sessionID != "" {
				if sess, err = inf.Sessions.Load(ctx, sessionID); err != nil {
					log.Warn().Err(err).Msg("session history unavailable")
					sess = session.New(sessionID, nil)
				}
			}

			res := inf.Pipeline.Answer(ctx, sess, strings.Join(args, " "))
			if res.Failed() {
				return res.Failure
			}
			remember(ctx, inf, sess.ID, res)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				printAnswer(out, res)
			}

			if xlsxPath != "" {
				if err := xlsx.Save(res.RowSet, res.Chart, xlsxPath, ""); err != nil {
					return err
				}
				fmt.Fprintf(out, "\nWorkbook written to %s\n", xlsxPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "continue an existing session")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "also export the result (and chart) to this workbook")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full pipeline result as JSON")
	return cmd
}

func printAnswer(w io.Writer, res *pipeline.Result) {
	fmt.Fprintln(w, res.Formatted)
	if q := res.Query(); q != "" {
		fmt.Fprintf(w, "\nSQL (%s): %s\n", res.Source(), q)
	} else {
		fmt.Fprintf(w, "\nSource: %s\n", res.Source())
	}
	if res.Narrative != "" {
		fmt.Fprintf(w, "\n%s\n", res.Narrative)
	}
	if res.Chart != nil {
		fmt.Fprintf(w, "\nChart: %s (%s, %d points)\n", res.Chart.Title, res.Chart.Kind, res.Chart.PointCount())
	}
	fmt.Fprintf(w, "\nSession: %s\n", res.SessionID)
}

// remember stores the turn and logs single-source answers for feedback.
func remember(ctx context.Context, inf *infra.Infra, sessionID string, res *pipeline.Result) {
	if inf.Sessions != nil {
		turn := session.Turn{Question: res.Question, Source: res.Source(), Query: res.Query(), Answer: res.Formatted}
		if err := inf.Sessions.Append(ctx, sessionID, turn); err != nil {
			log.Warn().Err(err).Msg("session turn not saved")
		}
	}
	if inf.Feedback != nil && res.Route == pipeline.RouteSingleSource {
		if err := inf.Feedback.LogQuery(ctx, sessionID, res.Question, res.Query(), res.Source(), res.RowSet.Len()); err != nil {
			log.Warn().Err(err).Msg("query not logged for feedback")
		}
	}
}
