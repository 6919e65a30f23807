package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ruslano69/sqlassist/internal/infra"
)

func newFeedbackCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Rate answers and inspect ratings",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print rating statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inf, err := openFeedback(cmd, g)
			if err != nil {
				return err
			}
			defer inf.Close()

			st, err := inf.Feedback.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total feedback:    %d\n", st.TotalFeedback)
			fmt.Fprintf(out, "Positive (4-5):    %d\n", st.PositiveFeedback)
			fmt.Fprintf(out, "Average rating:    %.2f\n", st.AverageRating)
			fmt.Fprintf(out, "Success rate:      %.1f%%\n", st.SuccessRate)
			return nil
		},
	}

	var (
		sessionID string
		rating    int
		text      string
	)
	rate := &cobra.Command{
		Use:   "rate",
		Short: "Rate the latest answer of a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inf, err := openFeedback(cmd, g)
			if err != nil {
				return err
			}
			defer inf.Close()

			if err := inf.Feedback.RecordFeedback(cmd.Context(), sessionID, rating, text); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Feedback recorded")
			return nil
		},
	}
	rate.Flags().StringVar(&sessionID, "session", "", "session id printed by ask")
	rate.Flags().IntVar(&rating, "rating", 0, "rating from 1 to 5")
	rate.Flags().StringVar(&text, "text", "", "optional comment")
	_ = rate.MarkFlagRequired("session")
	_ = rate.MarkFlagRequired("rating")

	cmd.AddCommand(stats, rate)
	return cmd
}

func openFeedback(cmd *cobra.Command, g *globalFlags) (*infra.Infra, error) {
	inf, err := open(cmd.Context(), g, infra.Options{})
	if err != nil {
		return nil, err
	}
	if inf.Feedback == nil {
		inf.Close()
		return nil, errors.New("feedback is disabled in the configuration")
	}
	return inf, nil
}
