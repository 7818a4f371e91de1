package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/parley/internal/agent"
)

func newSummarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize [<id>]",
		Short: "Summarize a saved conversation (default: the most recent)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			arg := "1"
			if len(args) == 1 {
				arg = args[0]
			}
			conv, err := loadByPrefix(a.store, arg)
			if err != nil {
				return err
			}

			opts := agent.SummaryOptions{Model: a.cfg.Summary.Model, Prompt: a.cfg.Summary.Prompt}
			if opts.Model == "" {
				opts.Model = a.cfg.Model
			}
			summary, err := agent.Summarize(cmd.Context(), a.provider, conv.Messages, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n%s\n", conv.Title, summary)
			return nil
		},
	}
}
