package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/parley/internal/agent"
	"github.com/apexion-ai/parley/internal/tui"
)

func newRunCmd() *cobra.Command {
	var (
		prompt       string
		chatID       string
		newChat      bool
		outputFormat string
		printLast    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send a single message non-interactively",
		Example: `  parley run -P "explain ULIDs in two sentences"
  parley run --chat 01J9 -P "and how do they sort?"
  echo "hi" | parley run --new -P - --output jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				return fmt.Errorf("--prompt / -P is required")
			}
			if newChat && chatID != "" {
				return fmt.Errorf("--chat and --new are mutually exclusive")
			}
			if outputFormat != "text" && outputFormat != "jsonl" {
				return fmt.Errorf("--output must be text or jsonl, got %q", outputFormat)
			}
			if prompt == "-" {
				data, err := readAllStdin()
				if err != nil {
					return err
				}
				prompt = data
			}
			ui := tui.NewPipeIO(outputFormat, printLast)
			return runOnce(cmd.Context(), ui, prompt, chatID, newChat)
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "P", "", `the message to send ("-" reads stdin)`)
	cmd.Flags().StringVar(&chatID, "chat", "", "continue the conversation with this id prefix or list number")
	cmd.Flags().BoolVar(&newChat, "new", false, "start a new conversation instead of continuing the most recent one")
	cmd.Flags().StringVar(&outputFormat, "output", "text", "output format: text or jsonl")
	cmd.Flags().BoolVar(&printLast, "print-last", false, "print only the final reply")
	cmd.MarkFlagRequired("prompt")

	return cmd
}

// runOnce sends prompt as one turn and exits.
func runOnce(ctx context.Context, ui *tui.PipeIO, prompt, chatID string, newChat bool) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctrl, err := agent.NewController(a.store, a.logger)
	if err != nil {
		return err
	}
	switch {
	case newChat:
		if err := ctrl.StartNew(); err != nil {
			return err
		}
	case chatID != "":
		infos, err := ctrl.Conversations()
		if err != nil {
			return err
		}
		id, err := agent.ResolveConversation(infos, chatID)
		if err != nil {
			return err
		}
		if err := ctrl.SwitchTo(id); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	repl := agent.NewREPL(ctrl, a.provider, a.cfg, ui, a.logger)
	err = repl.Send(ctx, prompt)
	ui.Flush()
	if err != nil {
		return errReported
	}
	fmt.Fprintf(os.Stderr, "conversation %s\n", ctrl.ID())
	return nil
}
