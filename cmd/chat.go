package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/apexion-ai/parley/internal/agent"
	"github.com/apexion-ai/parley/internal/tui"
)

// runChat starts the interactive chat (REPL) mode.
func runChat(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctrl, err := agent.NewController(a.store, a.logger)
	if err != nil {
		return err
	}

	if useTUI {
		tuiCfg := tui.TUIConfig{
			Version:     displayVersion(),
			Provider:    a.cfg.Provider,
			Model:       a.cfg.Model,
			Title:       ctrl.Title(),
			ShowWelcome: true,
		}
		// Ctrl+C and Esc are handled as keys inside the TUI.
		return tui.RunTUI(ctx, tuiCfg, func(ctx context.Context, ui tui.IO) error {
			return agent.NewREPL(ctrl, a.provider, a.cfg, ui, a.logger).Run(ctx)
		})
	}

	// Plain IO mode (default)
	ui := tui.NewPlainIO(noColor)
	repl := agent.NewREPL(ctrl, a.provider, a.cfg, ui, a.logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// SIGINT aborts the reply in flight; at the prompt it exits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGINT && ui.CancelTurn() {
				continue
			}
			cancel()
			// The prompt blocks on stdin, which a cancelled context cannot interrupt.
			fmt.Fprintln(os.Stderr)
			a.Close()
			os.Exit(130)
		}
	}()

	return repl.Run(ctx)
}
