package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/apexion-ai/parley/internal/config"
	"github.com/apexion-ai/parley/internal/provider"
	"github.com/apexion-ai/parley/internal/tui"
)

// REPL is the interactive chat loop around one Controller.
type REPL struct {
	ctrl     *Controller
	provider provider.Provider
	config   *config.Config
	io       tui.IO
	logger   *slog.Logger

	usage UsageLedger
}

// NewREPL creates a REPL. cfg supplies the reply and summary settings.
func NewREPL(ctrl *Controller, p provider.Provider, cfg *config.Config, ui tui.IO, logger *slog.Logger) *REPL {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctrl.SetSentinels(cfg.Reply.Sentinels)
	return &REPL{
		ctrl:     ctrl,
		provider: p,
		config:   cfg,
		io:       ui,
		logger:   logger,
	}
}

// Run reads input until EOF or /quit. Failures are shown and the loop
// continues; only an input error or ctx cancellation ends it early.
func (r *REPL) Run(ctx context.Context) error {
	r.io.SystemMessage(r.banner())
	r.showTitle()
	r.logger.Info("chat started", "conversation_id", r.ctrl.ID(), "provider", r.provider.Name(), "model", r.model())
	defer func() { r.logger.Info("chat ended", "turns", r.usage.turns, "tokens", r.usage.Tokens()) }()
	for {
		input, err := r.io.ReadInput()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if quit := r.handleSlashCommand(ctx, input); quit {
				return nil
			}
			r.showTitle()
			continue
		}

		if err := r.Send(ctx, input); err != nil && ctx.Err() != nil {
			r.io.SystemMessage("Interrupted.")
			return ctx.Err()
		}
		r.showTitle()
	}
}

// Send runs one turn for input and reports the outcome to the UI.
func (r *REPL) Send(ctx context.Context, input string) error {
	r.io.UserMessage(input)
	r.io.ThinkingStart()

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if tc, ok := r.io.(tui.TurnCanceller); ok {
		tc.SetTurnCancel(cancel)
		defer tc.ClearTurnCancel()
	}

	opts := r.turnOptions()
	opts.OnRetry = r.io.SystemMessage
	res, err := r.ctrl.Turn(turnCtx, r.provider, opts, input, r.io.TextDelta)
	if err != nil {
		var upErr *UpstreamError
		switch {
		case errors.Is(err, context.Canceled) && ctx.Err() == nil:
			r.io.TextDone("")
			r.io.SystemMessage("Reply cancelled; nothing was saved.")
		case errors.As(err, &upErr):
			// Whatever streamed so far is not part of the conversation.
			r.io.TextDone("")
			r.io.Error(err.Error() + " (nothing was saved; send the message again to retry)")
		default:
			r.io.TextDone(res.Message.Content)
			r.io.Error(err.Error())
		}
		return err
	}
	r.io.TextDone(res.Message.Content)
	r.usage.Record(r.model(), res.Usage)
	r.io.SetTokens(r.usage.Tokens())
	return nil
}

// showTitle pushes the active title to UIs that display it.
func (r *REPL) showTitle() {
	if ts, ok := r.io.(tui.TitleSetter); ok {
		ts.SetTitle(r.ctrl.Title())
	}
}

// model is the model replies are requested from.
func (r *REPL) model() string {
	if r.config.Model != "" {
		return r.config.Model
	}
	return r.provider.DefaultModel()
}

func (r *REPL) turnOptions() TurnOptions {
	opts := TurnOptions{
		Model:        r.config.Model,
		SystemPrompt: r.config.Reply.SystemPrompt,
		MaxTokens:    r.config.Reply.MaxTokens,
		Temperature:  r.config.Reply.Temperature,
	}
	if n := r.config.Reply.MaxRetries; n != nil {
		policy := DefaultRetryPolicy
		policy.MaxRetries = *n
		opts.Retry = &policy
	}
	return opts
}

func (r *REPL) summaryOptions() SummaryOptions {
	model := r.config.Summary.Model
	if model == "" {
		model = r.config.Model
	}
	return SummaryOptions{Model: model, Prompt: r.config.Summary.Prompt}
}

func (r *REPL) banner() string {
	n := len(r.ctrl.Messages())
	if n == 0 {
		return "parley: new conversation. Type /help for commands."
	}
	return "parley: resumed \"" + r.ctrl.Title() + "\" (" + plural(n, "message") + "). Type /help for commands."
}
