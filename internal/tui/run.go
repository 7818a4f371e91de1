package tui

import (
	"context"
	"errors"
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// RunTUI starts the bubbletea program and runs chatFn concurrently. It
// blocks until either the chat loop finishes or the user quits; quitting
// cancels the context handed to chatFn.
func RunTUI(ctx context.Context, cfg TUIConfig, chatFn func(ctx context.Context, ui IO) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	inputCh := make(chan inputResult, 1)
	model := NewModel(inputCh, cfg)

	// Create TuiIO early so the cancel hook is wired before the model
	// is copied into the tea.Program.
	tuiIO := &TuiIO{
		inputCh: inputCh,
		done:    make(chan struct{}),
	}
	model.cancelTurnFn = tuiIO.CancelTurn

	p := tea.NewProgram(model, tea.WithContext(ctx))
	tuiIO.program = p

	var (
		chatErr error
		wg      sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		chatErr = chatFn(ctx, tuiIO)
		p.Send(chatDoneMsg{err: chatErr})
	}()

	_, runErr := p.Run()
	close(tuiIO.done)
	cancel()
	wg.Wait()

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", runErr)
	}
	if errors.Is(chatErr, context.Canceled) {
		return nil
	}
	return chatErr
}
