// Package tui defines the IO interface between the chat loop and the
// user interface layer, plus PlainIO (terminal), TuiIO (bubbletea), PipeIO (one-shot/CI)
// and BufferIO (scripted).
package tui

// IO is the contract between the chat loop and the UI layer.
// Every method maps to a distinct visual event, so the chat loop never
// depends on any specific rendering implementation.
type IO interface {
	// ReadInput blocks until the user submits a line of input.
	// Returns ("", io.EOF) when the user quits.
	ReadInput() (string, error)

	// UserMessage displays the user's submitted message in the output area.
	UserMessage(text string)

	// ThinkingStart signals that the LLM has started processing.
	ThinkingStart()

	// TextDelta appends an incremental, already-filtered text chunk.
	TextDelta(delta string)

	// TextDone signals that the current reply is complete.
	// fullText is the committed reply.
	TextDone(fullText string)

	// SystemMessage displays a notice (command feedback, listings, retries).
	SystemMessage(text string)

	// Error displays an error message with prominent styling.
	Error(msg string)

	// SetTokens updates the running token counter.
	SetTokens(n int)
}

// TitleSetter is implemented by UIs that display the active conversation title.
type TitleSetter interface {
	SetTitle(title string)
}

// TurnCanceller is implemented by UIs that let the user abort a reply
// in flight. The chat loop registers a cancel func before each turn and
// clears it afterwards.
type TurnCanceller interface {
	SetTurnCancel(cancel func())
	ClearTurnCancel()
}
