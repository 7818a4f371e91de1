package agent

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/apexion-ai/parley/internal/session"
)

// handleSlashCommand processes built-in commands. Returns true to quit.
func (r *REPL) handleSlashCommand(ctx context.Context, input string) bool {
	parts := strings.SplitN(strings.TrimSpace(input), " ", 2)
	cmd := parts[0]
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case "/quit", "/exit", "/q":
		r.io.SystemMessage("Bye.")
		return true
	case "/new":
		r.report(r.ctrl.StartNew(), "Started a new conversation.")
	case "/chats":
		r.handleChats()
	case "/switch":
		r.handleSwitch(arg)
	case "/delete":
		r.handleDelete(arg)
	case "/clear":
		r.report(r.ctrl.ClearCurrent(), "Conversation cleared.")
	case "/title":
		if err := r.ctrl.SetTitle(arg); err != nil {
			r.io.Error(err.Error())
			return false
		}
		r.io.SystemMessage(fmt.Sprintf("Title: %s", r.ctrl.Title()))
	case "/summary":
		r.handleSummary(ctx)
	case "/up":
		r.handleRate(arg, RatingUp)
	case "/down":
		r.handleRate(arg, RatingDown)
	case "/history":
		r.io.SystemMessage(FormatHistory(r.ctrl.Messages(), r.ctrl.Feedback()))
	case "/usage":
		r.io.SystemMessage(r.usage.String())
	case "/help":
		r.io.SystemMessage(helpText)
	default:
		r.io.Error(fmt.Sprintf("unknown command %s (try /help)", cmd))
	}
	return false
}

const helpText = `Commands:
  /new                 start a new conversation
  /chats               list saved conversations
  /switch <n|id>       switch to a conversation by list number or id prefix
  /delete [<n|id>]     delete a conversation (default: the current one)
  /clear               remove all messages from the current conversation
  /title [<text>]      set the title (empty: derive from the first message)
  /summary             summarize the current conversation
  /up <n>, /down <n>   rate assistant message n (see /history)
  /history             show the current conversation
  /usage               token usage for this session
  /quit                exit`

// report shows err, or ok when err is nil.
func (r *REPL) report(err error, ok string) {
	if err != nil {
		r.io.Error(err.Error())
		return
	}
	r.io.SystemMessage(ok)
}

func (r *REPL) handleChats() {
	infos, err := r.ctrl.Conversations()
	if err != nil {
		r.io.Error("Failed to list conversations: " + err.Error())
		return
	}
	out := FormatConversations(infos, r.ctrl.ID())
	if len(infos) > 0 {
		out += "\nUse /switch <n> to open one."
	}
	r.io.SystemMessage(out)
}

func (r *REPL) handleSwitch(arg string) {
	if arg == "" {
		r.io.SystemMessage("Usage: /switch <number|id-prefix>")
		return
	}
	id, err := r.resolve(arg)
	if err != nil {
		r.io.Error(err.Error())
		return
	}
	if err := r.ctrl.SwitchTo(id); err != nil {
		r.io.Error(err.Error())
		return
	}
	r.io.SystemMessage(fmt.Sprintf("Switched to %q (%s).", r.ctrl.Title(), plural(len(r.ctrl.Messages()), "message")))
}

func (r *REPL) handleDelete(arg string) {
	id := r.ctrl.ID()
	if arg != "" {
		var err error
		if id, err = r.resolve(arg); err != nil {
			r.io.Error(err.Error())
			return
		}
	}
	wasActive := id == r.ctrl.ID()
	if err := r.ctrl.Delete(id); err != nil {
		r.io.Error(err.Error())
		return
	}
	if wasActive {
		r.io.SystemMessage(fmt.Sprintf("Deleted. Now on %q.", r.ctrl.Title()))
		return
	}
	r.io.SystemMessage("Deleted.")
}

// resolve maps a 1-based /chats number or a unique id prefix to an id.
func (r *REPL) resolve(arg string) (string, error) {
	infos, err := r.ctrl.Conversations()
	if err != nil {
		return "", fmt.Errorf("list conversations: %w", err)
	}
	return ResolveConversation(infos, arg)
}

// ResolveConversation maps a 1-based list number or a unique id prefix
// to a conversation id.
func ResolveConversation(infos []session.Summary, arg string) (string, error) {
	// Ids start with "0", list numbers never do.
	if n, err := strconv.Atoi(arg); err == nil && arg[0] != '0' && n >= 1 && n <= len(infos) {
		return infos[n-1].ID, nil
	}

	var matches []session.Summary
	for _, info := range infos {
		if strings.HasPrefix(info.ID, arg) {
			matches = append(matches, info)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no conversation matches %q", arg)
	case 1:
		return matches[0].ID, nil
	default:
		return "", fmt.Errorf("prefix %q matches %d conversations; provide a longer prefix", arg, len(matches))
	}
}

func (r *REPL) handleSummary(ctx context.Context) {
	r.io.SystemMessage("Summarizing...")
	summary, err := r.ctrl.Summarize(ctx, r.provider, r.summaryOptions())
	if err != nil {
		if errors.Is(err, ErrNothingToSummarize) {
			r.io.SystemMessage("Nothing to summarize yet.")
			return
		}
		r.io.Error(err.Error())
		return
	}
	r.io.SystemMessage("Summary:\n" + summary)
}

func (r *REPL) handleRate(arg string, rating Rating) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		r.io.SystemMessage("Usage: /up <n> or /down <n> (message number from /history)")
		return
	}
	if err := r.ctrl.Rate(n, rating); err != nil {
		r.io.Error(err.Error())
		return
	}
	r.io.SystemMessage(fmt.Sprintf("Rated message %d %s.", n, rating))
}

// FormatConversations renders a numbered listing, marking activeID.
func FormatConversations(infos []session.Summary, activeID string) string {
	if len(infos) == 0 {
		return "No saved conversations."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Saved conversations (%d):\n", len(infos))
	for i, info := range infos {
		if i >= 20 {
			fmt.Fprintf(&sb, "  ... and %d more\n", len(infos)-20)
			break
		}
		mark := " "
		if info.ID == activeID {
			mark = "*"
		}
		fmt.Fprintf(&sb, "%s %2d. %s  %s  %-6s  %s\n",
			mark, i+1, shortID(info.ID),
			info.ModTime.Local().Format("2006-01-02 15:04"),
			plural(info.Messages, "msg"),
			info.Title,
		)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// FormatHistory renders messages with their index and any rating.
func FormatHistory(messages []session.Message, feedback map[int]Rating) string {
	if len(messages) == 0 {
		return "No history."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== History (%d messages) ===\n", len(messages))
	for i, msg := range messages {
		rating := ""
		if rt, ok := feedback[i]; ok {
			rating = " [" + rt.String() + "]"
		}
		fmt.Fprintf(&sb, "[%d] %s%s: %s\n", i, msg.Role, rating, truncate(msg.Content, 100))
	}
	sb.WriteString("===")
	return sb.String()
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// truncate shortens s to maxLen runes, flattening newlines.
func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
