package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// SlashMenuItem is a single entry in the slash command autocomplete menu.
type SlashMenuItem struct {
	Name string // e.g. "/switch"
	Desc string
}

// BuiltinSlashCommands lists the chat commands offered for completion.
func BuiltinSlashCommands() []SlashMenuItem {
	return []SlashMenuItem{
		{Name: "/new", Desc: "Start a new conversation"},
		{Name: "/chats", Desc: "List saved conversations"},
		{Name: "/switch", Desc: "Switch conversation"},
		{Name: "/delete", Desc: "Delete a conversation"},
		{Name: "/clear", Desc: "Clear this conversation"},
		{Name: "/title", Desc: "Set the title"},
		{Name: "/summary", Desc: "Summarize this conversation"},
		{Name: "/history", Desc: "Show messages"},
		{Name: "/up", Desc: "Rate a reply up"},
		{Name: "/down", Desc: "Rate a reply down"},
		{Name: "/usage", Desc: "Token usage"},
		{Name: "/help", Desc: "Show help"},
		{Name: "/quit", Desc: "Exit"},
	}
}

// filterSlashItems returns items whose Name starts with prefix (case-insensitive).
func filterSlashItems(items []SlashMenuItem, prefix string) []SlashMenuItem {
	if prefix == "" || prefix == "/" {
		return items
	}
	lower := strings.ToLower(prefix)
	var out []SlashMenuItem
	for _, it := range items {
		if strings.HasPrefix(strings.ToLower(it.Name), lower) {
			out = append(out, it)
		}
	}
	return out
}

var (
	slashMenuBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)

	slashMenuItemNormal = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252"))

	slashMenuItemSelected = lipgloss.NewStyle().
				Foreground(lipgloss.Color("220")).
				Bold(true)

	slashMenuDesc = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

// renderSlashMenu renders the dropdown with sel highlighted.
func renderSlashMenu(items []SlashMenuItem, sel int, width int) string {
	if len(items) == 0 {
		return ""
	}
	maxName := 0
	for _, it := range items {
		maxName = max(maxName, len(it.Name))
	}

	lines := make([]string, 0, len(items))
	for i, it := range items {
		padded := it.Name + strings.Repeat(" ", maxName-len(it.Name))
		name := slashMenuItemNormal.Render(padded)
		if i == sel {
			name = slashMenuItemSelected.Render(padded)
		}
		lines = append(lines, name+"   "+slashMenuDesc.Render(it.Desc))
	}
	return slashMenuBorder.MaxWidth(max(width-6, 30)).Render(strings.Join(lines, "\n"))
}
